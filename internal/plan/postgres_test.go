package plan_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

// startPostgres spins up a disposable PostgreSQL container and returns a
// store with the schema applied.
func startPostgres(t *testing.T) *plan.PostgresStore {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("studyplan"),
		tcpostgres.WithUsername("studyplan"),
		tcpostgres.WithPassword("studyplan"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}
	t.Cleanup(pool.Close)

	store, err := plan.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	return store
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	store := startPostgres(t)
	ctx := context.Background()

	planID, err := store.CreatePlan(ctx, plan.StudyPlan{
		OwnerID:   "learner-1",
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
		ExamDate:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ids, err := store.CreateTasks(ctx, []plan.Task{
		{
			PlanID:          planID,
			TopicID:         "alg-01",
			Type:            plan.TaskReading,
			StartTime:       start,
			EndTime:         start.Add(time.Hour),
			DurationMinutes: 60,
			Difficulty:      catalog.Easy,
		},
		{
			PlanID:          planID,
			TopicID:         "alg-02",
			Type:            plan.TaskQuiz,
			StartTime:       start.Add(2 * time.Hour),
			EndTime:         start.Add(3 * time.Hour),
			DurationMinutes: 60,
			Difficulty:      catalog.Medium,
		},
	})
	if err != nil {
		t.Fatalf("CreateTasks() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("CreateTasks() returned %d ids, want 2", len(ids))
	}

	// Window move preserves the original window once.
	newStart := start.Add(48 * time.Hour)
	if err := store.UpdateTaskWindow(ctx, ids[0], newStart, newStart.Add(time.Hour), true); err != nil {
		t.Fatalf("UpdateTaskWindow() error = %v", err)
	}

	tasks, err := store.TasksByPlan(ctx, planID, plan.TaskFilter{})
	if err != nil {
		t.Fatalf("TasksByPlan() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("TasksByPlan() returned %d tasks, want 2", len(tasks))
	}

	var moved plan.Task
	for _, task := range tasks {
		if task.ID == ids[0] {
			moved = task
		}
	}
	if moved.OriginalStartTime == nil || !moved.OriginalStartTime.Equal(start) {
		t.Errorf("OriginalStartTime = %v, want %v", moved.OriginalStartTime, start)
	}
	if !moved.StartTime.Equal(newStart) {
		t.Errorf("StartTime = %v, want %v", moved.StartTime, newStart)
	}

	// Field-scoped updates.
	if err := store.UpdateTaskDifficulty(ctx, ids[1], catalog.Hard); err != nil {
		t.Fatalf("UpdateTaskDifficulty() error = %v", err)
	}
	if err := store.UpdateTaskStatus(ctx, ids[1], plan.StatusCompleted); err != nil {
		t.Fatalf("UpdateTaskStatus() error = %v", err)
	}

	completed, err := store.TasksByPlan(ctx, planID, plan.TaskFilter{Status: plan.StatusCompleted})
	if err != nil {
		t.Fatalf("TasksByPlan(completed) error = %v", err)
	}
	if len(completed) != 1 || completed[0].Difficulty != catalog.Hard {
		t.Errorf("completed tasks = %+v, want one HARD task", completed)
	}
}

func TestPostgresStore_AlertsAndPreferences(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	store := startPostgres(t)
	ctx := context.Background()

	score := 42.0
	if _, err := store.RecordPerformance(ctx, plan.Performance{
		OwnerID:    "learner-1",
		TopicID:    "alg-01",
		Score:      &score,
		Confidence: 2,
		Completed:  true,
	}); err != nil {
		t.Fatalf("RecordPerformance() error = %v", err)
	}

	perfs, err := store.PerformancesByOwner(ctx, "learner-1")
	if err != nil {
		t.Fatalf("PerformancesByOwner() error = %v", err)
	}
	if len(perfs) != 1 || perfs[0].Score == nil || *perfs[0].Score != 42 {
		t.Errorf("performances = %+v, want one with score 42", perfs)
	}

	alertID, err := store.CreateAlert(ctx, plan.Alert{
		OwnerID:  "learner-1",
		Type:     plan.AlertLowPerformance,
		Severity: plan.SeverityHigh,
		Message:  "struggling with alg-01",
		TopicID:  "alg-01",
	})
	if err != nil {
		t.Fatalf("CreateAlert() error = %v", err)
	}
	if err := store.ResolveAlert(ctx, alertID); err != nil {
		t.Fatalf("ResolveAlert() error = %v", err)
	}
	if err := store.ResolveAlert(ctx, alertID); err != nil {
		t.Errorf("second ResolveAlert() error = %v, want nil", err)
	}

	open, err := store.UnresolvedAlerts(ctx, "learner-1")
	if err != nil {
		t.Fatalf("UnresolvedAlerts() error = %v", err)
	}
	if len(open) != 0 {
		t.Errorf("unresolved alerts = %d, want 0", len(open))
	}

	if err := store.SavePreferences(ctx, plan.Preferences{
		OwnerID:       "learner-1",
		Weekdays:      []time.Weekday{time.Monday, time.Friday},
		HoursPerDay:   1.5,
		PreferredTime: plan.Night,
	}); err != nil {
		t.Fatalf("SavePreferences() error = %v", err)
	}
	if err := store.UpdatePreferredTime(ctx, "learner-1", plan.Morning); err != nil {
		t.Fatalf("UpdatePreferredTime() error = %v", err)
	}

	prefs, err := store.GetPreferences(ctx, "learner-1")
	if err != nil {
		t.Fatalf("GetPreferences() error = %v", err)
	}
	if prefs.PreferredTime != plan.Morning || len(prefs.Weekdays) != 2 {
		t.Errorf("preferences = %+v, want MORNING with 2 weekdays", prefs)
	}
}
