package adapt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/studyplan/internal/adapt"
	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

var (
	aNow   = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) // Tuesday, mid-plan
	aStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	aExam  = time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
)

func allWeek() []time.Weekday {
	return []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}
}

type fixture struct {
	store  *plan.MemoryStore
	planID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := plan.NewMemoryStore()
	ctx := context.Background()

	planID, err := store.CreatePlan(ctx, plan.StudyPlan{
		OwnerID:   "l1",
		StartDate: aStart,
		EndDate:   aExam.AddDate(0, 0, -1),
		ExamDate:  aExam,
	})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if err := store.SavePreferences(ctx, plan.Preferences{
		OwnerID:       "l1",
		Weekdays:      allWeek(),
		HoursPerDay:   3,
		PreferredTime: plan.Morning,
	}); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	return &fixture{store: store, planID: planID}
}

func (f *fixture) engine(store plan.Store) *adapt.Engine {
	if store == nil {
		store = f.store
	}
	return adapt.NewEngine(adapt.EngineConfig{
		Store: store,
		Now:   func() time.Time { return aNow },
	})
}

func (f *fixture) addTask(t *testing.T, topicID string, typ plan.TaskType, status plan.TaskStatus, start time.Time, minutes int, d catalog.Difficulty) string {
	t.Helper()
	ids, err := f.store.CreateTasks(context.Background(), []plan.Task{{
		PlanID:          f.planID,
		TopicID:         topicID,
		Type:            typ,
		Status:          status,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
		Difficulty:      d,
	}})
	if err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}
	return ids[0]
}

func (f *fixture) addPerformance(t *testing.T, topicID string, score *float64, confidence int) {
	t.Helper()
	_, err := f.store.RecordPerformance(context.Background(), plan.Performance{
		OwnerID:    "l1",
		TopicID:    topicID,
		Score:      score,
		Confidence: confidence,
		Completed:  true,
	})
	if err != nil {
		t.Fatalf("RecordPerformance: %v", err)
	}
}

func (f *fixture) taskByID(t *testing.T, id string) plan.Task {
	t.Helper()
	tasks, err := f.store.TasksByPlan(context.Background(), f.planID, plan.TaskFilter{})
	if err != nil {
		t.Fatalf("TasksByPlan: %v", err)
	}
	for _, task := range tasks {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %s not found", id)
	return plan.Task{}
}

func fptr(v float64) *float64 { return &v }

func TestEngine_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine(nil).Run(ctx, ""); !errors.Is(err, adapt.ErrMissingLearner) {
		t.Errorf("empty learner: got %v", err)
	}
	if _, err := f.engine(nil).Run(ctx, "nobody"); !errors.Is(err, plan.ErrPlanNotFound) {
		t.Errorf("unknown learner: got %v", err)
	}
}

func TestEngine_SerializesPerLearner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	locker := adapt.NewMemoryLocker()
	engine := adapt.NewEngine(adapt.EngineConfig{
		Store:  f.store,
		Locker: locker,
		Now:    func() time.Time { return aNow },
	})

	release, ok, err := locker.TryLock(ctx, "l1")
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	if _, err := engine.Run(ctx, "l1"); !errors.Is(err, adapt.ErrRunInProgress) {
		t.Errorf("held lock: got %v", err)
	}
	release()
	if _, err := engine.Run(ctx, "l1"); err != nil {
		t.Errorf("after release: got %v", err)
	}
}

type difficultyFailStore struct {
	plan.Store
}

func (s *difficultyFailStore) UpdateTaskDifficulty(context.Context, string, catalog.Difficulty) error {
	return errors.New("write rejected")
}

func TestEngine_PassFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	// A future task whose low scores demand a difficulty change the
	// store will refuse.
	f.addTask(t, "algebra", plan.TaskQuiz, plan.StatusPending, aNow.AddDate(0, 0, 2).Add(-3*time.Hour), 60, catalog.Hard)
	f.addPerformance(t, "algebra", fptr(40), 2)

	res, err := f.engine(&difficultyFailStore{Store: f.store}).Run(context.Background(), "l1")
	if err != nil {
		t.Fatalf("run must survive a failing pass: %v", err)
	}

	var failed, succeeded int
	for _, pr := range res.Passes {
		if pr.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	if failed != 1 {
		t.Errorf("want exactly the difficulty pass to fail, got %d failures", failed)
	}
	if succeeded != 5 {
		t.Errorf("want 5 surviving passes, got %d", succeeded)
	}
}

func TestEngine_BumpsVersionOnActions(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, "algebra", plan.TaskReading, plan.StatusPending, aNow.AddDate(0, 0, -1), 60, catalog.Easy)

	res, err := f.engine(nil).Run(context.Background(), "l1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Actions) == 0 {
		t.Fatal("missed task should produce an action")
	}
	if res.Summary[adapt.ActionRescheduleMissed] == 0 {
		t.Errorf("summary missing reschedule count: %+v", res.Summary)
	}

	p, err := f.store.PlanByOwner(context.Background(), "l1")
	if err != nil {
		t.Fatalf("PlanByOwner: %v", err)
	}
	if p.Version != 2 {
		t.Errorf("version = %d, want 2 after an adapting run", p.Version)
	}
}

func TestEngine_NoActionsNoBump(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, "algebra", plan.TaskReading, plan.StatusPending, aNow.AddDate(0, 0, 2), 60, catalog.Easy)

	res, err := f.engine(nil).Run(context.Background(), "l1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Actions) != 0 {
		t.Fatalf("healthy plan should need no adaptation, got %+v", res.Actions)
	}

	p, _ := f.store.PlanByOwner(context.Background(), "l1")
	if p.Version != 1 {
		t.Errorf("version = %d, want 1", p.Version)
	}
}
