package adapt_test

import (
	"context"
	"testing"
	"time"

	"github.com/p-n-ai/studyplan/internal/adapt"
	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

func futureTasksOn(t *testing.T, f *fixture, day time.Time) []plan.Task {
	t.Helper()
	tasks, err := f.store.TasksByPlan(context.Background(), f.planID, plan.TaskFilter{Status: plan.StatusPending})
	if err != nil {
		t.Fatalf("TasksByPlan: %v", err)
	}
	var out []plan.Task
	for _, task := range tasks {
		if task.Day().Equal(day) {
			out = append(out, task)
		}
	}
	return out
}

func TestWorkloadRebalancer_SpreadsOverloadedDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Five tasks piled on one day, one on the next: mean 3/day, the
	// heavy day at 167% with a move budget of ceil(5 - 3.3) = 2.
	heavy := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	var heavyIDs []string
	for i, minutes := range []int{60, 45, 30, 50, 40} {
		id := f.addTask(t, "algebra", plan.TaskReading, plan.StatusPending,
			heavy.Add(time.Duration(i)*time.Hour), minutes, catalog.Easy)
		heavyIDs = append(heavyIDs, id)
	}
	f.addTask(t, "geometry", plan.TaskReading, plan.StatusPending,
		time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC), 60, catalog.Easy)

	res, err := f.engine(nil).Run(ctx, "l1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary[adapt.ActionRebalanceDay] != 2 {
		t.Fatalf("want 2 moves, got %+v", res.Summary)
	}

	remaining := futureTasksOn(t, f, midnightOf(heavy))
	if len(remaining) != 3 {
		t.Errorf("heavy day should keep 3 tasks, has %d", len(remaining))
	}

	// The smallest durations moved, clock time preserved.
	moved30 := f.taskByID(t, heavyIDs[2])
	moved40 := f.taskByID(t, heavyIDs[4])
	if moved30.Day().Equal(midnightOf(heavy)) || moved40.Day().Equal(midnightOf(heavy)) {
		t.Error("the 30- and 40-minute tasks should have moved")
	}
	if moved30.StartTime.Hour() != 11 || moved40.StartTime.Hour() != 13 {
		t.Errorf("time of day not preserved: %v, %v", moved30.StartTime, moved40.StartTime)
	}
	if moved30.OriginalStartTime == nil {
		t.Error("move must preserve the original window")
	}
	if !moved30.Day().After(midnightOf(heavy)) {
		t.Errorf("tasks must move to a later day, got %v", moved30.Day())
	}
}

func TestWorkloadRebalancer_SkipsSmallPlans(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		f.addTask(t, "algebra", plan.TaskReading, plan.StatusPending,
			day.Add(time.Duration(i)*time.Hour), 30, catalog.Easy)
	}

	res, err := f.engine(nil).Run(context.Background(), "l1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary[adapt.ActionRebalanceDay] != 0 {
		t.Errorf("fewer than 5 future tasks should not rebalance, got %+v", res.Summary)
	}
}

func TestWorkloadRebalancer_NeverMovesReviews(t *testing.T) {
	f := newFixture(t)
	heavy := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)

	reviewID := f.addTask(t, "algebra", plan.TaskReview, plan.StatusPending, heavy, 20, catalog.Easy)
	for i := 1; i < 5; i++ {
		f.addTask(t, "algebra", plan.TaskReading, plan.StatusPending,
			heavy.Add(time.Duration(i)*time.Hour), 60, catalog.Easy)
	}
	f.addTask(t, "geometry", plan.TaskReading, plan.StatusPending,
		time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC), 60, catalog.Easy)

	if _, err := f.engine(nil).Run(context.Background(), "l1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	review := f.taskByID(t, reviewID)
	if !review.Day().Equal(midnightOf(heavy)) {
		t.Errorf("review moved off its day to %v", review.Day())
	}
}

func midnightOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
