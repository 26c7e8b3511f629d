package adapt_test

import (
	"context"
	"testing"
	"time"

	"github.com/p-n-ai/studyplan/internal/adapt"
	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

func reviewsFor(t *testing.T, f *fixture, topicID string) []plan.Task {
	t.Helper()
	tasks, err := f.store.TasksByPlan(context.Background(), f.planID, plan.TaskFilter{})
	if err != nil {
		t.Fatalf("TasksByPlan: %v", err)
	}
	var out []plan.Task
	for _, task := range tasks {
		if task.Type == plan.TaskReview && task.TopicID == topicID {
			out = append(out, task)
		}
	}
	return out
}

func TestSpacedRepetition_SchedulesReviewAfterCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// MEDIUM topic completed two days ago, scoring 80: interval is
	// 5 * 1.0 * (1.3 - 0.6*0.8) = 4.1 days from completion.
	done := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	f.addTask(t, "algebra", plan.TaskQuiz, plan.StatusCompleted, done, 60, catalog.Medium)
	f.addPerformance(t, "algebra", fptr(80), 4)

	res, err := f.engine(nil).Run(ctx, "l1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary[adapt.ActionScheduleReview] != 1 {
		t.Fatalf("want one scheduled review, got %+v", res.Summary)
	}

	reviews := reviewsFor(t, f, "algebra")
	if len(reviews) != 1 {
		t.Fatalf("want 1 review task, got %d", len(reviews))
	}
	r := reviews[0]
	if r.DurationMinutes != 20 || r.Difficulty != catalog.Medium {
		t.Errorf("review shape wrong: %d min %s", r.DurationMinutes, r.Difficulty)
	}
	target := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	gap := r.Day().Sub(target).Hours() / 24
	if gap < -2 || gap > 2 {
		t.Errorf("review on %v, want within 2 days of %v", r.Day(), target)
	}
}

func TestSpacedRepetition_OncePerTopicPerRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addTask(t, "algebra", plan.TaskQuiz, plan.StatusCompleted, time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC), 60, catalog.Medium)
	f.addPerformance(t, "algebra", fptr(80), 4)

	if _, err := f.engine(nil).Run(ctx, "l1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	res, err := f.engine(nil).Run(ctx, "l1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Summary[adapt.ActionScheduleReview] != 0 {
		t.Errorf("pending review should block a second one, got %+v", res.Summary)
	}
	if got := len(reviewsFor(t, f, "algebra")); got != 1 {
		t.Errorf("want 1 review after two runs, got %d", got)
	}
}

func TestSpacedRepetition_NeverPastExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Completed just before the exam: every interval lands on or after
	// exam day.
	f.addTask(t, "calculus", plan.TaskQuiz, plan.StatusCompleted, time.Date(2026, 4, 4, 10, 0, 0, 0, time.UTC), 60, catalog.Easy)
	f.addPerformance(t, "calculus", fptr(70), 3)

	res, err := f.engine(nil).Run(ctx, "l1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary[adapt.ActionScheduleReview] != 0 {
		t.Errorf("no review fits before the exam, got %+v", res.Summary)
	}
}

func TestSpacedRepetition_LowScoreShortensInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// HARD topic, score 30: 3 * 1.0 * (1.3 - 0.18) = 3.4 days.
	done := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	f.addTask(t, "proofs", plan.TaskPractice, plan.StatusCompleted, done, 60, catalog.Hard)
	f.addPerformance(t, "proofs", fptr(30), 3)

	if _, err := f.engine(nil).Run(ctx, "l1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	reviews := reviewsFor(t, f, "proofs")
	if len(reviews) != 1 {
		t.Fatalf("want 1 review, got %d", len(reviews))
	}
	target := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	gap := reviews[0].Day().Sub(target).Hours() / 24
	if gap < -2 || gap > 2 {
		t.Errorf("review on %v, want near %v", reviews[0].Day(), target)
	}
}

func TestSpacedRepetition_TwoTopicsGetDisjointSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two topics finished the same day aim their reviews at the same
	// target date.
	done := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	f.addTask(t, "algebra", plan.TaskQuiz, plan.StatusCompleted, done, 60, catalog.Medium)
	f.addTask(t, "geometry", plan.TaskQuiz, plan.StatusCompleted, done.Add(time.Hour), 60, catalog.Medium)
	f.addPerformance(t, "algebra", fptr(80), 3)
	f.addPerformance(t, "geometry", fptr(80), 3)

	res, err := f.engine(nil).Run(ctx, "l1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary[adapt.ActionScheduleReview] != 2 {
		t.Fatalf("want two scheduled reviews, got %+v", res.Summary)
	}

	ra, rb := reviewsFor(t, f, "algebra"), reviewsFor(t, f, "geometry")
	if len(ra) != 1 || len(rb) != 1 {
		t.Fatalf("want one review per topic, got %d and %d", len(ra), len(rb))
	}
	a, b := ra[0], rb[0]
	if a.StartTime.Before(b.EndTime) && b.StartTime.Before(a.EndTime) {
		t.Fatalf("review windows overlap: %v-%v vs %v-%v", a.StartTime, a.EndTime, b.StartTime, b.EndTime)
	}
}
