package adapt_test

import (
	"context"
	"testing"

	"github.com/p-n-ai/studyplan/internal/adapt"
	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

func addPerformanceAlert(t *testing.T, f *fixture, topicID string, sev plan.Severity) string {
	t.Helper()
	id, err := f.store.CreateAlert(context.Background(), plan.Alert{
		OwnerID:  "l1",
		PlanID:   f.planID,
		Type:     plan.AlertLowPerformance,
		Severity: sev,
		TopicID:  topicID,
	})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	return id
}

func findRemedial(t *testing.T, f *fixture, topicID string) (plan.Task, bool) {
	t.Helper()
	tasks, err := f.store.TasksByPlan(context.Background(), f.planID, plan.TaskFilter{Status: plan.StatusPending})
	if err != nil {
		t.Fatalf("TasksByPlan: %v", err)
	}
	for _, task := range tasks {
		if task.TopicID == topicID && task.DurationMinutes == 45 && task.Difficulty == catalog.Easy {
			return task, true
		}
	}
	return plan.Task{}, false
}

func TestRemedialInjector_TypeSelection(t *testing.T) {
	cases := []struct {
		name       string
		score      *float64
		confidence int
		want       plan.TaskType
	}{
		{"low score gets reading", fptr(42), 3, plan.TaskReading},
		{"low confidence gets practice", fptr(65), 2, plan.TaskPractice},
		{"otherwise video", fptr(65), 4, plan.TaskVideo},
		{"no history gets video", nil, 0, plan.TaskVideo},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			if tc.score != nil || tc.confidence > 0 {
				f.addPerformance(t, "fractions", tc.score, tc.confidence)
			}
			alertID := addPerformanceAlert(t, f, "fractions", plan.SeverityMedium)

			res, err := f.engine(nil).Run(ctx, "l1")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Summary[adapt.ActionInjectRemedial] != 1 {
				t.Fatalf("want one remedial, got %+v", res.Summary)
			}

			task, ok := findRemedial(t, f, "fractions")
			if !ok {
				t.Fatal("remedial task not created")
			}
			if task.Type != tc.want {
				t.Errorf("remedial type = %s, want %s", task.Type, tc.want)
			}
			if !task.StartTime.After(aNow) {
				t.Errorf("remedial scheduled in the past: %v", task.StartTime)
			}

			open, _ := f.store.UnresolvedAlerts(ctx, "l1")
			for _, a := range open {
				if a.ID == alertID {
					t.Error("triggering alert should be resolved")
				}
			}
		})
	}
}

func TestRemedialInjector_IgnoresLowSeverity(t *testing.T) {
	f := newFixture(t)
	addPerformanceAlert(t, f, "fractions", plan.SeverityLow)

	res, err := f.engine(nil).Run(context.Background(), "l1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary[adapt.ActionInjectRemedial] != 0 {
		t.Errorf("low-severity alerts should not inject, got %+v", res.Summary)
	}
}

func TestRemedialInjector_OnePendingRemedialPerTopic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addPerformanceAlert(t, f, "fractions", plan.SeverityHigh)

	if _, err := f.engine(nil).Run(ctx, "l1"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// A fresh alert arrives while the remedial task is still pending.
	addPerformanceAlert(t, f, "fractions", plan.SeverityHigh)
	res, err := f.engine(nil).Run(ctx, "l1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Summary[adapt.ActionInjectRemedial] != 0 {
		t.Errorf("pending remedial should block a second one, got %+v", res.Summary)
	}
}

func TestRemedialInjector_TwoTopicsGetDisjointSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addPerformanceAlert(t, f, "fractions", plan.SeverityMedium)
	addPerformanceAlert(t, f, "decimals", plan.SeverityMedium)

	res, err := f.engine(nil).Run(ctx, "l1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary[adapt.ActionInjectRemedial] != 2 {
		t.Fatalf("want two remedials, got %+v", res.Summary)
	}

	a, okA := findRemedial(t, f, "fractions")
	b, okB := findRemedial(t, f, "decimals")
	if !okA || !okB {
		t.Fatal("both remedial tasks should exist")
	}
	if a.StartTime.Before(b.EndTime) && b.StartTime.Before(a.EndTime) {
		t.Fatalf("remedial windows overlap: %v-%v vs %v-%v", a.StartTime, a.EndTime, b.StartTime, b.EndTime)
	}
}
