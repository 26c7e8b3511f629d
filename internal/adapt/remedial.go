package adapt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

// remedialInjector inserts a short easy task for every topic carrying an
// unresolved medium or high severity performance alert, then resolves the
// alerts it acted on.
type remedialInjector struct {
	store plan.Store
	cfg   EngineConfig
}

func (r *remedialInjector) Name() string { return "remedial_injector" }

func (r *remedialInjector) Run(ctx context.Context, snap *snapshot) ([]Action, error) {
	alertsByTopic := make(map[string][]plan.Alert)
	for _, a := range snap.alertsFor(plan.AlertLowPerformance) {
		if a.TopicID == "" || (a.Severity != plan.SeverityMedium && a.Severity != plan.SeverityHigh) {
			continue
		}
		alertsByTopic[a.TopicID] = append(alertsByTopic[a.TopicID], a)
	}
	if len(alertsByTopic) == 0 {
		return nil, nil
	}

	byTopic := snap.perfByTopic()

	var actions []Action
	for topicID, alerts := range alertsByTopic {
		if r.hasPendingRemedial(snap, topicID) {
			continue
		}

		start, ok := findSlot(r.cfg, snap, r.cfg.RemedialMinutes, nil)
		if !ok {
			slog.Warn("no slot for remedial task", "topic_id", topicID)
			continue
		}
		end := start.Add(time.Duration(r.cfg.RemedialMinutes) * time.Minute)

		taskType := remedialType(byTopic[topicID])
		ids, err := r.store.CreateTasks(ctx, []plan.Task{{
			PlanID:          snap.plan.ID,
			TopicID:         topicID,
			Type:            taskType,
			Status:          plan.StatusPending,
			StartTime:       start,
			EndTime:         end,
			DurationMinutes: r.cfg.RemedialMinutes,
			Difficulty:      catalog.Easy,
		}})
		if err != nil {
			return actions, fmt.Errorf("creating remedial task for %s: %w", topicID, err)
		}
		for _, a := range alerts {
			if err := r.store.ResolveAlert(ctx, a.ID); err != nil {
				slog.Error("failed to resolve performance alert", "alert_id", a.ID, "error", err)
			}
		}
		actions = append(actions, Action{
			Type:            ActionInjectRemedial,
			Description:     fmt.Sprintf("injected %s remedial for %s on %s", taskType, topicID, start.Format("2006-01-02")),
			AffectedTaskIDs: ids,
			Metadata:        map[string]any{"topic_id": topicID},
		})
	}
	return actions, nil
}

// hasPendingRemedial reports whether a remedial task is already waiting
// for the topic: pending, easy, and remedial-length.
func (r *remedialInjector) hasPendingRemedial(snap *snapshot, topicID string) bool {
	for _, t := range snap.tasks {
		if t.TopicID == topicID &&
			t.Status == plan.StatusPending &&
			t.Difficulty == catalog.Easy &&
			t.DurationMinutes == r.cfg.RemedialMinutes &&
			t.Type != plan.TaskReview &&
			t.StartTime.After(snap.now) {
			return true
		}
	}
	return false
}

// remedialType picks the remediation medium: reading for low scores,
// practice for low confidence, video otherwise.
func remedialType(perfs []plan.Performance) plan.TaskType {
	if score, ok := topicScore(perfs); ok && score < 50 {
		return plan.TaskReading
	}
	if conf, ok := topicConfidence(perfs); ok && conf < 3 {
		return plan.TaskPractice
	}
	return plan.TaskVideo
}
