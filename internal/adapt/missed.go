package adapt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/studyplan/internal/plan"
)

// missedRescheduler moves past-due PENDING tasks to the next open slot,
// preserving their original time window, and resolves the missed-task
// alerts pointing at them.
type missedRescheduler struct {
	store plan.Store
	cfg   EngineConfig
}

func (r *missedRescheduler) Name() string { return "missed_rescheduler" }

func (r *missedRescheduler) Run(ctx context.Context, snap *snapshot) ([]Action, error) {
	var actions []Action
	for _, task := range snap.missedTasks() {
		start, ok := findSlot(r.cfg, snap, task.DurationMinutes, map[string]bool{task.ID: true})
		if !ok {
			// Last resort: the day before the exam, at the fallback
			// hour, overlap accepted.
			start, ok = r.lastResortSlot(snap)
		}
		if !ok {
			slog.Warn("no slot for missed task, leaving it missed",
				"task_id", task.ID,
				"topic_id", task.TopicID,
			)
			continue
		}

		end := start.Add(time.Duration(task.DurationMinutes) * time.Minute)
		if err := r.store.UpdateTaskWindow(ctx, task.ID, start, end, true); err != nil {
			return actions, fmt.Errorf("rescheduling task %s: %w", task.ID, err)
		}
		for _, a := range snap.alertsFor(plan.AlertMissedTask) {
			if a.TaskID != task.ID {
				continue
			}
			if err := r.store.ResolveAlert(ctx, a.ID); err != nil {
				slog.Error("failed to resolve missed-task alert", "alert_id", a.ID, "error", err)
			}
		}

		actions = append(actions, Action{
			Type:            ActionRescheduleMissed,
			Description:     fmt.Sprintf("moved missed %s task on %s to %s", task.Type, task.TopicID, start.Format(time.RFC3339)),
			AffectedTaskIDs: []string{task.ID},
			Metadata: map[string]any{
				"previous_start": task.StartTime,
				"new_start":      start,
			},
		})
	}
	return actions, nil
}

func (r *missedRescheduler) lastResortSlot(snap *snapshot) (time.Time, bool) {
	day := midnight(snap.plan.ExamDate).AddDate(0, 0, -1)
	if !day.After(midnight(snap.now)) {
		return time.Time{}, false
	}
	return day.Add(time.Duration(r.cfg.FallbackHour) * time.Hour), true
}
