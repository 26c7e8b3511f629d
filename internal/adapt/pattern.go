package adapt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/studyplan/internal/plan"
)

// patternAdapter detects when a learner consistently studies at a
// different time of day than stated and moves future tasks toward the
// observed window, eventually updating the stored preference.
type patternAdapter struct {
	store plan.Store
	cfg   EngineConfig
}

func (p *patternAdapter) Name() string { return "pattern_adapter" }

func (p *patternAdapter) Run(ctx context.Context, snap *snapshot) ([]Action, error) {
	detected, ok := p.detect(snap)
	if !ok || detected == snap.prefs.PreferredTime {
		return nil, nil
	}

	targetHour := detected.MidpointHour()
	var candidates, movedIDs []string
	var actions []Action
	for _, task := range snap.futurePending() {
		if plan.BucketHour(task.StartTime.Hour()) == detected {
			continue
		}
		candidates = append(candidates, task.ID)
		if len(movedIDs) >= p.cfg.MaxRetimedTasks {
			continue
		}

		start := midnight(task.StartTime).Add(time.Duration(targetHour) * time.Hour)
		end := start.Add(time.Duration(task.DurationMinutes) * time.Minute)
		if err := p.store.UpdateTaskWindow(ctx, task.ID, start, end, true); err != nil {
			return actions, fmt.Errorf("re-timing task %s: %w", task.ID, err)
		}
		movedIDs = append(movedIDs, task.ID)
		actions = append(actions, Action{
			Type:            ActionAdaptPattern,
			Description:     fmt.Sprintf("moved %s task on %s toward the learner's %s window", task.Type, task.TopicID, detected),
			AffectedTaskIDs: []string{task.ID},
			Metadata: map[string]any{
				"detected": string(detected),
				"stated":   string(snap.prefs.PreferredTime),
			},
		})
	}

	// Once enough of the plan follows the observed pattern, make it the
	// stored preference and clear the pattern alerts.
	if len(candidates) > 0 && float64(len(movedIDs)) >= p.cfg.PatternSwitchFraction*float64(len(candidates)) {
		if err := p.store.UpdatePreferredTime(ctx, snap.prefs.OwnerID, detected); err != nil {
			slog.Error("failed to update preferred time", "owner_id", snap.prefs.OwnerID, "error", err)
		} else {
			for _, a := range snap.alertsFor(plan.AlertStudyPattern) {
				if err := p.store.ResolveAlert(ctx, a.ID); err != nil {
					slog.Error("failed to resolve pattern alert", "alert_id", a.ID, "error", err)
				}
			}
			actions = append(actions, Action{
				Type:        ActionAdaptPattern,
				Description: fmt.Sprintf("updated preferred study time to %s", detected),
				Metadata:    map[string]any{"preferred_time": string(detected)},
			})
		}
	}
	return actions, nil
}

// detect buckets completed-task start times and returns the plurality
// bucket once enough completions exist.
func (p *patternAdapter) detect(snap *snapshot) (plan.TimeOfDay, bool) {
	counts := make(map[plan.TimeOfDay]int)
	total := 0
	for _, t := range snap.completedTasks() {
		counts[plan.BucketHour(t.StartTime.Hour())]++
		total++
	}
	if total < p.cfg.PatternMinCompletions {
		return "", false
	}
	var best plan.TimeOfDay
	bestCount := 0
	for _, bucket := range []plan.TimeOfDay{plan.Morning, plan.Afternoon, plan.Evening, plan.Night} {
		if counts[bucket] > bestCount {
			best, bestCount = bucket, counts[bucket]
		}
	}
	// Plurality means strictly more than every other bucket.
	for bucket, n := range counts {
		if bucket != best && n == bestCount {
			return "", false
		}
	}
	return best, true
}
