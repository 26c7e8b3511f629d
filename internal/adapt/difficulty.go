package adapt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

// difficultyAdjuster retunes the difficulty of future PENDING tasks from
// the learner's recorded performance on each topic.
type difficultyAdjuster struct {
	store plan.Store
}

func (a *difficultyAdjuster) Name() string { return "difficulty_adjuster" }

func (a *difficultyAdjuster) Run(ctx context.Context, snap *snapshot) ([]Action, error) {
	byTopic := snap.perfByTopic()

	forcedDown := make(map[string]bool)
	for _, al := range snap.alertsFor(plan.AlertLowPerformance) {
		if al.Severity == plan.SeverityHigh && al.TopicID != "" {
			forcedDown[al.TopicID] = true
		}
	}

	var actions []Action
	resolved := make(map[string]bool)
	for _, task := range snap.futurePending() {
		next, changed := nextDifficulty(task.Difficulty, byTopic[task.TopicID], forcedDown[task.TopicID])
		if !changed {
			continue
		}
		if err := a.store.UpdateTaskDifficulty(ctx, task.ID, next); err != nil {
			return actions, fmt.Errorf("adjusting task %s: %w", task.ID, err)
		}
		for _, al := range snap.alertsFor(plan.AlertLowPerformance) {
			if al.TopicID != task.TopicID || resolved[al.ID] {
				continue
			}
			if err := a.store.ResolveAlert(ctx, al.ID); err != nil {
				slog.Error("failed to resolve performance alert", "alert_id", al.ID, "error", err)
				continue
			}
			resolved[al.ID] = true
		}
		actions = append(actions, Action{
			Type:            ActionAdjustDifficulty,
			Description:     fmt.Sprintf("%s task on %s: %s -> %s", task.Type, task.TopicID, task.Difficulty, next),
			AffectedTaskIDs: []string{task.ID},
			Metadata: map[string]any{
				"from": string(task.Difficulty),
				"to":   string(next),
			},
		})
	}
	return actions, nil
}

// nextDifficulty applies the adjustment thresholds: raise one level at
// average score >=85 with confidence >=4 (>=90 for MEDIUM to HARD),
// lower one level at score <=60 or confidence <=2 (<=50 for MEDIUM to
// EASY). A high-severity unresolved alert forces a decrease even without
// a score signal.
func nextDifficulty(cur catalog.Difficulty, perfs []plan.Performance, forcedDown bool) (catalog.Difficulty, bool) {
	if forcedDown {
		if lowered := lower(cur); lowered != cur {
			return lowered, true
		}
		return cur, false
	}
	if len(perfs) == 0 {
		return cur, false
	}

	score, hasScore := topicScore(perfs)
	conf, hasConf := topicConfidence(perfs)

	if hasScore && hasConf && conf >= 4 {
		threshold := 85.0
		if cur == catalog.Medium {
			threshold = 90
		}
		if score >= threshold {
			if raised := raise(cur); raised != cur {
				return raised, true
			}
			return cur, false
		}
	}

	lowScore := hasScore && score <= 60
	lowConf := hasConf && conf <= 2
	if lowScore || lowConf {
		if cur == catalog.Medium && hasScore && score > 50 {
			return cur, false
		}
		if lowered := lower(cur); lowered != cur {
			return lowered, true
		}
	}
	return cur, false
}

func raise(d catalog.Difficulty) catalog.Difficulty {
	return catalog.FromLevel(d.Level() + 1)
}

func lower(d catalog.Difficulty) catalog.Difficulty {
	return catalog.FromLevel(d.Level() - 1)
}
