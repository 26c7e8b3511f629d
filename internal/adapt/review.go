package adapt

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/p-n-ai/studyplan/internal/plan"
	"github.com/p-n-ai/studyplan/internal/scheduler"
)

// spacedRepetition schedules follow-up reviews for topics the learner has
// actually completed, using the same interval formula as the initial plan
// but driven by recorded performance instead of the diagnostic.
type spacedRepetition struct {
	store plan.Store
	cfg   EngineConfig
}

func (s *spacedRepetition) Name() string { return "spaced_repetition" }

func (s *spacedRepetition) Run(ctx context.Context, snap *snapshot) ([]Action, error) {
	byTopic := snap.perfByTopic()

	// Latest completion per topic anchors the next interval; topics with
	// a pending review already on the calendar are left alone.
	lastDone := make(map[string]plan.Task)
	reviewCount := make(map[string]int)
	pendingReview := make(map[string]bool)
	for _, t := range snap.tasks {
		if t.Type == plan.TaskReview {
			reviewCount[t.TopicID]++
			if t.Status == plan.StatusPending && t.StartTime.After(snap.now) {
				pendingReview[t.TopicID] = true
			}
		}
		if t.Status == plan.StatusCompleted && t.Type != plan.TaskReview {
			if cur, ok := lastDone[t.TopicID]; !ok || t.EndTime.After(cur.EndTime) {
				lastDone[t.TopicID] = t
			}
		}
	}

	var actions []Action
	for topicID, anchor := range lastDone {
		if pendingReview[topicID] {
			continue
		}

		var scorePtr *float64
		if score, ok := topicScore(byTopic[topicID]); ok {
			scorePtr = &score
		}
		interval := scheduler.BaseIntervalDays(anchor.Difficulty) *
			scheduler.ReviewMultiplier(reviewCount[topicID]) *
			scheduler.PerformanceFactor(scorePtr)

		target := midnight(anchor.EndTime).AddDate(0, 0, int(math.Round(interval)))
		if !target.After(midnight(snap.now)) {
			target = midnight(snap.now).AddDate(0, 0, 1)
		}
		if !target.Before(midnight(snap.plan.ExamDate)) {
			continue
		}

		start, ok := s.slotNear(snap, target)
		if !ok {
			continue
		}
		end := start.Add(time.Duration(s.cfg.ReviewMinutes) * time.Minute)
		ids, err := s.store.CreateTasks(ctx, []plan.Task{{
			PlanID:          snap.plan.ID,
			TopicID:         topicID,
			Type:            plan.TaskReview,
			Status:          plan.StatusPending,
			StartTime:       start,
			EndTime:         end,
			DurationMinutes: s.cfg.ReviewMinutes,
			Difficulty:      anchor.Difficulty,
		}})
		if err != nil {
			return actions, fmt.Errorf("creating review for %s: %w", topicID, err)
		}
		actions = append(actions, Action{
			Type:            ActionScheduleReview,
			Description:     fmt.Sprintf("scheduled review of %s for %s", topicID, start.Format("2006-01-02")),
			AffectedTaskIDs: ids,
			Metadata: map[string]any{
				"interval_days": interval,
				"review_index":  reviewCount[topicID],
			},
		})
	}
	return actions, nil
}

// slotNear tries the target day first, then snaps up to two days either
// side, nearest first, honoring availability and the daily budget. The
// returned slot is claimed in the run's occupancy ledger.
func (s *spacedRepetition) slotNear(snap *snapshot, target time.Time) (time.Time, bool) {
	snap.occ.mu.Lock()
	defer snap.occ.mu.Unlock()

	tomorrow := midnight(snap.now).AddDate(0, 0, 1)
	examDay := midnight(snap.plan.ExamDate)
	for _, offset := range []int{0, 1, -1, 2, -2} {
		day := target.AddDate(0, 0, offset)
		if day.Before(tomorrow) || !day.Before(examDay) {
			continue
		}
		if !snap.prefs.AvailableOn(day.Weekday()) {
			continue
		}
		occupied := append(snap.occupiedOn(day, nil), snap.occ.onDay(day)...)
		if usedMinutes(occupied)+s.cfg.ReviewMinutes > snap.prefs.MinutesPerDay() {
			continue
		}
		if start, ok := slotOn(s.cfg, day, s.cfg.ReviewMinutes, occupied); ok {
			snap.occ.claim(start, s.cfg.ReviewMinutes)
			return start, true
		}
	}
	return time.Time{}, false
}
