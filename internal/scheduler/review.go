package scheduler

import (
	"log/slog"
	"math"
	"time"

	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

// ReviewConfig tunes spaced-repetition insertion. Zero values take the defaults.
type ReviewConfig struct {
	ReviewMinutes  int // fixed review task length (default 20)
	DefaultCount   int // reviews per topic (default 2)
	WeakTopicCount int // reviews for diagnostic-flagged weak topics (default 4)
	SnapWindowDays int // max distance when snapping to a schedule day (default 2)
	MinGapDays     int // minimum spacing between two reviews of a topic (default 2)
}

func (c ReviewConfig) withDefaults() ReviewConfig {
	if c.ReviewMinutes == 0 {
		c.ReviewMinutes = 20
	}
	if c.DefaultCount == 0 {
		c.DefaultCount = 2
	}
	if c.WeakTopicCount == 0 {
		c.WeakTopicCount = 4
	}
	if c.SnapWindowDays == 0 {
		c.SnapWindowDays = 2
	}
	if c.MinGapDays == 0 {
		c.MinGapDays = 2
	}
	return c
}

// ReviewScheduler inserts spaced-repetition review tasks into the spare
// capacity of an allocated schedule.
type ReviewScheduler struct {
	cfg ReviewConfig
}

// NewReviewScheduler creates a review scheduler.
func NewReviewScheduler(cfg ReviewConfig) *ReviewScheduler {
	return &ReviewScheduler{cfg: cfg.withDefaults()}
}

// BaseIntervalDays returns the first review interval for a difficulty:
// harder material is revisited sooner.
func BaseIntervalDays(d catalog.Difficulty) float64 {
	switch d {
	case catalog.Hard:
		return 3
	case catalog.Medium:
		return 5
	default:
		return 7
	}
}

// ReviewMultiplier spreads successive reviews further apart.
func ReviewMultiplier(i int) float64 {
	if i == 0 {
		return 1
	}
	return float64(i) * 1.5
}

// PerformanceFactor scales review frequency inversely with an observed
// score: weaker learners review more often. Range [0.7, 1.3].
func PerformanceFactor(score *float64) float64 {
	if score == nil {
		return 1.0
	}
	f := 1.3 - 0.6*(*score/100)
	return math.Min(1.3, math.Max(0.7, f))
}

// Insert computes review dates per topic from the interval formula
// baseInterval(difficulty) x multiplier(i) x performanceFactor, snaps each
// to a nearby schedule day, and appends a fixed-length review where spare
// capacity allows. Reviews that fit nowhere are dropped, not rescheduled.
// Returns the number of reviews placed.
func (r *ReviewScheduler) Insert(s *Schedule, topics []catalog.Topic, diag *plan.Diagnostic) int {
	weak := make(map[string]bool)
	var factor float64 = 1.0
	if diag != nil {
		factor = PerformanceFactor(diag.Score)
		for _, id := range diag.WeakTopics {
			weak[id] = true
		}
	}

	placed := 0
	for _, topic := range topics {
		firstIdx, ok := s.FirstStudyDay(topic.ID)
		if !ok {
			continue
		}
		firstDate := s.Days[firstIdx].Date

		count := r.cfg.DefaultCount
		if weak[topic.ID] {
			count = r.cfg.WeakTopicCount
		}

		for i := 0; i < count; i++ {
			interval := BaseIntervalDays(topic.Difficulty) * ReviewMultiplier(i) * factor
			target := firstDate.AddDate(0, 0, int(math.Round(interval)))
			if !target.Before(s.ExamDate) {
				continue
			}

			dayIdx, ok := r.nearestDay(s, target, firstIdx, topic.ID)
			if !ok {
				continue
			}

			day := s.Days[dayIdx]
			if day.SpareMinutes() < r.cfg.ReviewMinutes {
				slog.Debug("no spare capacity for review, dropping",
					"topic", topic.ID,
					"date", day.Date.Format("2006-01-02"),
				)
				continue
			}

			day.Specs = append(day.Specs, &TaskSpec{
				TopicID:         topic.ID,
				Type:            plan.TaskReview,
				Difficulty:      topic.Difficulty,
				DurationMinutes: r.cfg.ReviewMinutes,
			})
			placed++
		}
	}
	return placed
}

// nearestDay snaps a target date to the closest schedule day within the
// snap window, strictly after the topic's first study day. Days within
// the minimum gap of a day already holding a review for the topic are
// not candidates, so successive targets on a sparse calendar cannot
// collapse onto the same or adjacent days.
func (r *ReviewScheduler) nearestDay(s *Schedule, target time.Time, after int, topicID string) (int, bool) {
	best := -1
	bestDist := r.cfg.SnapWindowDays + 1
	for i := after + 1; i < len(s.Days); i++ {
		dist := int(math.Abs(s.Days[i].Date.Sub(target).Hours() / 24))
		if dist >= bestDist {
			continue
		}
		if r.nearExistingReview(s, i, topicID) {
			continue
		}
		best, bestDist = i, dist
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// nearExistingReview reports whether any day closer than the minimum gap
// to s.Days[idx] already holds a review for the topic.
func (r *ReviewScheduler) nearExistingReview(s *Schedule, idx int, topicID string) bool {
	for _, day := range s.Days {
		dist := math.Abs(day.Date.Sub(s.Days[idx].Date).Hours() / 24)
		if dist >= float64(r.cfg.MinGapDays) {
			continue
		}
		for _, spec := range day.Specs {
			if spec.IsReview() && spec.TopicID == topicID {
				return true
			}
		}
	}
	return false
}
