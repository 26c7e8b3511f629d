package scheduler

import (
	"fmt"
	"time"

	"github.com/p-n-ai/studyplan/internal/catalog"
)

// IssueType classifies a validation finding.
type IssueType string

const (
	IssuePrerequisite   IssueType = "PREREQUISITE_VIOLATION"
	IssueWorkload       IssueType = "DAY_OVERLOADED"
	IssueDifficultyJump IssueType = "DIFFICULTY_JUMP"
	IssueReviewCoverage IssueType = "INSUFFICIENT_REVIEWS"
)

// Issue is one advisory validation finding.
type Issue struct {
	Type    IssueType
	Message string
	TopicID string
	Date    time.Time
}

// Report aggregates validation findings. Callers may persist an invalid
// plan; the validator never blocks.
type Report struct {
	IsValid bool
	Issues  []Issue
}

// ValidatorConfig tunes the thresholds. Zero values take the defaults.
type ValidatorConfig struct {
	MaxDailyMinutes   int     // default 240 (4 hours)
	MaxDifficultyJump float64 // default 1 level between consecutive days
	MinReviews        int     // default 2 per topic
	MinReviewGapDays  int     // default 2 days between reviews
}

func (c ValidatorConfig) withDefaults() ValidatorConfig {
	if c.MaxDailyMinutes == 0 {
		c.MaxDailyMinutes = 240
	}
	if c.MaxDifficultyJump == 0 {
		c.MaxDifficultyJump = 1
	}
	if c.MinReviews == 0 {
		c.MinReviews = 2
	}
	if c.MinReviewGapDays == 0 {
		c.MinReviewGapDays = 2
	}
	return c
}

// Validator runs four independent, non-mutating checks over an assembled
// schedule.
type Validator struct {
	cfg ValidatorConfig
}

// NewValidator creates a validator.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg.withDefaults()}
}

// Validate returns a structured report of prerequisite, workload,
// difficulty-progression, and review-spacing findings.
func (v *Validator) Validate(s *Schedule, topics []catalog.Topic) Report {
	var issues []Issue
	issues = append(issues, v.checkPrerequisites(s, topics)...)
	issues = append(issues, v.checkWorkload(s)...)
	issues = append(issues, v.checkDifficultyProgression(s)...)
	issues = append(issues, v.checkReviews(s, topics)...)

	return Report{IsValid: len(issues) == 0, Issues: issues}
}

func (v *Validator) checkPrerequisites(s *Schedule, topics []catalog.Topic) []Issue {
	known := make(map[string]bool, len(topics))
	for _, t := range topics {
		known[t.ID] = true
	}

	var issues []Issue
	for _, t := range topics {
		topicDay, scheduled := s.FirstStudyDay(t.ID)
		if !scheduled {
			continue
		}
		for _, prereq := range t.Prerequisites {
			if !known[prereq] {
				issues = append(issues, Issue{
					Type:    IssuePrerequisite,
					TopicID: t.ID,
					Message: fmt.Sprintf("topic %s references unknown prerequisite %s", t.ID, prereq),
				})
				continue
			}
			prereqDay, prereqScheduled := s.FirstStudyDay(prereq)
			if !prereqScheduled {
				issues = append(issues, Issue{
					Type:    IssuePrerequisite,
					TopicID: t.ID,
					Message: fmt.Sprintf("prerequisite %s of %s is not scheduled", prereq, t.ID),
				})
				continue
			}
			if prereqDay > topicDay {
				issues = append(issues, Issue{
					Type:    IssuePrerequisite,
					TopicID: t.ID,
					Date:    s.Days[topicDay].Date,
					Message: fmt.Sprintf("prerequisite %s scheduled after %s", prereq, t.ID),
				})
			}
		}
	}
	return issues
}

func (v *Validator) checkWorkload(s *Schedule) []Issue {
	var issues []Issue
	for _, d := range s.Days {
		used := d.UsedMinutes()
		if used > v.cfg.MaxDailyMinutes {
			issues = append(issues, Issue{
				Type: IssueWorkload,
				Date: d.Date,
				Message: fmt.Sprintf("day %s holds %d minutes, %d over the %d-minute limit",
					d.Date.Format("2006-01-02"), used, used-v.cfg.MaxDailyMinutes, v.cfg.MaxDailyMinutes),
			})
		}
	}
	return issues
}

func (v *Validator) checkDifficultyProgression(s *Schedule) []Issue {
	type dayAvg struct {
		date time.Time
		avg  float64
	}
	var avgs []dayAvg
	for _, d := range s.Days {
		if len(d.Specs) == 0 {
			continue
		}
		sum := 0
		for _, spec := range d.Specs {
			sum += spec.Difficulty.Level()
		}
		avgs = append(avgs, dayAvg{date: d.Date, avg: float64(sum) / float64(len(d.Specs))})
	}

	var issues []Issue
	for i := 1; i < len(avgs); i++ {
		jump := avgs[i].avg - avgs[i-1].avg
		if jump < 0 {
			jump = -jump
		}
		if jump > v.cfg.MaxDifficultyJump {
			issues = append(issues, Issue{
				Type: IssueDifficultyJump,
				Date: avgs[i].date,
				Message: fmt.Sprintf("difficulty jumps %.1f levels from %s to %s",
					jump, avgs[i-1].date.Format("2006-01-02"), avgs[i].date.Format("2006-01-02")),
			})
		}
	}
	return issues
}

func (v *Validator) checkReviews(s *Schedule, topics []catalog.Topic) []Issue {
	var issues []Issue
	for _, t := range topics {
		if _, scheduled := s.FirstStudyDay(t.ID); !scheduled {
			continue
		}
		reviewDays := s.ReviewDays(t.ID)
		if len(reviewDays) < v.cfg.MinReviews {
			issues = append(issues, Issue{
				Type:    IssueReviewCoverage,
				TopicID: t.ID,
				Message: fmt.Sprintf("topic %s has %d reviews, want at least %d", t.ID, len(reviewDays), v.cfg.MinReviews),
			})
			continue
		}
		for i := 1; i < len(reviewDays); i++ {
			gap := s.Days[reviewDays[i]].Date.Sub(s.Days[reviewDays[i-1]].Date).Hours() / 24
			if int(gap) < v.cfg.MinReviewGapDays {
				issues = append(issues, Issue{
					Type:    IssueReviewCoverage,
					TopicID: t.ID,
					Message: fmt.Sprintf("reviews of %s are only %d days apart", t.ID, int(gap)),
				})
			}
		}
	}
	return issues
}
