// Package scheduler builds the initial day-by-day study plan: topic
// ordering, slot allocation, difficulty progression, spaced-repetition
// review placement, and advisory validation.
package scheduler

import (
	"time"

	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

// TaskSpec is a study task being assembled before persistence. StartTime
// and EndTime stay zero until the schedule is materialized.
type TaskSpec struct {
	TopicID         string
	Type            plan.TaskType
	Difficulty      catalog.Difficulty
	DurationMinutes int
	StartTime       time.Time
	EndTime         time.Time
}

// IsReview reports whether the task is a spaced-repetition review.
func (s *TaskSpec) IsReview() bool {
	return s.Type == plan.TaskReview
}

// Day is one calendar day of the schedule with its time budget.
type Day struct {
	Date            time.Time // midnight, schedule-local
	CapacityMinutes int
	Specs           []*TaskSpec
}

// UsedMinutes sums the durations placed on the day.
func (d *Day) UsedMinutes() int {
	total := 0
	for _, s := range d.Specs {
		total += s.DurationMinutes
	}
	return total
}

// SpareMinutes returns the remaining capacity for the day.
func (d *Day) SpareMinutes() int {
	return d.CapacityMinutes - d.UsedMinutes()
}

// Schedule is the assembled calendar for one plan.
type Schedule struct {
	Days     []*Day
	Start    time.Time
	ExamDate time.Time
}

// FirstStudyDay returns the index of the first day holding a non-review
// task for the topic.
func (s *Schedule) FirstStudyDay(topicID string) (int, bool) {
	for i, d := range s.Days {
		for _, spec := range d.Specs {
			if spec.TopicID == topicID && !spec.IsReview() {
				return i, true
			}
		}
	}
	return 0, false
}

// ReviewDays returns the day indexes holding review tasks for the topic,
// in calendar order.
func (s *Schedule) ReviewDays(topicID string) []int {
	var out []int
	for i, d := range s.Days {
		for _, spec := range d.Specs {
			if spec.TopicID == topicID && spec.IsReview() {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
