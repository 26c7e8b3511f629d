// Package plan defines the study-plan domain entities and the store
// contract the scheduling and adaptation engines run against.
package plan

import (
	"time"

	"github.com/p-n-ai/studyplan/internal/catalog"
)

// TaskType identifies the kind of study work a task represents.
type TaskType string

const (
	TaskReading  TaskType = "READING"
	TaskVideo    TaskType = "VIDEO"
	TaskQuiz     TaskType = "QUIZ"
	TaskPractice TaskType = "PRACTICE"
	TaskReview   TaskType = "REVIEW"
)

// TaskStatus tracks a task through its lifecycle. Tasks are never deleted;
// abandoned work is marked SKIPPED instead.
type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusSkipped    TaskStatus = "SKIPPED"
)

// CanTransition reports whether a status change is allowed. PENDING may
// move anywhere; IN_PROGRESS may only finish or be skipped; COMPLETED and
// SKIPPED are terminal.
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusInProgress || to == StatusCompleted || to == StatusSkipped
	case StatusInProgress:
		return to == StatusCompleted || to == StatusSkipped
	}
	return false
}

// StudyPlan is the container of all tasks for one learner, bounded by the
// plan start date and the exam date.
type StudyPlan struct {
	ID           string
	OwnerID      string
	StartDate    time.Time
	EndDate      time.Time
	ExamDate     time.Time
	Version      int
	Personalized bool
	CreatedAt    time.Time
}

// Task is a scheduled, time-boxed unit of study work tied to one topic.
// OriginalStartTime/OriginalEndTime hold the pre-reschedule window and are
// set once, on the first move.
type Task struct {
	ID                string
	PlanID            string
	TopicID           string
	Type              TaskType
	Status            TaskStatus
	StartTime         time.Time
	EndTime           time.Time
	DurationMinutes   int
	Difficulty        catalog.Difficulty
	OriginalStartTime *time.Time
	OriginalEndTime   *time.Time
}

// Day returns the calendar day (truncated to midnight) the task is scheduled on.
func (t Task) Day() time.Time {
	return time.Date(t.StartTime.Year(), t.StartTime.Month(), t.StartTime.Day(), 0, 0, 0, 0, t.StartTime.Location())
}

// Performance is an append-only observation recorded when a task is attempted.
type Performance struct {
	ID               string
	OwnerID          string
	TaskID           string
	TopicID          string
	Score            *float64 // 0-100, absent for untimed reading
	Confidence       int      // 1-5
	Completed        bool
	TimeSpentMinutes int
	CreatedAt        time.Time
}

// AlertType classifies a flagged condition awaiting an adaptation pass.
type AlertType string

const (
	AlertMissedTask     AlertType = "MISSED_TASK"
	AlertLowPerformance AlertType = "LOW_PERFORMANCE"
	AlertStudyPattern   AlertType = "STUDY_PATTERN"
	AlertWorkload       AlertType = "WORKLOAD"
)

// Severity ranks how urgently an alert needs attention.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Alert is a monitoring finding tied to a learner, resolved exactly once by
// whichever component addresses the underlying condition.
type Alert struct {
	ID         string
	OwnerID    string
	PlanID     string
	Type       AlertType
	Severity   Severity
	Message    string
	TaskID     string
	TopicID    string
	IsResolved bool
	ResolvedAt *time.Time
	CreatedAt  time.Time
}

// TimeOfDay buckets the day for study-pattern preferences.
type TimeOfDay string

const (
	Morning   TimeOfDay = "MORNING"   // 05:00-12:00
	Afternoon TimeOfDay = "AFTERNOON" // 12:00-17:00
	Evening   TimeOfDay = "EVENING"   // 17:00-22:00
	Night     TimeOfDay = "NIGHT"     // 22:00-05:00
)

// BucketHour places an hour of day into its TimeOfDay bucket.
func BucketHour(hour int) TimeOfDay {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Afternoon
	case hour >= 17 && hour < 22:
		return Evening
	default:
		return Night
	}
}

// MidpointHour returns a representative start hour for a bucket, used when
// re-timing tasks toward a learner's observed study pattern.
func (t TimeOfDay) MidpointHour() int {
	switch t {
	case Morning:
		return 9
	case Afternoon:
		return 14
	case Evening:
		return 19
	default:
		return 22
	}
}

// Preferences holds the learner's stated availability and study-time preference.
type Preferences struct {
	OwnerID       string
	Weekdays      []time.Weekday
	HoursPerDay   float64
	PreferredTime TimeOfDay
}

// AvailableOn reports whether the learner studies on the given weekday.
func (p Preferences) AvailableOn(d time.Weekday) bool {
	for _, w := range p.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// MinutesPerDay converts the hours-per-day preference to minutes.
func (p Preferences) MinutesPerDay() int {
	return int(p.HoursPerDay * 60)
}

// Diagnostic carries optional onboarding assessment results used to
// personalize the initial plan.
type Diagnostic struct {
	Score             *float64 // 0-100
	WeakTopics        []string
	MissedTopics      []string
	RecommendedTopics []string
}

// PriorityBoost derives the per-topic priority override map: weak areas +3,
// missed questions +2, explicit recommendations +4, added to base importance.
func (d *Diagnostic) PriorityBoost() map[string]int {
	if d == nil {
		return nil
	}
	boost := make(map[string]int)
	for _, id := range d.WeakTopics {
		boost[id] += 3
	}
	for _, id := range d.MissedTopics {
		boost[id] += 2
	}
	for _, id := range d.RecommendedTopics {
		boost[id] += 4
	}
	return boost
}
