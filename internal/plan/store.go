package plan

import (
	"context"
	"errors"
	"time"

	"github.com/p-n-ai/studyplan/internal/catalog"
)

var (
	ErrPlanNotFound        = errors.New("plan not found")
	ErrTaskNotFound        = errors.New("task not found")
	ErrAlertNotFound       = errors.New("alert not found")
	ErrPreferencesNotFound = errors.New("preferences not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// TaskFilter narrows task listings. Zero values mean no constraint.
type TaskFilter struct {
	Status TaskStatus
	From   time.Time // tasks starting at or after
	To     time.Time // tasks starting before
}

// Matches reports whether a task satisfies the filter.
func (f TaskFilter) Matches(t Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && t.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.StartTime.Before(f.To) {
		return false
	}
	return true
}

// Store persists plans, tasks, performances, alerts, and preferences.
//
// Task updates are deliberately field-scoped: each adaptation pass owns a
// distinct field group (time window, difficulty, status), so concurrent
// passes never clobber each other's writes.
type Store interface {
	CreatePlan(ctx context.Context, p StudyPlan) (string, error)
	PlanByOwner(ctx context.Context, ownerID string) (*StudyPlan, error)
	BumpPlanVersion(ctx context.Context, planID string, personalized bool) error

	CreateTasks(ctx context.Context, tasks []Task) ([]string, error)
	TasksByPlan(ctx context.Context, planID string, filter TaskFilter) ([]Task, error)
	UpdateTaskWindow(ctx context.Context, taskID string, start, end time.Time, preserveOriginal bool) error
	UpdateTaskDifficulty(ctx context.Context, taskID string, d catalog.Difficulty) error
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus) error

	PerformancesByOwner(ctx context.Context, ownerID string) ([]Performance, error)
	RecordPerformance(ctx context.Context, p Performance) (string, error)

	CreateAlert(ctx context.Context, a Alert) (string, error)
	UnresolvedAlerts(ctx context.Context, ownerID string) ([]Alert, error)
	ResolveAlert(ctx context.Context, alertID string) error

	GetPreferences(ctx context.Context, ownerID string) (*Preferences, error)
	SavePreferences(ctx context.Context, p Preferences) error
	UpdatePreferredTime(ctx context.Context, ownerID string, tod TimeOfDay) error
}
