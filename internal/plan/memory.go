package plan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/studyplan/internal/catalog"
)

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu           sync.RWMutex
	plans        map[string]*StudyPlan
	tasks        map[string]*Task
	performances map[string]*Performance
	alerts       map[string]*Alert
	preferences  map[string]*Preferences
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:        make(map[string]*StudyPlan),
		tasks:        make(map[string]*Task),
		performances: make(map[string]*Performance),
		alerts:       make(map[string]*Alert),
		preferences:  make(map[string]*Preferences),
	}
}

func (s *MemoryStore) CreatePlan(_ context.Context, p StudyPlan) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.OwnerID == "" {
		return "", fmt.Errorf("owner_id is required")
	}
	p.ID = uuid.NewString()
	if p.Version == 0 {
		p.Version = 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.plans[p.ID] = &p
	return p.ID, nil
}

func (s *MemoryStore) PlanByOwner(_ context.Context, ownerID string) (*StudyPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *StudyPlan
	for _, p := range s.plans {
		if p.OwnerID != ownerID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrPlanNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) BumpPlanVersion(_ context.Context, planID string, personalized bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[planID]
	if !ok {
		return ErrPlanNotFound
	}
	p.Version++
	p.Personalized = p.Personalized || personalized
	return nil
}

func (s *MemoryStore) CreateTasks(_ context.Context, tasks []Task) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.PlanID == "" {
			return nil, fmt.Errorf("plan_id is required")
		}
		t.ID = uuid.NewString()
		if t.Status == "" {
			t.Status = StatusPending
		}
		tc := t
		s.tasks[t.ID] = &tc
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (s *MemoryStore) TasksByPlan(_ context.Context, planID string, filter TaskFilter) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Task
	for _, t := range s.tasks {
		if t.PlanID != planID || !filter.Matches(*t) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateTaskWindow(_ context.Context, taskID string, start, end time.Time, preserveOriginal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if preserveOriginal && t.OriginalStartTime == nil {
		os, oe := t.StartTime, t.EndTime
		t.OriginalStartTime = &os
		t.OriginalEndTime = &oe
	}
	t.StartTime = start
	t.EndTime = end
	t.DurationMinutes = int(end.Sub(start).Minutes())
	return nil
}

func (s *MemoryStore) UpdateTaskDifficulty(_ context.Context, taskID string, d catalog.Difficulty) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	t.Difficulty = d
	return nil
}

func (s *MemoryStore) UpdateTaskStatus(_ context.Context, taskID string, status TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if !t.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, status)
	}
	t.Status = status
	return nil
}

func (s *MemoryStore) PerformancesByOwner(_ context.Context, ownerID string) ([]Performance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Performance
	for _, p := range s.performances {
		if p.OwnerID == ownerID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) RecordPerformance(_ context.Context, p Performance) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.OwnerID == "" {
		return "", fmt.Errorf("owner_id is required")
	}
	p.ID = uuid.NewString()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.performances[p.ID] = &p
	return p.ID, nil
}

func (s *MemoryStore) CreateAlert(_ context.Context, a Alert) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.OwnerID == "" {
		return "", fmt.Errorf("owner_id is required")
	}
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.alerts[a.ID] = &a
	return a.ID, nil
}

func (s *MemoryStore) UnresolvedAlerts(_ context.Context, ownerID string) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Alert
	for _, a := range s.alerts {
		if a.OwnerID == ownerID && !a.IsResolved {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ResolveAlert(_ context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return ErrAlertNotFound
	}
	if a.IsResolved {
		return nil // resolving twice is a no-op
	}
	now := time.Now()
	a.IsResolved = true
	a.ResolvedAt = &now
	return nil
}

func (s *MemoryStore) GetPreferences(_ context.Context, ownerID string) (*Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.preferences[ownerID]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SavePreferences(_ context.Context, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	s.preferences[p.OwnerID] = &p
	return nil
}

func (s *MemoryStore) UpdatePreferredTime(_ context.Context, ownerID string, tod TimeOfDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.preferences[ownerID]
	if !ok {
		return ErrPreferencesNotFound
	}
	p.PreferredTime = tod
	return nil
}
