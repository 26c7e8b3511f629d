// Package adapt implements the continuous adaptation engine: six
// independent passes that mutate an existing study plan in response to
// missed tasks, observed performance, and study patterns.
package adapt

import (
	"sort"
	"time"

	"github.com/p-n-ai/studyplan/internal/plan"
)

// ActionType labels what kind of mutation a pass performed.
type ActionType string

const (
	ActionRescheduleMissed ActionType = "RESCHEDULE_MISSED"
	ActionAdjustDifficulty ActionType = "ADJUST_DIFFICULTY"
	ActionScheduleReview   ActionType = "SCHEDULE_REVIEW"
	ActionInjectRemedial   ActionType = "INJECT_REMEDIAL"
	ActionRebalanceDay     ActionType = "REBALANCE_WORKLOAD"
	ActionAdaptPattern     ActionType = "ADAPT_PATTERN"
)

// Action records one mutation a pass made, for the caller's audit log.
type Action struct {
	Type            ActionType
	Description     string
	AffectedTaskIDs []string
	Metadata        map[string]any
}

// PassResult is the outcome of one pass: its actions, or its error. A
// failed pass never fails the run; the other passes' writes stand.
type PassResult struct {
	Pass    string
	Actions []Action
	Err     error
}

// Result aggregates a full adaptation run.
type Result struct {
	LearnerID string
	PlanID    string
	Passes    []PassResult
	Actions   []Action
	Summary   map[ActionType]int
}

// snapshot is the read-only state all six passes share. It is fetched
// once at the start of a run; passes write through the store but never
// mutate the snapshot. The one mutable piece is occ, the run's
// occupancy ledger, which slot searches use to keep their placements
// disjoint despite the frozen task list.
type snapshot struct {
	plan   plan.StudyPlan
	tasks  []plan.Task
	perfs  []plan.Performance
	alerts []plan.Alert
	prefs  plan.Preferences
	now    time.Time
	occ    *occupancy
}

func (s *snapshot) missedTasks() []plan.Task {
	var out []plan.Task
	for _, t := range s.tasks {
		if t.Status == plan.StatusPending && t.EndTime.Before(s.now) {
			out = append(out, t)
		}
	}
	return out
}

func (s *snapshot) futurePending() []plan.Task {
	var out []plan.Task
	for _, t := range s.tasks {
		if t.Status == plan.StatusPending && t.StartTime.After(s.now) {
			out = append(out, t)
		}
	}
	return out
}

func (s *snapshot) completedTasks() []plan.Task {
	var out []plan.Task
	for _, t := range s.tasks {
		if t.Status == plan.StatusCompleted {
			out = append(out, t)
		}
	}
	return out
}

// perfByTopic groups performance records by topic, oldest first.
func (s *snapshot) perfByTopic() map[string][]plan.Performance {
	byTopic := make(map[string][]plan.Performance)
	for _, p := range s.perfs {
		byTopic[p.TopicID] = append(byTopic[p.TopicID], p)
	}
	for _, ps := range byTopic {
		sort.Slice(ps, func(i, j int) bool { return ps[i].CreatedAt.Before(ps[j].CreatedAt) })
	}
	return byTopic
}

// alertsFor returns the unresolved alerts of the given type, all types if
// alertType is empty.
func (s *snapshot) alertsFor(alertType plan.AlertType) []plan.Alert {
	var out []plan.Alert
	for _, a := range s.alerts {
		if alertType == "" || a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

// occupiedOn returns the tasks scheduled on the given calendar day,
// excluding any task in the skip set. Missed tasks being moved do not
// count against their old day.
func (s *snapshot) occupiedOn(day time.Time, skip map[string]bool) []plan.Task {
	var out []plan.Task
	for _, t := range s.tasks {
		if skip[t.ID] || t.Status == plan.StatusSkipped {
			continue
		}
		if t.Day().Equal(day) {
			out = append(out, t)
		}
	}
	return out
}

// topicScore averages the recorded scores for a topic. ok is false when
// no record carries a score.
func topicScore(perfs []plan.Performance) (avg float64, ok bool) {
	sum, n := 0.0, 0
	for _, p := range perfs {
		if p.Score != nil {
			sum += *p.Score
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// topicConfidence averages the 1-5 confidence ratings for a topic.
func topicConfidence(perfs []plan.Performance) (avg float64, ok bool) {
	sum, n := 0.0, 0
	for _, p := range perfs {
		if p.Confidence > 0 {
			sum += float64(p.Confidence)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
