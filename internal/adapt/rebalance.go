package adapt

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/p-n-ai/studyplan/internal/plan"
)

const rebalanceMinTasks = 5

// workloadRebalancer evens out days that hold far more future tasks than
// the learner's average, moving the smallest non-review tasks to lighter
// later days while keeping their time of day.
type workloadRebalancer struct {
	store plan.Store
}

func (w *workloadRebalancer) Name() string { return "workload_rebalancer" }

func (w *workloadRebalancer) Run(ctx context.Context, snap *snapshot) ([]Action, error) {
	future := snap.futurePending()
	if len(future) < rebalanceMinTasks {
		return nil, nil
	}

	byDay := make(map[time.Time][]plan.Task)
	for _, t := range future {
		byDay[t.Day()] = append(byDay[t.Day()], t)
	}
	mean := float64(len(future)) / float64(len(byDay))

	overloaded, ok := mostOverloadedDay(byDay, mean)
	if !ok {
		return nil, nil
	}

	tasks := byDay[overloaded]
	moveBudget := int(math.Ceil(float64(len(tasks)) - mean*1.1))
	if moveBudget <= 0 {
		return nil, nil
	}

	// Smallest non-review tasks move first.
	var movable []plan.Task
	for _, t := range tasks {
		if t.Type != plan.TaskReview {
			movable = append(movable, t)
		}
	}
	sort.Slice(movable, func(i, j int) bool {
		if movable[i].DurationMinutes != movable[j].DurationMinutes {
			return movable[i].DurationMinutes < movable[j].DurationMinutes
		}
		return movable[i].ID < movable[j].ID
	})
	if len(movable) > moveBudget {
		movable = movable[:moveBudget]
	}

	moved := make(map[time.Time]int)
	var actions []Action
	for _, task := range movable {
		dest, ok := leastLoadedLaterDay(snap, byDay, moved, overloaded, mean, task)
		if !ok {
			continue
		}
		start := dest.Add(task.StartTime.Sub(task.Day()))
		end := start.Add(time.Duration(task.DurationMinutes) * time.Minute)
		if err := w.store.UpdateTaskWindow(ctx, task.ID, start, end, true); err != nil {
			return actions, fmt.Errorf("moving task %s: %w", task.ID, err)
		}
		moved[dest]++
		actions = append(actions, Action{
			Type: ActionRebalanceDay,
			Description: fmt.Sprintf("moved %s task on %s from %s to %s", task.Type, task.TopicID,
				overloaded.Format("2006-01-02"), dest.Format("2006-01-02")),
			AffectedTaskIDs: []string{task.ID},
			Metadata: map[string]any{
				"from_day": overloaded,
				"to_day":   dest,
			},
		})
	}
	return actions, nil
}

// mostOverloadedDay returns the day holding the most future tasks, if it
// exceeds 120% of the mean with at least three tasks.
func mostOverloadedDay(byDay map[time.Time][]plan.Task, mean float64) (time.Time, bool) {
	var worst time.Time
	worstCount := 0
	for day, tasks := range byDay {
		n := len(tasks)
		if float64(n) <= mean*1.2 || n < 3 {
			continue
		}
		if n > worstCount || (n == worstCount && day.Before(worst)) {
			worst, worstCount = day, n
		}
	}
	return worst, worstCount > 0
}

// leastLoadedLaterDay picks the lightest underloaded day after the
// overloaded one that is available, before the exam, and within the
// learner's daily budget once the task lands there.
func leastLoadedLaterDay(snap *snapshot, byDay map[time.Time][]plan.Task, moved map[time.Time]int, after time.Time, mean float64, task plan.Task) (time.Time, bool) {
	examDay := midnight(snap.plan.ExamDate)
	var best time.Time
	bestCount := -1
	for day := after.AddDate(0, 0, 1); day.Before(examDay); day = day.AddDate(0, 0, 1) {
		if !snap.prefs.AvailableOn(day.Weekday()) {
			continue
		}
		count := len(byDay[day]) + moved[day]
		if float64(count) >= mean*0.8 {
			continue
		}
		occupied := snap.occupiedOn(day, nil)
		if usedMinutes(occupied)+task.DurationMinutes > snap.prefs.MinutesPerDay() {
			continue
		}
		if bestCount == -1 || count < bestCount {
			best, bestCount = day, count
		}
	}
	return best, bestCount >= 0
}
