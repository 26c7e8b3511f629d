package adapt

import (
	"sync"
	"time"

	"github.com/p-n-ai/studyplan/internal/plan"
)

const probeStep = 15 * time.Minute

// occupancy ledgers the windows placements have claimed during the
// current run. The snapshot never changes mid-run, so without the
// ledger two placements in one run would probe the same open slot and
// both take it, persisting overlapping task windows.
type occupancy struct {
	mu     sync.Mutex
	placed []plan.Task
}

// onDay returns the claimed windows falling on day. Caller holds mu.
func (o *occupancy) onDay(day time.Time) []plan.Task {
	var out []plan.Task
	for _, t := range o.placed {
		if t.Day().Equal(day) {
			out = append(out, t)
		}
	}
	return out
}

// claim records a window as taken. Caller holds mu.
func (o *occupancy) claim(start time.Time, minutes int) {
	o.placed = append(o.placed, plan.Task{
		StartTime:       start,
		EndTime:         start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
	})
}

// slotOn finds the first open window of the given length on day, probing
// in 15-minute steps between DayStartHour and DayEndHour against the
// day's existing tasks.
func slotOn(cfg EngineConfig, day time.Time, minutes int, occupied []plan.Task) (time.Time, bool) {
	dur := time.Duration(minutes) * time.Minute
	dayEnd := day.Add(time.Duration(cfg.DayEndHour) * time.Hour)

	probe := day.Add(time.Duration(cfg.DayStartHour) * time.Hour)
	for !probe.Add(dur).After(dayEnd) {
		if !overlapsAny(probe, probe.Add(dur), occupied) {
			return probe, true
		}
		probe = probe.Add(probeStep)
	}
	return time.Time{}, false
}

func overlapsAny(start, end time.Time, tasks []plan.Task) bool {
	for _, t := range tasks {
		if start.Before(t.EndTime) && t.StartTime.Before(end) {
			return true
		}
	}
	return false
}

func usedMinutes(tasks []plan.Task) int {
	total := 0
	for _, t := range tasks {
		total += t.DurationMinutes
	}
	return total
}

// findSlot scans day-by-day from the day after the snapshot's now up to
// (but not including) the exam date, honoring the learner's available
// weekdays and daily time budget. skip lists task ids whose current
// placement should not count as occupancy. A returned slot is claimed
// in the run's occupancy ledger before findSlot returns, so no later
// search in the same run can hand it out again.
func findSlot(cfg EngineConfig, snap *snapshot, minutes int, skip map[string]bool) (time.Time, bool) {
	snap.occ.mu.Lock()
	defer snap.occ.mu.Unlock()

	examDay := midnight(snap.plan.ExamDate)
	for day := midnight(snap.now).AddDate(0, 0, 1); day.Before(examDay); day = day.AddDate(0, 0, 1) {
		if !snap.prefs.AvailableOn(day.Weekday()) {
			continue
		}
		occupied := append(snap.occupiedOn(day, skip), snap.occ.onDay(day)...)
		if usedMinutes(occupied)+minutes > snap.prefs.MinutesPerDay() {
			continue
		}
		if start, ok := slotOn(cfg, day, minutes, occupied); ok {
			snap.occ.claim(start, minutes)
			return start, true
		}
	}
	return time.Time{}, false
}
