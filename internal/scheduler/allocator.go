package scheduler

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

var (
	ErrNoStudyDays   = errors.New("no available study days before the exam")
	ErrEmptyWorkload = errors.New("topic catalog has no study time to allocate")
)

// AllocatorConfig tunes slot allocation. Zero values take the defaults.
type AllocatorConfig struct {
	DayStartHour         int     // first probed start hour (default 9)
	DayEndHour           int     // bitmap upper bound (default 22)
	FallbackHour         int     // last-resort start hour when probing fails (default 16)
	ChunkMinutes         int     // split size for oversized topics (default 30)
	ReviewReserve        float64 // share of total capacity open to study tasks (default 0.8)
	MaxBalanceIterations int     // bound on the rebalance loop (default 5)
}

func (c AllocatorConfig) withDefaults() AllocatorConfig {
	if c.DayStartHour == 0 {
		c.DayStartHour = 9
	}
	if c.DayEndHour == 0 {
		c.DayEndHour = 22
	}
	if c.FallbackHour == 0 {
		c.FallbackHour = 16
	}
	if c.ChunkMinutes == 0 {
		c.ChunkMinutes = 30
	}
	if c.ReviewReserve == 0 {
		c.ReviewReserve = 0.8
	}
	if c.MaxBalanceIterations == 0 {
		c.MaxBalanceIterations = 5
	}
	return c
}

// typeRotation spreads content variety deterministically: three parts each
// reading/video/quiz to one part practice.
var typeRotation = []plan.TaskType{
	plan.TaskReading, plan.TaskVideo, plan.TaskQuiz,
	plan.TaskReading, plan.TaskVideo, plan.TaskQuiz,
	plan.TaskReading, plan.TaskVideo, plan.TaskQuiz,
	plan.TaskPractice,
}

// Allocator places ordered topics into day-bounded time windows.
type Allocator struct {
	cfg     AllocatorConfig
	typeIdx int
}

// NewAllocator creates an allocator with the given configuration.
func NewAllocator(cfg AllocatorConfig) *Allocator {
	return &Allocator{cfg: cfg.withDefaults()}
}

// Allocate distributes topics across the calendar between start and the
// exam date, splitting oversized topics and keeping every day within its
// capacity. Task windows stay unset until Materialize runs.
func (a *Allocator) Allocate(topics []catalog.Topic, start, examDate time.Time, prefs plan.Preferences) (*Schedule, error) {
	days := a.buildCalendar(start, examDate, prefs)
	if len(days) == 0 {
		return nil, ErrNoStudyDays
	}

	total := 0
	for _, t := range topics {
		total += t.EstimatedMinutes
	}
	if total == 0 {
		return nil, ErrEmptyWorkload
	}

	capacity := 0
	for _, d := range days {
		capacity += d.CapacityMinutes
	}
	budget := int(float64(capacity) * a.cfg.ReviewReserve)

	// Scale everything down proportionally when the workload cannot fit
	// in the study share of the calendar.
	scale := 1.0
	if total > budget {
		scale = float64(budget) / float64(total)
		slog.Info("workload exceeds calendar, scaling topic durations",
			"total_minutes", total,
			"budget_minutes", budget,
			"scale", scale,
		)
	}

	type item struct {
		topic   catalog.Topic
		minutes int
	}
	queue := make([]item, 0, len(topics))
	for _, t := range topics {
		minutes := int(float64(t.EstimatedMinutes) * scale)
		if minutes < 1 {
			minutes = 1
		}
		queue = append(queue, item{topic: t, minutes: minutes})
	}

	cursor := 0
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		placed := false
		for attempt := 0; attempt < len(days); attempt++ {
			d := days[(cursor+attempt)%len(days)]
			if d.SpareMinutes() < it.minutes {
				continue
			}
			d.Specs = append(d.Specs, &TaskSpec{
				TopicID:         it.topic.ID,
				Type:            a.nextType(),
				Difficulty:      it.topic.Difficulty,
				DurationMinutes: it.minutes,
			})
			cursor = (cursor + attempt + 1) % len(days)
			placed = true
			break
		}
		if placed {
			continue
		}

		if it.minutes <= a.cfg.ChunkMinutes {
			slog.Warn("no capacity left for topic chunk, dropping",
				"topic", it.topic.ID,
				"minutes", it.minutes,
			)
			continue
		}

		// Split into ~30-minute chunks and requeue.
		chunks := (it.minutes + a.cfg.ChunkMinutes - 1) / a.cfg.ChunkMinutes
		remaining := it.minutes
		for i := 0; i < chunks; i++ {
			size := a.cfg.ChunkMinutes
			if size > remaining {
				size = remaining
			}
			remaining -= size
			queue = append(queue, item{topic: it.topic, minutes: size})
		}
	}

	a.balance(days)

	return &Schedule{Days: days, Start: midnight(start), ExamDate: midnight(examDate)}, nil
}

func (a *Allocator) buildCalendar(start, examDate time.Time, prefs plan.Preferences) []*Day {
	perDay := prefs.MinutesPerDay()
	if perDay <= 0 || len(prefs.Weekdays) == 0 {
		return nil
	}

	var days []*Day
	for d := midnight(start); d.Before(midnight(examDate)); d = d.AddDate(0, 0, 1) {
		if !prefs.AvailableOn(d.Weekday()) {
			continue
		}
		days = append(days, &Day{Date: d, CapacityMinutes: perDay})
	}
	return days
}

func (a *Allocator) nextType() plan.TaskType {
	t := typeRotation[a.typeIdx%len(typeRotation)]
	a.typeIdx++
	return t
}

// balance moves the largest movable task off the busiest day while that
// day's task count sits above ~120% of the mean. Bounded iterations keep
// termination obvious.
func (a *Allocator) balance(days []*Day) {
	if len(days) < 2 {
		return
	}

	for iter := 0; iter < a.cfg.MaxBalanceIterations; iter++ {
		totalTasks := 0
		for _, d := range days {
			totalTasks += len(d.Specs)
		}
		mean := float64(totalTasks) / float64(len(days))

		busiest := 0
		for i := range days {
			if len(days[i].Specs) > len(days[busiest].Specs) {
				busiest = i
			}
		}
		if float64(len(days[busiest].Specs)) <= mean*1.2 {
			return
		}

		// Largest non-review task on the busiest day.
		var moving *TaskSpec
		movingIdx := -1
		for i, s := range days[busiest].Specs {
			if s.IsReview() {
				continue
			}
			if moving == nil || s.DurationMinutes > moving.DurationMinutes {
				moving, movingIdx = s, i
			}
		}
		if moving == nil {
			return
		}

		// Least-loaded day that can absorb it.
		target := -1
		for i, d := range days {
			if i == busiest || d.SpareMinutes() < moving.DurationMinutes {
				continue
			}
			if target == -1 || len(d.Specs) < len(days[target].Specs) {
				target = i
			}
		}
		if target == -1 {
			return
		}

		days[busiest].Specs = append(days[busiest].Specs[:movingIdx], days[busiest].Specs[movingIdx+1:]...)
		days[target].Specs = append(days[target].Specs, moving)
	}
}

// Materialize turns duration specs into concrete [StartTime, EndTime)
// windows. Within each day, longest tasks claim slots first; free time is
// probed in 15-minute steps over an occupied-minutes bitmap. When nothing
// fits, the task falls back to a fixed late-afternoon start and a same-day
// overlap is accepted rather than dropping the work.
func (a *Allocator) Materialize(s *Schedule) {
	for _, day := range s.Days {
		specs := make([]*TaskSpec, len(day.Specs))
		copy(specs, day.Specs)
		sort.SliceStable(specs, func(i, j int) bool {
			return specs[i].DurationMinutes > specs[j].DurationMinutes
		})

		windowMinutes := (a.cfg.DayEndHour - a.cfg.DayStartHour) * 60
		occupied := make([]bool, windowMinutes)

		for _, spec := range specs {
			offset, found := probeSlot(occupied, spec.DurationMinutes)
			if !found {
				slog.Warn("no free slot in day, using fallback start",
					"date", day.Date.Format("2006-01-02"),
					"topic", spec.TopicID,
				)
				spec.StartTime = day.Date.Add(time.Duration(a.cfg.FallbackHour) * time.Hour)
				spec.EndTime = spec.StartTime.Add(time.Duration(spec.DurationMinutes) * time.Minute)
				continue
			}

			for m := offset; m < offset+spec.DurationMinutes; m++ {
				occupied[m] = true
			}
			spec.StartTime = day.Date.Add(time.Duration(a.cfg.DayStartHour)*time.Hour + time.Duration(offset)*time.Minute)
			spec.EndTime = spec.StartTime.Add(time.Duration(spec.DurationMinutes) * time.Minute)
		}
	}
}

// probeSlot scans the bitmap in 15-minute increments for the first gap of
// at least the requested length.
func probeSlot(occupied []bool, minutes int) (int, bool) {
	for offset := 0; offset+minutes <= len(occupied); offset += 15 {
		free := true
		for m := offset; m < offset+minutes; m++ {
			if occupied[m] {
				free = false
				break
			}
		}
		if free {
			return offset, true
		}
	}
	return 0, false
}
