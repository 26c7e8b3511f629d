package adapt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/studyplan/internal/plan"
)

var (
	ErrMissingLearner = errors.New("learner id is required")
	ErrRunInProgress  = errors.New("adaptation already running for learner")
)

// Locker serializes adaptation runs per learner. Two overlapping triggers
// for the same learner must not execute concurrently.
type Locker interface {
	// TryLock acquires the learner's run lock without blocking. It
	// returns a release func on success and ok=false when the lock is
	// already held.
	TryLock(ctx context.Context, learnerID string) (release func(), ok bool, err error)
}

// MemoryLocker is an in-process Locker keyed by learner id. It is the
// default when no distributed lock is configured.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

func (l *MemoryLocker) TryLock(_ context.Context, learnerID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[learnerID] {
		return nil, false, nil
	}
	l.held[learnerID] = true
	release := func() {
		l.mu.Lock()
		delete(l.held, learnerID)
		l.mu.Unlock()
	}
	return release, true, nil
}

// EngineConfig holds dependencies and tuning knobs for the adaptation
// engine. Zero values take the defaults.
type EngineConfig struct {
	Store  plan.Store
	Locker Locker

	PassTimeout time.Duration // per-pass budget (default 15s)

	DayStartHour int // earliest slot hour (default 9)
	DayEndHour   int // latest slot end hour (default 22)
	FallbackHour int // last-resort placement hour (default 16)

	ReviewMinutes   int // duration of injected review tasks (default 20)
	RemedialMinutes int // duration of injected remedial tasks (default 45)

	MaxRetimedTasks       int     // pattern adapter move cap per run (default 10)
	PatternMinCompletions int     // completions before a pattern counts (default 5)
	PatternSwitchFraction float64 // moved fraction that flips the stored preference (default 0.5)

	Now func() time.Time // injectable clock for tests
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Locker == nil {
		c.Locker = NewMemoryLocker()
	}
	if c.PassTimeout == 0 {
		c.PassTimeout = 15 * time.Second
	}
	if c.DayStartHour == 0 {
		c.DayStartHour = 9
	}
	if c.DayEndHour == 0 {
		c.DayEndHour = 22
	}
	if c.FallbackHour == 0 {
		c.FallbackHour = 16
	}
	if c.ReviewMinutes == 0 {
		c.ReviewMinutes = 20
	}
	if c.RemedialMinutes == 0 {
		c.RemedialMinutes = 45
	}
	if c.MaxRetimedTasks == 0 {
		c.MaxRetimedTasks = 10
	}
	if c.PatternMinCompletions == 0 {
		c.PatternMinCompletions = 5
	}
	if c.PatternSwitchFraction == 0 {
		c.PatternSwitchFraction = 0.5
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// pass is one adaptation heuristic. Passes read the shared snapshot and
// write through the store; each owns a distinct task field group.
type pass interface {
	Name() string
	Run(ctx context.Context, snap *snapshot) ([]Action, error)
}

// Engine runs the six adaptation passes for one learner at a time.
type Engine struct {
	store  plan.Store
	locker Locker
	cfg    EngineConfig
	passes []pass
}

// NewEngine creates an adaptation engine over the given store.
func NewEngine(cfg EngineConfig) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{store: cfg.Store, locker: cfg.Locker, cfg: cfg}
	e.passes = []pass{
		&missedRescheduler{store: cfg.Store, cfg: cfg},
		&difficultyAdjuster{store: cfg.Store},
		&spacedRepetition{store: cfg.Store, cfg: cfg},
		&remedialInjector{store: cfg.Store, cfg: cfg},
		&workloadRebalancer{store: cfg.Store},
		&patternAdapter{store: cfg.Store, cfg: cfg},
	}
	return e
}

// Run executes one adaptation cycle for the learner. The snapshot is
// fetched once; the six passes run concurrently, each bounded by the
// pass timeout and each capturing its own error. Only a failed learner
// or plan lookup fails the run as a whole.
func (e *Engine) Run(ctx context.Context, learnerID string) (*Result, error) {
	if learnerID == "" {
		return nil, ErrMissingLearner
	}

	release, ok, err := e.locker.TryLock(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer release()

	snap, err := e.fetchSnapshot(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	results := make([]PassResult, len(e.passes))
	var wg sync.WaitGroup
	for i, p := range e.passes {
		wg.Add(1)
		go func(i int, p pass) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, e.cfg.PassTimeout)
			defer cancel()
			actions, err := p.Run(pctx, snap)
			results[i] = PassResult{Pass: p.Name(), Actions: actions, Err: err}
			if err != nil {
				slog.Error("adaptation pass failed",
					"learner_id", learnerID,
					"pass", p.Name(),
					"error", err,
				)
			}
		}(i, p)
	}
	wg.Wait()

	res := &Result{
		LearnerID: learnerID,
		PlanID:    snap.plan.ID,
		Passes:    results,
		Summary:   make(map[ActionType]int),
	}
	for _, pr := range results {
		res.Actions = append(res.Actions, pr.Actions...)
		for _, a := range pr.Actions {
			res.Summary[a.Type]++
		}
	}

	if len(res.Actions) > 0 {
		if err := e.store.BumpPlanVersion(ctx, snap.plan.ID, snap.plan.Personalized); err != nil {
			slog.Error("failed to bump plan version", "plan_id", snap.plan.ID, "error", err)
		}
	}

	slog.Info("adaptation run finished",
		"learner_id", learnerID,
		"plan_id", snap.plan.ID,
		"actions", len(res.Actions),
	)
	return res, nil
}

func (e *Engine) fetchSnapshot(ctx context.Context, learnerID string) (*snapshot, error) {
	p, err := e.store.PlanByOwner(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("loading plan for %s: %w", learnerID, err)
	}
	tasks, err := e.store.TasksByPlan(ctx, p.ID, plan.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	perfs, err := e.store.PerformancesByOwner(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("loading performances: %w", err)
	}
	alerts, err := e.store.UnresolvedAlerts(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("loading alerts: %w", err)
	}
	prefs, err := e.store.GetPreferences(ctx, learnerID)
	if err != nil {
		if !errors.Is(err, plan.ErrPreferencesNotFound) {
			return nil, fmt.Errorf("loading preferences: %w", err)
		}
		prefs = &plan.Preferences{
			OwnerID: learnerID,
			Weekdays: []time.Weekday{
				time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
				time.Thursday, time.Friday, time.Saturday,
			},
			HoursPerDay: 2,
		}
	}
	return &snapshot{
		plan:   *p,
		tasks:  tasks,
		perfs:  perfs,
		alerts: alerts,
		prefs:  *prefs,
		now:    e.cfg.Now(),
		occ:    &occupancy{},
	}, nil
}
