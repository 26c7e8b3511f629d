package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/plan"
)

var (
	ErrMissingLearner = errors.New("learner id is required")
	ErrEmptyCatalog   = errors.New("topic catalog is empty")
	ErrBadWindow      = errors.New("exam date must be after the start date")
)

// GeneratorConfig bundles the tuning knobs of the pipeline stages.
type GeneratorConfig struct {
	Allocator AllocatorConfig
	Review    ReviewConfig
	Validator ValidatorConfig
}

// Generator runs the one-shot plan pipeline: topic ordering, slot
// allocation, difficulty curve, review insertion, materialization,
// validation, persistence.
type Generator struct {
	store plan.Store
	cfg   GeneratorConfig
}

// NewGenerator creates a plan generator over the given store.
func NewGenerator(store plan.Store, cfg GeneratorConfig) *Generator {
	return &Generator{store: store, cfg: cfg}
}

// GenerateRequest carries everything needed to build a learner's initial plan.
type GenerateRequest struct {
	LearnerID   string
	Topics      []catalog.Topic
	StartDate   time.Time
	ExamDate    time.Time
	Preferences plan.Preferences
	Diagnostic  *plan.Diagnostic
}

// GenerateResult is the persisted outcome plus the advisory validation report.
type GenerateResult struct {
	Plan        plan.StudyPlan
	Tasks       []plan.Task
	Schedule    *Schedule
	Report      Report
	ReviewCount int
}

// GenerateInitialPlan builds, validates, and persists a day-by-day plan.
// Precondition failures return an error with nothing written; validation
// findings never block persistence.
func (g *Generator) GenerateInitialPlan(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if req.LearnerID == "" {
		return nil, ErrMissingLearner
	}
	if len(req.Topics) == 0 {
		return nil, ErrEmptyCatalog
	}
	if !req.ExamDate.After(req.StartDate) {
		return nil, ErrBadWindow
	}

	ordered := catalog.NewGraph(req.Topics).Sequence(req.Diagnostic.PriorityBoost())

	// Fresh stage instances per call: the allocator's type rotation is
	// mutable state that must not be shared across learners.
	allocator := NewAllocator(g.cfg.Allocator)
	schedule, err := allocator.Allocate(ordered, req.StartDate, req.ExamDate, req.Preferences)
	if err != nil {
		return nil, fmt.Errorf("allocating schedule: %w", err)
	}

	var diagScore *float64
	if req.Diagnostic != nil {
		diagScore = req.Diagnostic.Score
	}
	NewCurve().Apply(schedule, diagScore)

	reviewCount := NewReviewScheduler(g.cfg.Review).Insert(schedule, ordered, req.Diagnostic)

	allocator.Materialize(schedule)

	report := NewValidator(g.cfg.Validator).Validate(schedule, req.Topics)
	if !report.IsValid {
		slog.Info("generated plan has validation findings",
			"learner_id", req.LearnerID,
			"issues", len(report.Issues),
		)
	}

	studyPlan := plan.StudyPlan{
		OwnerID:      req.LearnerID,
		StartDate:    midnight(req.StartDate),
		EndDate:      midnight(req.ExamDate).AddDate(0, 0, -1),
		ExamDate:     midnight(req.ExamDate),
		Personalized: req.Diagnostic != nil,
	}
	planID, err := g.store.CreatePlan(ctx, studyPlan)
	if err != nil {
		return nil, fmt.Errorf("persisting plan: %w", err)
	}
	studyPlan.ID = planID
	studyPlan.Version = 1

	tasks := make([]plan.Task, 0, 16)
	for _, day := range schedule.Days {
		for _, spec := range day.Specs {
			tasks = append(tasks, plan.Task{
				PlanID:          planID,
				TopicID:         spec.TopicID,
				Type:            spec.Type,
				Status:          plan.StatusPending,
				StartTime:       spec.StartTime,
				EndTime:         spec.EndTime,
				DurationMinutes: spec.DurationMinutes,
				Difficulty:      spec.Difficulty,
			})
		}
	}
	ids, err := g.store.CreateTasks(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("persisting tasks: %w", err)
	}
	for i := range tasks {
		tasks[i].ID = ids[i]
	}

	prefs := req.Preferences
	prefs.OwnerID = req.LearnerID
	if err := g.store.SavePreferences(ctx, prefs); err != nil {
		return nil, fmt.Errorf("persisting preferences: %w", err)
	}

	slog.Info("initial plan generated",
		"learner_id", req.LearnerID,
		"plan_id", planID,
		"days", len(schedule.Days),
		"tasks", len(tasks),
		"reviews", reviewCount,
		"valid", report.IsValid,
	)

	return &GenerateResult{
		Plan:        studyPlan,
		Tasks:       tasks,
		Schedule:    schedule,
		Report:      report,
		ReviewCount: reviewCount,
	}, nil
}
