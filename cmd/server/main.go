package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/studyplan/internal/adapt"
	"github.com/p-n-ai/studyplan/internal/catalog"
	"github.com/p-n-ai/studyplan/internal/export"
	"github.com/p-n-ai/studyplan/internal/insight"
	"github.com/p-n-ai/studyplan/internal/plan"
	"github.com/p-n-ai/studyplan/internal/platform/cache"
	"github.com/p-n-ai/studyplan/internal/platform/config"
	"github.com/p-n-ai/studyplan/internal/platform/database"
	"github.com/p-n-ai/studyplan/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store, err := plan.NewPostgresStore(db.Pool)
	if err != nil {
		slog.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if err := store.InitSchema(ctx); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	var (
		cacheClient *cache.Cache
		locker      adapt.Locker = adapt.NewMemoryLocker()
	)
	if cfg.Cache.Enabled {
		cacheClient, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Error("failed to connect to cache", "error", err)
			os.Exit(1)
		}
		defer cacheClient.Close()
		locker = cache.NewRunLock(cacheClient, time.Duration(cfg.Adaptation.LockTTLSeconds)*time.Second)
	}

	loader, err := catalog.NewLoader(cfg.CatalogPath)
	if err != nil {
		slog.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	app := &application{
		store:   store,
		catalog: loader,
		generator: scheduler.NewGenerator(store, scheduler.GeneratorConfig{
			Allocator: scheduler.AllocatorConfig{
				DayStartHour: cfg.Scheduler.DayStartHour,
				DayEndHour:   cfg.Scheduler.DayEndHour,
				ChunkMinutes: cfg.Scheduler.ChunkMinutes,
			},
			Review: scheduler.ReviewConfig{
				ReviewMinutes: cfg.Scheduler.ReviewMinutes,
			},
		}),
		engine: adapt.NewEngine(adapt.EngineConfig{
			Store:         store,
			Locker:        locker,
			PassTimeout:   time.Duration(cfg.Adaptation.PassTimeoutSeconds) * time.Second,
			DayStartHour:  cfg.Scheduler.DayStartHour,
			DayEndHour:    cfg.Scheduler.DayEndHour,
			ReviewMinutes: cfg.Scheduler.ReviewMinutes,
		}),
		annotator: insight.Template{},
		db:        db,
		cache:     cacheClient,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newMux(app),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// application bundles the wired components behind the HTTP surface.
type application struct {
	store     plan.Store
	catalog   *catalog.Loader
	generator *scheduler.Generator
	engine    *adapt.Engine
	annotator insight.Annotator
	db        *database.DB
	cache     *cache.Cache
}

func newMux(app *application) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", app.handleReadyz)
	mux.HandleFunc("POST /v1/learners/{learner}/plan", app.handleGeneratePlan)
	mux.HandleFunc("POST /v1/learners/{learner}/adaptation", app.handleRunAdaptation)
	mux.HandleFunc("GET /v1/learners/{learner}/plan.xlsx", app.handleExportPlan)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (app *application) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if app.db != nil {
		if err := app.db.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
			return
		}
	}
	if app.cache != nil {
		if err := app.cache.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "cache": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type generateRequest struct {
	StartDate     string   `json:"start_date"` // YYYY-MM-DD
	ExamDate      string   `json:"exam_date"`  // YYYY-MM-DD
	Weekdays      []int    `json:"weekdays"`   // 0=Sunday..6=Saturday
	HoursPerDay   float64  `json:"hours_per_day"`
	PreferredTime string   `json:"preferred_time"`
	Diagnostic    *struct {
		Score             *float64 `json:"score"`
		WeakTopics        []string `json:"weak_topics"`
		MissedTopics      []string `json:"missed_topics"`
		RecommendedTopics []string `json:"recommended_topics"`
	} `json:"diagnostic"`
}

func (app *application) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("learner")

	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	start, err := time.Parse("2006-01-02", body.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid start_date: %w", err))
		return
	}
	exam, err := time.Parse("2006-01-02", body.ExamDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid exam_date: %w", err))
		return
	}

	prefs := plan.Preferences{
		OwnerID:       learnerID,
		HoursPerDay:   body.HoursPerDay,
		PreferredTime: plan.TimeOfDay(body.PreferredTime),
	}
	for _, d := range body.Weekdays {
		if d >= 0 && d <= 6 {
			prefs.Weekdays = append(prefs.Weekdays, time.Weekday(d))
		}
	}

	req := scheduler.GenerateRequest{
		LearnerID:   learnerID,
		Topics:      app.catalog.AllTopics(),
		StartDate:   start,
		ExamDate:    exam,
		Preferences: prefs,
	}
	if body.Diagnostic != nil {
		req.Diagnostic = &plan.Diagnostic{
			Score:             body.Diagnostic.Score,
			WeakTopics:        body.Diagnostic.WeakTopics,
			MissedTopics:      body.Diagnostic.MissedTopics,
			RecommendedTopics: body.Diagnostic.RecommendedTopics,
		}
	}

	res, err := app.generator.GenerateInitialPlan(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrMissingLearner),
			errors.Is(err, scheduler.ErrBadWindow),
			errors.Is(err, scheduler.ErrNoStudyDays),
			errors.Is(err, scheduler.ErrEmptyWorkload):
			writeError(w, http.StatusUnprocessableEntity, err)
		case errors.Is(err, scheduler.ErrEmptyCatalog):
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			slog.Error("plan generation failed", "learner_id", learnerID, "error", err)
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"plan_id":      res.Plan.ID,
		"version":      res.Plan.Version,
		"personalized": res.Plan.Personalized,
		"tasks":        len(res.Tasks),
		"reviews":      res.ReviewCount,
		"validation": map[string]any{
			"is_valid": res.Report.IsValid,
			"issues":   res.Report.Issues,
		},
	})
}

func (app *application) handleRunAdaptation(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("learner")

	res, err := app.engine.Run(r.Context(), learnerID)
	if err != nil {
		switch {
		case errors.Is(err, plan.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, adapt.ErrRunInProgress):
			writeError(w, http.StatusConflict, err)
		default:
			slog.Error("adaptation failed", "learner_id", learnerID, "error", err)
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	advice, err := app.annotator.Annotate(r.Context(), res)
	if err != nil {
		slog.Warn("annotation failed", "learner_id", learnerID, "error", err)
	}

	passes := make([]map[string]any, 0, len(res.Passes))
	for _, pr := range res.Passes {
		entry := map[string]any{"pass": pr.Pass, "actions": len(pr.Actions)}
		if pr.Err != nil {
			entry["error"] = pr.Err.Error()
		}
		passes = append(passes, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id": res.PlanID,
		"actions": res.Actions,
		"summary": res.Summary,
		"passes":  passes,
		"advice":  advice,
	})
}

func (app *application) handleExportPlan(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("learner")

	p, err := app.store.PlanByOwner(r.Context(), learnerID)
	if err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	tasks, err := app.store.TasksByPlan(r.Context(), p.ID, plan.TaskFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "study-plan.xlsx"))
	if err := export.WritePlan(w, *p, tasks); err != nil {
		slog.Error("plan export failed", "learner_id", learnerID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
