package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/studyplan/internal/catalog"
)

const dbTimeout = 5 * time.Second

// Schema holds the DDL for the planner tables. Applied by deployments'
// migration tooling; tests apply it directly via InitSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS study_plans (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	owner_id     TEXT NOT NULL,
	start_date   TIMESTAMPTZ NOT NULL,
	end_date     TIMESTAMPTZ NOT NULL,
	exam_date    TIMESTAMPTZ NOT NULL,
	version      INT NOT NULL DEFAULT 1,
	personalized BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_study_plans_owner ON study_plans (owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS tasks (
	id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	plan_id             UUID NOT NULL REFERENCES study_plans (id),
	topic_id            TEXT NOT NULL,
	task_type           TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'PENDING',
	start_time          TIMESTAMPTZ NOT NULL,
	end_time            TIMESTAMPTZ NOT NULL,
	duration_minutes    INT NOT NULL,
	difficulty          TEXT NOT NULL,
	original_start_time TIMESTAMPTZ,
	original_end_time   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_tasks_plan ON tasks (plan_id, start_time);

CREATE TABLE IF NOT EXISTS performances (
	id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	owner_id           TEXT NOT NULL,
	task_id            UUID,
	topic_id           TEXT NOT NULL,
	score              DOUBLE PRECISION,
	confidence         INT NOT NULL DEFAULT 3,
	completed          BOOLEAN NOT NULL DEFAULT FALSE,
	time_spent_minutes INT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_performances_owner ON performances (owner_id, created_at);

CREATE TABLE IF NOT EXISTS alerts (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	owner_id    TEXT NOT NULL,
	plan_id     UUID,
	alert_type  TEXT NOT NULL,
	severity    TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	task_id     UUID,
	topic_id    TEXT,
	is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_alerts_owner_open ON alerts (owner_id) WHERE NOT is_resolved;

CREATE TABLE IF NOT EXISTS preferences (
	owner_id       TEXT PRIMARY KEY,
	weekdays       INT[] NOT NULL,
	hours_per_day  DOUBLE PRECISION NOT NULL,
	preferred_time TEXT NOT NULL DEFAULT 'EVENING'
);
`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// InitSchema applies the planner DDL. Used by tests and first-run setup.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePlan(ctx context.Context, p StudyPlan) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if p.OwnerID == "" {
		return "", fmt.Errorf("owner_id is required")
	}
	version := p.Version
	if version == 0 {
		version = 1
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO study_plans (owner_id, start_date, end_date, exam_date, version, personalized)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id::text`,
		p.OwnerID, p.StartDate, p.EndDate, p.ExamDate, version, p.Personalized,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create plan: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) PlanByOwner(ctx context.Context, ownerID string) (*StudyPlan, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p := &StudyPlan{}
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, owner_id, start_date, end_date, exam_date, version, personalized, created_at
		 FROM study_plans
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		ownerID,
	).Scan(&p.ID, &p.OwnerID, &p.StartDate, &p.EndDate, &p.ExamDate, &p.Version, &p.Personalized, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) BumpPlanVersion(ctx context.Context, planID string, personalized bool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE study_plans
		 SET version = version + 1, personalized = personalized OR $2
		 WHERE id = $1::uuid`,
		planID, personalized,
	)
	if err != nil {
		return fmt.Errorf("bump plan version: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (s *PostgresStore) CreateTasks(ctx context.Context, tasks []Task) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		status := t.Status
		if status == "" {
			status = StatusPending
		}
		var id string
		err := tx.QueryRow(ctx,
			`INSERT INTO tasks (plan_id, topic_id, task_type, status, start_time, end_time, duration_minutes, difficulty)
			 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id::text`,
			t.PlanID, t.TopicID, t.Type, status, t.StartTime, t.EndTime, t.DurationMinutes, t.Difficulty,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert task: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) TasksByPlan(ctx context.Context, planID string, filter TaskFilter) ([]Task, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT id::text, plan_id::text, topic_id, task_type, status, start_time, end_time,
	                 duration_minutes, difficulty, original_start_time, original_end_time
	          FROM tasks
	          WHERE plan_id = $1::uuid`
	args := []any{planID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND start_time < $%d", len(args))
	}
	query += " ORDER BY start_time ASC, id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(
			&t.ID, &t.PlanID, &t.TopicID, &t.Type, &t.Status, &t.StartTime, &t.EndTime,
			&t.DurationMinutes, &t.Difficulty, &t.OriginalStartTime, &t.OriginalEndTime,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateTaskWindow(ctx context.Context, taskID string, start, end time.Time, preserveOriginal bool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE tasks
		 SET original_start_time = CASE WHEN $4 AND original_start_time IS NULL THEN start_time ELSE original_start_time END,
		     original_end_time   = CASE WHEN $4 AND original_end_time   IS NULL THEN end_time   ELSE original_end_time   END,
		     start_time = $2,
		     end_time = $3,
		     duration_minutes = EXTRACT(EPOCH FROM ($3::timestamptz - $2::timestamptz))::int / 60
		 WHERE id = $1::uuid`,
		taskID, start, end, preserveOriginal,
	)
	if err != nil {
		return fmt.Errorf("update task window: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateTaskDifficulty(ctx context.Context, taskID string, d catalog.Difficulty) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE tasks SET difficulty = $2 WHERE id = $1::uuid`,
		taskID, d,
	)
	if err != nil {
		return fmt.Errorf("update task difficulty: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var current TaskStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1::uuid`, taskID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("get task status: %w", err)
	}
	if !current.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	// Guard the transition in the write as well so a concurrent update
	// cannot slip an illegal change through.
	cmd, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2 WHERE id = $1::uuid AND status = $3`,
		taskID, status, current,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %s changed concurrently", ErrInvalidTransition, taskID)
	}
	return nil
}

func (s *PostgresStore) PerformancesByOwner(ctx context.Context, ownerID string) ([]Performance, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, owner_id, COALESCE(task_id::text, ''), topic_id, score, confidence, completed, time_spent_minutes, created_at
		 FROM performances
		 WHERE owner_id = $1
		 ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query performances: %w", err)
	}
	defer rows.Close()

	var out []Performance
	for rows.Next() {
		var p Performance
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.TaskID, &p.TopicID, &p.Score, &p.Confidence, &p.Completed, &p.TimeSpentMinutes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan performance: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate performances: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RecordPerformance(ctx context.Context, p Performance) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if p.OwnerID == "" {
		return "", fmt.Errorf("owner_id is required")
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO performances (owner_id, task_id, topic_id, score, confidence, completed, time_spent_minutes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id::text`,
		p.OwnerID, nullIfEmpty(p.TaskID), p.TopicID, p.Score, p.Confidence, p.Completed, p.TimeSpentMinutes,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("record performance: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) CreateAlert(ctx context.Context, a Alert) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if a.OwnerID == "" {
		return "", fmt.Errorf("owner_id is required")
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO alerts (owner_id, plan_id, alert_type, severity, message, task_id, topic_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id::text`,
		a.OwnerID, nullIfEmpty(a.PlanID), a.Type, a.Severity, a.Message, nullIfEmpty(a.TaskID), nullIfEmpty(a.TopicID),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create alert: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) UnresolvedAlerts(ctx context.Context, ownerID string) ([]Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, owner_id, COALESCE(plan_id::text, ''), alert_type, severity, message,
		        COALESCE(task_id::text, ''), COALESCE(topic_id, ''), is_resolved, resolved_at, created_at
		 FROM alerts
		 WHERE owner_id = $1 AND NOT is_resolved
		 ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.PlanID, &a.Type, &a.Severity, &a.Message,
			&a.TaskID, &a.TopicID, &a.IsResolved, &a.ResolvedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ResolveAlert(ctx context.Context, alertID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE alerts
		 SET is_resolved = TRUE, resolved_at = NOW()
		 WHERE id = $1::uuid AND NOT is_resolved`,
		alertID,
	)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		// Either missing or already resolved; distinguish for callers.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1::uuid)`, alertID).Scan(&exists); err != nil {
			return fmt.Errorf("check alert: %w", err)
		}
		if !exists {
			return ErrAlertNotFound
		}
	}
	return nil
}

func (s *PostgresStore) GetPreferences(ctx context.Context, ownerID string) (*Preferences, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p := &Preferences{}
	var weekdays []int
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id, weekdays, hours_per_day, preferred_time
		 FROM preferences
		 WHERE owner_id = $1`,
		ownerID,
	).Scan(&p.OwnerID, &weekdays, &p.HoursPerDay, &p.PreferredTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPreferencesNotFound
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	for _, d := range weekdays {
		p.Weekdays = append(p.Weekdays, time.Weekday(d))
	}
	return p, nil
}

func (s *PostgresStore) SavePreferences(ctx context.Context, p Preferences) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if p.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	weekdays := make([]int, 0, len(p.Weekdays))
	for _, d := range p.Weekdays {
		weekdays = append(weekdays, int(d))
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO preferences (owner_id, weekdays, hours_per_day, preferred_time)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (owner_id) DO UPDATE
		 SET weekdays = EXCLUDED.weekdays,
		     hours_per_day = EXCLUDED.hours_per_day,
		     preferred_time = EXCLUDED.preferred_time`,
		p.OwnerID, weekdays, p.HoursPerDay, p.PreferredTime,
	)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePreferredTime(ctx context.Context, ownerID string, tod TimeOfDay) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE preferences SET preferred_time = $2 WHERE owner_id = $1`,
		ownerID, tod,
	)
	if err != nil {
		return fmt.Errorf("update preferred time: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrPreferencesNotFound
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
