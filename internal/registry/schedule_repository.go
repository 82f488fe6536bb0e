package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Schedule is a recurring job definition: run `agent` with `args` on `cron_expr`.
type Schedule struct {
	ID        string
	Name      string
	Agent     string
	CronExpr  string
	Args      []byte // raw JSON, decoded by the caller per agent
	Enabled   bool
	CreatedAt time.Time
	LastRunAt *time.Time
}

// ScheduleRepository persists recurring ingestion/consolidation job definitions.
type ScheduleRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

func NewScheduleRepository(pool *pgxpool.Pool, log *logrus.Logger) *ScheduleRepository {
	if log == nil {
		log = logrus.New()
	}
	return &ScheduleRepository{pool: pool, log: log}
}

func (r *ScheduleRepository) CreateTable(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schedules (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			name VARCHAR(255) UNIQUE NOT NULL,
			agent VARCHAR(255) NOT NULL,
			cron_expr VARCHAR(128) NOT NULL,
			args JSONB DEFAULT '{}',
			enabled BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			last_run_at TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return fmt.Errorf("create schedules table: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_schedules_enabled ON schedules(enabled)`)
	if err != nil {
		return fmt.Errorf("create schedules index: %w", err)
	}
	return nil
}

// Insert creates a new schedule and returns its generated ID.
func (r *ScheduleRepository) Insert(ctx context.Context, s Schedule) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO schedules (name, agent, cron_expr, args, enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, s.Name, s.Agent, s.CronExpr, s.Args, s.Enabled).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert schedule %s: %w", s.Name, err)
	}
	return id, nil
}

// GetByID fetches a single schedule.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, agent, cron_expr, args, enabled, created_at, last_run_at
		FROM schedules WHERE id = $1
	`, id)
	return scanSchedule(row)
}

// ListEnabled returns every enabled schedule.
func (r *ScheduleRepository) ListEnabled(ctx context.Context) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, agent, cron_expr, args, enabled, created_at, last_run_at
		FROM schedules WHERE enabled = TRUE ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// MarkRun stamps last_run_at to now for a schedule that just fired.
func (r *ScheduleRepository) MarkRun(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE schedules SET last_run_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark schedule %s run: %w", id, err)
	}
	return nil
}

// SetEnabled toggles a schedule on or off.
func (r *ScheduleRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE schedules SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set schedule %s enabled=%v: %w", id, enabled, err)
	}
	return nil
}

// Delete removes a schedule by ID.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete schedule %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	if err := row.Scan(&s.ID, &s.Name, &s.Agent, &s.CronExpr, &s.Args, &s.Enabled, &s.CreatedAt, &s.LastRunAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return &s, nil
}

func scanSchedules(rows pgx.Rows) ([]Schedule, error) {
	var out []Schedule
	for rows.Next() {
		var s Schedule
		if err := rows.Scan(&s.ID, &s.Name, &s.Agent, &s.CronExpr, &s.Args, &s.Enabled, &s.CreatedAt, &s.LastRunAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
