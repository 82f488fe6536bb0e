package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// ConsolidationRun records the bookkeeping for one pass of the 13-phase
// consolidation pipeline: how far it got, what it touched, and whether it
// finished cleanly. The consolidation engine writes these rows; it does not
// read them back when starting a new run.
type ConsolidationRun struct {
	ID                 string
	StartedAt          time.Time
	FinishedAt         *time.Time
	PhasesCompleted    int
	DocumentsProcessed int
	DuplicatesRemoved  int
	OrphansRemoved     int
	FixpointIterations int
	Status             string // "running", "completed", "failed"
	Error              string
}

// ConsolidationRunRepository persists consolidation-run history for
// observability.
type ConsolidationRunRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

func NewConsolidationRunRepository(pool *pgxpool.Pool, log *logrus.Logger) *ConsolidationRunRepository {
	if log == nil {
		log = logrus.New()
	}
	return &ConsolidationRunRepository{pool: pool, log: log}
}

func (r *ConsolidationRunRepository) CreateTable(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS consolidation_runs (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			started_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			finished_at TIMESTAMP WITH TIME ZONE,
			phases_completed INTEGER DEFAULT 0,
			documents_processed INTEGER DEFAULT 0,
			duplicates_removed INTEGER DEFAULT 0,
			orphans_removed INTEGER DEFAULT 0,
			fixpoint_iterations INTEGER DEFAULT 0,
			status VARCHAR(50) NOT NULL DEFAULT 'running',
			error TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create consolidation_runs table: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_consolidation_runs_started_at ON consolidation_runs(started_at)`)
	if err != nil {
		return fmt.Errorf("create consolidation_runs index: %w", err)
	}
	return nil
}

// Start inserts a new in-progress run and returns its ID.
func (r *ConsolidationRunRepository) Start(ctx context.Context) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO consolidation_runs (status) VALUES ('running') RETURNING id
	`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("start consolidation run: %w", err)
	}
	return id, nil
}

// Finish marks a run complete (or failed) with its final phase counters.
func (r *ConsolidationRunRepository) Finish(ctx context.Context, id string, run ConsolidationRun) error {
	status := "completed"
	if run.Error != "" {
		status = "failed"
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE consolidation_runs SET
			finished_at = NOW(),
			phases_completed = $2,
			documents_processed = $3,
			duplicates_removed = $4,
			orphans_removed = $5,
			fixpoint_iterations = $6,
			status = $7,
			error = $8
		WHERE id = $1
	`, id, run.PhasesCompleted, run.DocumentsProcessed, run.DuplicatesRemoved,
		run.OrphansRemoved, run.FixpointIterations, status, run.Error)
	if err != nil {
		return fmt.Errorf("finish consolidation run %s: %w", id, err)
	}
	return nil
}

// Latest returns the most recently started run, if any.
func (r *ConsolidationRunRepository) Latest(ctx context.Context) (*ConsolidationRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, started_at, finished_at, phases_completed, documents_processed,
		       duplicates_removed, orphans_removed, fixpoint_iterations, status, COALESCE(error, '')
		FROM consolidation_runs
		ORDER BY started_at DESC
		LIMIT 1
	`)
	return scanConsolidationRun(row)
}

// RecentHistory returns the last N runs, most recent first.
func (r *ConsolidationRunRepository) RecentHistory(ctx context.Context, limit int) ([]ConsolidationRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, started_at, finished_at, phases_completed, documents_processed,
		       duplicates_removed, orphans_removed, fixpoint_iterations, status, COALESCE(error, '')
		FROM consolidation_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query consolidation run history: %w", err)
	}
	defer rows.Close()

	var out []ConsolidationRun
	for rows.Next() {
		var run ConsolidationRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.PhasesCompleted,
			&run.DocumentsProcessed, &run.DuplicatesRemoved, &run.OrphansRemoved,
			&run.FixpointIterations, &run.Status, &run.Error); err != nil {
			return nil, fmt.Errorf("scan consolidation run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanConsolidationRun(row pgx.Row) (*ConsolidationRun, error) {
	var run ConsolidationRun
	if err := row.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.PhasesCompleted,
		&run.DocumentsProcessed, &run.DuplicatesRemoved, &run.OrphansRemoved,
		&run.FixpointIterations, &run.Status, &run.Error); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan consolidation run: %w", err)
	}
	return &run, nil
}
