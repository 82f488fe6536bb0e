package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"dev.vasic.ultramemory/internal/config"
)

// DB is the minimal interface the rest of the registry package depends on.
type DB interface {
	Ping() error
	Exec(query string, args ...any) error
	Query(query string, args ...any) ([]any, error)
	QueryRow(query string, args ...any) *sql.Row
	Close() error
	HealthCheck() error
}

// PostgresDB implements DB using PostgreSQL with pgxpool. It is the system of
// record for repo categories, schedules and the deletion audit trail — the
// durable counterpart to the JSON/JSONL files the original tooling wrote.
type PostgresDB struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

func NewPostgresDB(cfg *config.PostgresConfig, log *logrus.Logger) (*PostgresDB, error) {
	if log == nil {
		log = logrus.New()
	}

	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode)

	poolCfg, err := CreateOptimizedPoolConfig(connString, poolOptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("building registry pool config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to registry database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnTimeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		log.WithError(err).Warn("registry database connection test failed")
	}

	log.WithField("database", cfg.Name).Info("connected to registry database")
	return &PostgresDB{pool: pool, log: log}, nil
}

func (p *PostgresDB) Ping() error {
	return p.pool.Ping(context.Background())
}

func (p *PostgresDB) Exec(query string, args ...any) error {
	_, err := p.pool.Exec(context.Background(), query, args...)
	return err
}

func (p *PostgresDB) Query(query string, args ...any) ([]any, error) {
	rows, err := p.pool.Query(context.Background(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		results = append(results, values)
	}
	return results, nil
}

// QueryRow is unsupported on the pgx-backed pool; repositories use the pool
// directly via Pool() for parameterised scans instead of database/sql's Row.
func (p *PostgresDB) QueryRow(query string, args ...any) *sql.Row {
	return nil
}

func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

// Pool returns the underlying connection pool for repositories that need
// direct pgx access (RETURNING clauses, typed scans).
func (p *PostgresDB) Pool() *pgxpool.Pool {
	return p.pool
}

// HealthCheck performs a bounded-timeout health check on the database.
func (p *PostgresDB) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	return p.pool.Ping(ctx)
}

// RunMigrations executes every migration statement in order, idempotently.
func RunMigrations(db *PostgresDB) error {
	for _, migration := range migrations {
		if err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	db.log.Info("registry migrations completed")
	return nil
}

// migrations backs the Durable Registry: repo categories, scheduled agent
// jobs, the deletion audit trail, and consolidation-run bookkeeping.
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE TABLE IF NOT EXISTS categories (
		pattern VARCHAR(512) PRIMARY KEY,
		category VARCHAR(255) NOT NULL,
		owner VARCHAR(255),
		is_default BOOLEAN DEFAULT FALSE,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS schedules (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) UNIQUE NOT NULL,
		agent VARCHAR(255) NOT NULL,
		cron_expr VARCHAR(128) NOT NULL,
		args JSONB DEFAULT '{}',
		enabled BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		last_run_at TIMESTAMP WITH TIME ZONE
	)`,

	`CREATE TABLE IF NOT EXISTS deletion_audit (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		document_id VARCHAR(255) NOT NULL,
		action VARCHAR(50) NOT NULL,
		reason VARCHAR(255),
		status VARCHAR(50) NOT NULL DEFAULT 'completed',
		replaced_by VARCHAR(255),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS consolidation_runs (
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
	)`,

	`CREATE INDEX IF NOT EXISTS idx_categories_owner ON categories(owner)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_enabled ON schedules(enabled)`,
	`CREATE INDEX IF NOT EXISTS idx_deletion_audit_document_id ON deletion_audit(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_deletion_audit_created_at ON deletion_audit(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_consolidation_runs_started_at ON consolidation_runs(started_at)`,
}
