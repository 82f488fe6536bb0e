package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dev.vasic.ultramemory/internal/config"
)

// PoolConfigOptions carries the pgxpool tunables the Durable Registry cares
// about, derived from the operator-facing config.PostgresConfig rather than
// a fixed profile — categories/schedules/audit traffic is small and bursty,
// so there's no separate high-throughput/low-latency deployment shape to pick
// between, only the one pool every repository shares.
type PoolConfigOptions struct {
	MaxConns        int32
	MinConns        int32
	ConnectTimeout  time.Duration
	ApplicationName string
}

// poolOptionsFromConfig derives pool sizing from cfg, falling back to 20 max
// connections, 10 min connections and a 10s connect timeout when the operator
// leaves the env vars at their zero value.
func poolOptionsFromConfig(cfg *config.PostgresConfig) *PoolConfigOptions {
	maxConns := int32(cfg.MaxConnections)
	if maxConns <= 0 {
		maxConns = 20
	}
	minConns := int32(cfg.PoolSize)
	if minConns <= 0 {
		minConns = 10
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	connTimeout := cfg.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = 10 * time.Second
	}

	return &PoolConfigOptions{
		MaxConns:        maxConns,
		MinConns:        minConns,
		ConnectTimeout:  connTimeout,
		ApplicationName: "ultramemory",
	}
}

// CreateOptimizedPoolConfig builds a pgxpool.Config from opts, enabling
// statement caching for the repeated parameterised queries the repositories
// issue.
func CreateOptimizedPoolConfig(connString string, opts *PoolConfigOptions) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MaxConns = opts.MaxConns
	poolCfg.MinConns = opts.MinConns
	poolCfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	poolCfg.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "SET synchronous_commit = off"); err != nil {
			return fmt.Errorf("set synchronous_commit: %w", err)
		}
		return nil
	}

	return poolCfg, nil
}
