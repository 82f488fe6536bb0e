package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DeletionAudit mirrors one line of the JSONL audit log the deletion agent
// writes alongside this Postgres row.
type DeletionAudit struct {
	ID         string
	DocumentID string
	Action     string // "delete" or "delete_all"
	Reason     string
	Status     string // the operation's model.Status: "full", "partial", "failed" or "blocked"
	ReplacedBy string
	CreatedAt  time.Time
}

// DeletionAuditRepository persists the durable counterpart of the deletion
// agent's `~/.ulmemory/logs/deletions.jsonl` audit trail.
type DeletionAuditRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

func NewDeletionAuditRepository(pool *pgxpool.Pool, log *logrus.Logger) *DeletionAuditRepository {
	if log == nil {
		log = logrus.New()
	}
	return &DeletionAuditRepository{pool: pool, log: log}
}

func (r *DeletionAuditRepository) CreateTable(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS deletion_audit (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			document_id VARCHAR(255) NOT NULL,
			action VARCHAR(50) NOT NULL,
			reason VARCHAR(255),
			status VARCHAR(50) NOT NULL DEFAULT 'completed',
			replaced_by VARCHAR(255),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create deletion_audit table: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_deletion_audit_document_id ON deletion_audit(document_id)`)
	if err != nil {
		return fmt.Errorf("create deletion_audit document_id index: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_deletion_audit_created_at ON deletion_audit(created_at)`)
	if err != nil {
		return fmt.Errorf("create deletion_audit created_at index: %w", err)
	}
	return nil
}

// Insert records one deletion-agent decision. Best-effort by convention — the
// caller logs and continues rather than failing the delete operation if this
// errors, matching the original agent's audit-log semantics.
func (r *DeletionAuditRepository) Insert(ctx context.Context, a DeletionAudit) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO deletion_audit (document_id, action, reason, status, replaced_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, a.DocumentID, a.Action, a.Reason, a.Status, a.ReplacedBy).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert deletion audit for %s: %w", a.DocumentID, err)
	}
	return id, nil
}

// Recent returns the last N audit entries, most recent first — the Postgres
// analogue of the original `get_audit_log(limit)` JSONL tail-read.
func (r *DeletionAuditRepository) Recent(ctx context.Context, limit int) ([]DeletionAudit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, action, COALESCE(reason, ''), status, COALESCE(replaced_by, ''), created_at
		FROM deletion_audit
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent deletion audit: %w", err)
	}
	defer rows.Close()
	return scanDeletionAudits(rows)
}

// ByDocument returns every audit entry for a given document ID.
func (r *DeletionAuditRepository) ByDocument(ctx context.Context, documentID string) ([]DeletionAudit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, action, COALESCE(reason, ''), status, COALESCE(replaced_by, ''), created_at
		FROM deletion_audit
		WHERE document_id = $1
		ORDER BY created_at DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query deletion audit for %s: %w", documentID, err)
	}
	defer rows.Close()
	return scanDeletionAudits(rows)
}

// Count returns the total number of audit rows, matching the original agent's
// `count()` method.
func (r *DeletionAuditRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deletion_audit`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count deletion audit: %w", err)
	}
	return count, nil
}

func scanDeletionAudits(rows pgx.Rows) ([]DeletionAudit, error) {
	var out []DeletionAudit
	for rows.Next() {
		var a DeletionAudit
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Action, &a.Reason, &a.Status, &a.ReplacedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deletion audit: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
