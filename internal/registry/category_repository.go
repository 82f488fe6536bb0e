package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Category maps a glob-style repo-identifier pattern to a category label.
// Lookup order is exact pattern match, then owner-default ("owner/*"), then
// the global default ("*").
type Category struct {
	Pattern   string
	Category  string
	Owner     string
	IsDefault bool
	UpdatedAt time.Time
}

// CategoryRepository persists the category lookup table the repo ingestor
// consults for every repository it indexes.
type CategoryRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

func NewCategoryRepository(pool *pgxpool.Pool, log *logrus.Logger) *CategoryRepository {
	if log == nil {
		log = logrus.New()
	}
	return &CategoryRepository{pool: pool, log: log}
}

func (r *CategoryRepository) CreateTable(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS categories (
			pattern VARCHAR(512) PRIMARY KEY,
			category VARCHAR(255) NOT NULL,
			owner VARCHAR(255),
			is_default BOOLEAN DEFAULT FALSE,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create categories table: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_categories_owner ON categories(owner)`)
	if err != nil {
		return fmt.Errorf("create categories index: %w", err)
	}
	return nil
}

// Upsert writes or replaces the category mapping for a pattern.
func (r *CategoryRepository) Upsert(ctx context.Context, pattern, category, owner string, isDefault bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO categories (pattern, category, owner, is_default, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (pattern) DO UPDATE SET
			category = EXCLUDED.category,
			owner = EXCLUDED.owner,
			is_default = EXCLUDED.is_default,
			updated_at = NOW()
	`, pattern, category, owner, isDefault)
	if err != nil {
		return fmt.Errorf("upsert category %s: %w", pattern, err)
	}
	return nil
}

// Delete removes a pattern mapping.
func (r *CategoryRepository) Delete(ctx context.Context, pattern string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE pattern = $1`, pattern)
	if err != nil {
		return false, fmt.Errorf("delete category %s: %w", pattern, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns every category mapping, exact patterns first.
func (r *CategoryRepository) List(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pattern, category, COALESCE(owner, ''), is_default, updated_at
		FROM categories
		ORDER BY is_default ASC, pattern ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	return scanCategories(rows)
}

// Resolve implements the three-tier lookup: exact pattern, then owner default
// ("owner/*"), then the global default ("*").
func (r *CategoryRepository) Resolve(ctx context.Context, identifier string) (string, error) {
	var category string
	err := r.pool.QueryRow(ctx, `SELECT category FROM categories WHERE pattern = $1`, identifier).Scan(&category)
	if err == nil {
		return category, nil
	}
	if err != pgx.ErrNoRows {
		return "", fmt.Errorf("resolve category for %s: %w", identifier, err)
	}

	if owner, _, ok := strings.Cut(identifier, "/"); ok {
		err := r.pool.QueryRow(ctx, `
			SELECT category FROM categories WHERE owner = $1 AND pattern = $1 || '/*'
		`, owner).Scan(&category)
		if err == nil {
			return category, nil
		}
		if err != pgx.ErrNoRows {
			return "", fmt.Errorf("resolve owner category for %s: %w", owner, err)
		}
	}

	err = r.pool.QueryRow(ctx, `SELECT category FROM categories WHERE pattern = '*' AND is_default = TRUE`).Scan(&category)
	if err == nil {
		return category, nil
	}
	if err == pgx.ErrNoRows {
		return "uncategorized", nil
	}
	return "", fmt.Errorf("resolve default category: %w", err)
}

func scanCategories(rows pgx.Rows) ([]Category, error) {
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Pattern, &c.Category, &c.Owner, &c.IsDefault, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
