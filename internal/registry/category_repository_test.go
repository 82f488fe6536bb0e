package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resolveFixture is a minimal in-memory stand-in for the three-tier lookup
// semantics. It mirrors CategoryRepository.Resolve's precedence without
// requiring a live database.
func resolveFixture(entries map[string]string, identifier string) string {
	if cat, ok := entries[identifier]; ok {
		return cat
	}
	if owner, _, ok := cutOwner(identifier); ok {
		if cat, ok := entries[owner+"/*"]; ok {
			return cat
		}
	}
	if cat, ok := entries["*"]; ok {
		return cat
	}
	return "uncategorized"
}

func cutOwner(identifier string) (string, string, bool) {
	for i := 0; i < len(identifier); i++ {
		if identifier[i] == '/' {
			return identifier[:i], identifier[i+1:], true
		}
	}
	return "", "", false
}

func TestCategoryLookupPrecedence(t *testing.T) {
	entries := map[string]string{
		"acme/widgets": "product",
		"acme/*":       "internal",
		"*":            "uncategorized",
	}

	assert.Equal(t, "product", resolveFixture(entries, "acme/widgets"))
	assert.Equal(t, "internal", resolveFixture(entries, "acme/other-repo"))
	assert.Equal(t, "uncategorized", resolveFixture(entries, "other-owner/repo"))
}

func TestCategoryLookupNoDefault(t *testing.T) {
	entries := map[string]string{
		"acme/widgets": "product",
	}
	assert.Equal(t, "uncategorized", resolveFixture(entries, "other-owner/repo"))
}

func TestNewCategoryRepositoryDefaultsLogger(t *testing.T) {
	repo := NewCategoryRepository(nil, nil)
	require.NotNil(t, repo)
	require.NotNil(t, repo.log)
}

func TestCategoryRepositoryRequiresPoolForQueries(t *testing.T) {
	repo := NewCategoryRepository(nil, nil)
	assert.Panics(t, func() {
		_, _ = repo.List(context.Background())
	})
}
