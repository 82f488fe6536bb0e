package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCacheService(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := &CacheService{
		redisClient: &RedisClient{client: client},
		enabled:     true,
		defaultTTL:  30 * time.Minute,
	}
	return svc, mr
}

func TestCacheDocumentRoundTrip(t *testing.T) {
	svc, mr := newTestCacheService(t)
	defer mr.Close()

	ctx := context.Background()
	doc := map[string]string{"id": "doc-1", "content": "hello world"}

	require.NoError(t, svc.CacheDocument(ctx, "doc-1", doc, time.Minute))

	var got map[string]string
	require.NoError(t, svc.GetDocument(ctx, "doc-1", &got))
	require.Equal(t, doc, got)
}

func TestInvalidateDocumentClearsAllKeys(t *testing.T) {
	svc, mr := newTestCacheService(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, svc.CacheDocument(ctx, "doc-1", "body", time.Minute))
	require.NoError(t, svc.CacheKeywords(ctx, "doc-1", []string{"a", "b"}, time.Minute))
	require.NoError(t, svc.TrackRecent(ctx, "doc-1", time.Now()))

	require.NoError(t, svc.InvalidateDocument(ctx, "doc-1"))

	var dest string
	require.Error(t, svc.GetDocument(ctx, "doc-1", &dest))

	ids, err := svc.RecentDocIDs(ctx, 10)
	require.NoError(t, err)
	require.NotContains(t, ids, "doc-1")
}

func TestEntityDocIndex(t *testing.T) {
	svc, mr := newTestCacheService(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, svc.IndexEntityDoc(ctx, "acme", "doc-1"))
	require.NoError(t, svc.IndexEntityDoc(ctx, "acme", "doc-2"))

	docs, err := svc.DocsForEntity(ctx, "acme")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"doc-1", "doc-2"}, docs)
}

func TestEntityDocIndexCapsAtMaxLen(t *testing.T) {
	svc, mr := newTestCacheService(t)
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < entityDocsMaxLen+10; i++ {
		require.NoError(t, svc.IndexEntityDoc(ctx, "acme", docIDFor(i)))
	}

	docs, err := svc.DocsForEntity(ctx, "acme")
	require.NoError(t, err)
	require.LessOrEqual(t, len(docs), entityDocsMaxLen)
}

func docIDFor(i int) string {
	return "doc-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestRecentDocIDsTrimsToMaxLen(t *testing.T) {
	svc, mr := newTestCacheService(t)
	defer mr.Close()

	ctx := context.Background()
	base := time.Now()
	for i := 0; i < recentDocsMaxLen+10; i++ {
		require.NoError(t, svc.TrackRecent(ctx, docIDFor(i), base.Add(time.Duration(i)*time.Second)))
	}

	ids, err := svc.RecentDocIDs(ctx, recentDocsMaxLen+10)
	require.NoError(t, err)
	require.Len(t, ids, recentDocsMaxLen)
}

func TestQueryResultCacheAndHistory(t *testing.T) {
	svc, mr := newTestCacheService(t)
	defer mr.Close()

	ctx := context.Background()
	query := "what changed in the billing module"
	result := []string{"doc-1", "doc-2"}

	require.NoError(t, svc.CacheQueryResult(ctx, query, result, time.Minute))

	var got []string
	require.NoError(t, svc.GetQueryResult(ctx, query, &got))
	require.Equal(t, result, got)

	history, err := svc.QueryHistory(ctx, 10)
	require.NoError(t, err)
	require.Contains(t, history, query)
}

func TestRecentDocIDsOrdersNewestFirst(t *testing.T) {
	svc, mr := newTestCacheService(t)
	defer mr.Close()

	ctx := context.Background()
	base := time.Now()
	require.NoError(t, svc.TrackRecent(ctx, "doc-old", base.Add(-time.Hour)))
	require.NoError(t, svc.TrackRecent(ctx, "doc-new", base))

	ids, err := svc.RecentDocIDs(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"doc-new", "doc-old"}, ids)
}

func TestCacheServiceDisabledReturnsError(t *testing.T) {
	svc := &CacheService{enabled: false}
	ctx := context.Background()

	var dest string
	require.Error(t, svc.GetDocument(ctx, "doc-1", &dest))
	require.NoError(t, svc.CacheDocument(ctx, "doc-1", "x", time.Minute))
}

func TestNewCacheServiceDisablesOnUnreachableRedis(t *testing.T) {
	svc, err := NewCacheService(nil)
	require.Error(t, err)
	require.False(t, svc.IsEnabled())
}
