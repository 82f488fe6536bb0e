package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.vasic.ultramemory/internal/cache"
	"dev.vasic.ultramemory/internal/config"
	"dev.vasic.ultramemory/internal/embedding"
	"dev.vasic.ultramemory/internal/graphdb"
	"dev.vasic.ultramemory/internal/model"
	"dev.vasic.ultramemory/internal/vectordb"
)

type fakeIndex struct {
	docs          map[string]vectordb.Result
	ensureErr     error
	addErr        error
	searchResults []vectordb.Result
	deleteErr     error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]vectordb.Result)}
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, dim int) error { return f.ensureErr }

func (f *fakeIndex) Add(ctx context.Context, vector []float32, content string, meta model.Metadata) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	id := "doc-" + content[:min(len(content), 8)]
	f.docs[id] = vectordb.Result{ID: id, Content: content, Metadata: meta}
	return id, nil
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, limit int, minScore float32) ([]vectordb.Result, error) {
	return f.searchResults, nil
}

func (f *fakeIndex) Delete(ctx context.Context, id string) error {
	delete(f.docs, id)
	return f.deleteErr
}

func (f *fakeIndex) DeleteAll(ctx context.Context) (int, error) {
	n := len(f.docs)
	f.docs = make(map[string]vectordb.Result)
	return n, nil
}

func (f *fakeIndex) Count(ctx context.Context) (int, error) { return len(f.docs), nil }

func (f *fakeIndex) Scroll(ctx context.Context, limit int) ([]vectordb.Result, error) {
	out := make([]vectordb.Result, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeIndex) Close() error { return nil }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type fakeGraph struct {
	nodes      map[string]graphdb.Row
	rels       map[string][]graphdb.Row
	addNodeErr error
	deleteErr  error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: make(map[string]graphdb.Row), rels: make(map[string][]graphdb.Row)}
}

func (f *fakeGraph) Execute(ctx context.Context, query string, params map[string]any) ([]graphdb.Row, error) {
	return nil, nil
}

func (f *fakeGraph) AddNode(ctx context.Context, id, content string, metadata map[string]any, labels []string) (bool, error) {
	if f.addNodeErr != nil {
		return false, f.addNodeErr
	}
	f.nodes[id] = graphdb.Row{"id": id, "content": content, "labels": labels}
	return true, nil
}

func (f *fakeGraph) AddRelationship(ctx context.Context, from, to, relType string, props map[string]any) (bool, error) {
	return true, nil
}

func (f *fakeGraph) GetNode(ctx context.Context, id string) (graphdb.Row, error) {
	return f.nodes[id], nil
}

func (f *fakeGraph) GetNodeRelationships(ctx context.Context, id string) ([]graphdb.Row, error) {
	return f.rels[id], nil
}

func (f *fakeGraph) SearchNodes(ctx context.Context, substring string, limit int) ([]graphdb.Row, error) {
	return nil, nil
}

func (f *fakeGraph) GetAllNodes(ctx context.Context, limit int) ([]graphdb.Row, error) {
	out := make([]graphdb.Row, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeGraph) GetStats(ctx context.Context) (graphdb.Stats, error) {
	return graphdb.Stats{TotalNodes: int64(len(f.nodes))}, nil
}

func (f *fakeGraph) GetOrphanedNodes(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeGraph) DeleteOrphanedNodes(ctx context.Context, limit int) (int64, error) {
	return 0, nil
}

func (f *fakeGraph) OrphanedNodeIDs(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func (f *fakeGraph) AllNodeIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.nodes))
	for id := range f.nodes {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeGraph) CreateEntityLinks(ctx context.Context, threshold float64) (int, error) {
	return 0, nil
}

func (f *fakeGraph) HasIncidentEdges(ctx context.Context, id string) (bool, error) {
	return len(f.rels[id]) > 0, nil
}

func (f *fakeGraph) DeleteNode(ctx context.Context, id string) error {
	delete(f.nodes, id)
	return f.deleteErr
}

func (f *fakeGraph) DeleteAllNodes(ctx context.Context) (int64, error) {
	n := int64(len(f.nodes))
	f.nodes = make(map[string]graphdb.Row)
	return n, nil
}

func (f *fakeGraph) HealthCheck(ctx context.Context) bool { return true }

func (f *fakeGraph) Close(ctx context.Context) error { return nil }

var _ vectordb.Index = (*fakeIndex)(nil)
var _ graphdb.Graph = (*fakeGraph)(nil)

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeIndex, *fakeGraph) {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Cleanup(mr.Close)

	cacheSvc, err := cache.NewCacheService(&config.RedisConfig{Host: mr.Host(), Port: mr.Port(), Timeout: time.Second})
	require.NoError(t, err)

	idx := newFakeIndex()
	g := newFakeGraph()
	embedder := embedding.NewHTTPProvider(config.EmbeddingConfig{Dimension: 8}, nil)

	c := New(idx, g, cacheSvc, embedder, nil, nil)
	return c, idx, g
}

func TestAddWritesVectorAndGraph(t *testing.T) {
	c, idx, g := newTestCoordinator(t)

	result, err := c.Add(context.Background(), "hello world from the coordinator test", model.Metadata{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusFull, result.Status)
	assert.True(t, result.VectorOK)
	assert.True(t, result.GraphOK)
	assert.NotEmpty(t, result.ID)
	assert.Contains(t, idx.docs, result.ID)
	assert.Contains(t, g.nodes, result.ID)
}

func TestAddReturnsPartialWhenGraphFails(t *testing.T) {
	c, _, g := newTestCoordinator(t)
	g.addNodeErr = assertErr{}

	result, err := c.Add(context.Background(), "partial failure content", model.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartial, result.Status)
	assert.True(t, result.VectorOK)
	assert.False(t, result.GraphOK)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestDeleteBlockedWhenConnected(t *testing.T) {
	c, idx, g := newTestCoordinator(t)

	add, err := c.Add(context.Background(), "connected document content", model.Metadata{})
	require.NoError(t, err)
	g.rels[add.ID] = []graphdb.Row{{"type": "SIMILAR_TO"}}

	del, err := c.Delete(context.Background(), add.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, del.Status)
	assert.Contains(t, idx.docs, add.ID) // untouched
}

func TestDeleteRemovesFromBothStores(t *testing.T) {
	c, idx, g := newTestCoordinator(t)

	add, err := c.Add(context.Background(), "doomed document content", model.Metadata{})
	require.NoError(t, err)

	del, err := c.Delete(context.Background(), add.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFull, del.Status)
	assert.NotContains(t, idx.docs, add.ID)
	assert.NotContains(t, g.nodes, add.ID)
}

func TestDeleteAllRequiresConfirmation(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, err := c.DeleteAll(context.Background(), false)
	assert.Error(t, err)
}

func TestDeleteAllTruncatesBothStores(t *testing.T) {
	c, idx, g := newTestCoordinator(t)
	_, err := c.Add(context.Background(), "first document content", model.Metadata{})
	require.NoError(t, err)
	_, err = c.Add(context.Background(), "second document content", model.Metadata{})
	require.NoError(t, err)

	result, err := c.DeleteAll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFull, result.Status)
	assert.Empty(t, idx.docs)
	assert.Empty(t, g.nodes)
}

func TestSyncCreatesMissingGraphNodes(t *testing.T) {
	c, idx, g := newTestCoordinator(t)
	idx.docs["orphan-1"] = vectordb.Result{ID: "orphan-1", Content: "orphan vector point"}

	result, err := c.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Contains(t, g.nodes, "orphan-1")
}

func TestQueryCacheHitShortCircuitsStores(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	first, err := c.Query(context.Background(), "find me something", 5, true)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := c.Query(context.Background(), "find me something", 5, true)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
}

func TestAddUsesEntityTypeLabelsNotNameLabels(t *testing.T) {
	c, _, g := newTestCoordinator(t)

	meta := model.Metadata{Entities: model.Entities{People: []string{"Ada Lovelace"}, Locations: []string{"Berlin"}}}
	result, err := c.Add(context.Background(), "entity-bearing content", meta)
	require.NoError(t, err)
	require.True(t, result.GraphOK, "AddNode must accept entity-type labels as valid Cypher labels")
	assert.Contains(t, g.nodes, result.ID)
	assert.Equal(t, []string{"Document", "Person", "Location"}, g.nodes[result.ID]["labels"])
}

func TestContextAugmentedTextJoinsKeywordsEntitiesLanguage(t *testing.T) {
	meta := model.Metadata{
		Keywords: []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"},
		Entities: model.Entities{People: []string{"Ada Lovelace"}},
		Language: "en",
	}
	text := contextAugmentedText("body", meta)
	assert.Contains(t, text, "body")
	assert.Contains(t, text, "alpha beta gamma delta epsilon")
	assert.NotContains(t, text, "zeta")
	assert.Contains(t, text, "Ada Lovelace")
	assert.Contains(t, text, "en")
}
