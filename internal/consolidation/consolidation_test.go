package consolidation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.vasic.ultramemory/internal/config"
	"dev.vasic.ultramemory/internal/embedding"
	"dev.vasic.ultramemory/internal/graphdb"
	"dev.vasic.ultramemory/internal/model"
	"dev.vasic.ultramemory/internal/vectordb"
)

type fakeIndex struct {
	docs map[string]vectordb.Result
}

func newFakeIndex() *fakeIndex { return &fakeIndex{docs: make(map[string]vectordb.Result)} }

func (f *fakeIndex) EnsureCollection(ctx context.Context, dim int) error { return nil }

func (f *fakeIndex) Add(ctx context.Context, vector []float32, content string, meta model.Metadata) (string, error) {
	id := "doc-" + content[:min(len(content), 8)]
	f.docs[id] = vectordb.Result{ID: id, Content: content, Metadata: meta}
	return id, nil
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, limit int, minScore float32) ([]vectordb.Result, error) {
	return nil, nil
}

func (f *fakeIndex) Delete(ctx context.Context, id string) error {
	delete(f.docs, id)
	return nil
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
	nodes map[string]graphdb.Row
	rels  map[string][]graphdb.Row
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: make(map[string]graphdb.Row), rels: make(map[string][]graphdb.Row)}
}

func (f *fakeGraph) Execute(ctx context.Context, query string, params map[string]any) ([]graphdb.Row, error) {
	return nil, nil
}

func (f *fakeGraph) AddNode(ctx context.Context, id, content string, metadata map[string]any, labels []string) (bool, error) {
	f.nodes[id] = graphdb.Row{"id": id, "content": content, "labels": labels}
	return true, nil
}

func (f *fakeGraph) AddRelationship(ctx context.Context, from, to, relType string, props map[string]any) (bool, error) {
	f.rels[from] = append(f.rels[from], graphdb.Row{"type": relType, "target": to})
	return true, nil
}

func (f *fakeGraph) GetNode(ctx context.Context, id string) (graphdb.Row, error) { return f.nodes[id], nil }

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

func (f *fakeGraph) DeleteOrphanedNodes(ctx context.Context, limit int) (int64, error) { return 0, nil }

func (f *fakeGraph) OrphanedNodeIDs(ctx context.Context, limit int) ([]string, error) { return nil, nil }

// AllNodeIDs mirrors the real store's `MATCH (n:Document) RETURN n.id` —
// Entity nodes carry other labels and must not be returned here.
func (f *fakeGraph) AllNodeIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.nodes))
	for id, n := range f.nodes {
		labels, _ := n["labels"].([]string)
		for _, l := range labels {
			if l == "Document" {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (f *fakeGraph) CreateEntityLinks(ctx context.Context, threshold float64) (int, error) { return 0, nil }

func (f *fakeGraph) HasIncidentEdges(ctx context.Context, id string) (bool, error) {
	return len(f.rels[id]) > 0, nil
}

func (f *fakeGraph) DeleteNode(ctx context.Context, id string) error {
	delete(f.nodes, id)
	return nil
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

func newTestEngine(t *testing.T) (*Engine, *fakeIndex, *fakeGraph) {
	t.Helper()
	idx := newFakeIndex()
	g := newFakeGraph()
	embedder := embedding.NewHTTPProvider(config.EmbeddingConfig{Dimension: 8}, nil)
	cfg := config.ConsolidationConfig{
		SemanticSampleSize:    200,
		SemanticSimThreshold:  0.85,
		FuzzyMatchThreshold:   0.75,
		MaxFixpointIterations: 5,
		MinContentLength:      10,
	}
	e := New(idx, g, embedder, nil, cfg, nil)
	return e, idx, g
}

func TestAnalyzeCountsIssueBuckets(t *testing.T) {
	e, _, _ := newTestEngine(t)
	points := []vectordb.Result{
		{ID: "a", Content: "   ", Metadata: model.Metadata{Source: "s"}},
		{ID: "b", Content: "short", Metadata: model.Metadata{Source: "s"}},
		{ID: "c", Content: "Duplicate content here", Metadata: model.Metadata{Source: "s"}},
		{ID: "d", Content: "duplicate content here", Metadata: model.Metadata{Source: "s"}},
	}
	summary := e.analyze(points)
	assert.Equal(t, 4, summary.TotalDocuments)
	assert.Equal(t, 1, summary.EmptyContent)
	assert.Equal(t, 1, summary.TooShort)
	assert.Equal(t, 1, summary.ExactDuplicates)
}

func TestPurgeExactDuplicatesKeepsFirstOccurrence(t *testing.T) {
	e, idx, _ := newTestEngine(t)
	idx.docs["a"] = vectordb.Result{ID: "a", Content: "same text content here"}
	idx.docs["b"] = vectordb.Result{ID: "b", Content: "same text content here"}
	points := []vectordb.Result{idx.docs["a"], idx.docs["b"]}

	n, err := e.purgeExactDuplicates(context.Background(), &points)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, idx.docs, "a")
	assert.NotContains(t, idx.docs, "b")
}

func TestPurgeMalformedRemovesEmptyAndShort(t *testing.T) {
	e, idx, _ := newTestEngine(t)
	idx.docs["empty"] = vectordb.Result{ID: "empty", Content: "   "}
	idx.docs["short"] = vectordb.Result{ID: "short", Content: "hi"}
	idx.docs["fine"] = vectordb.Result{ID: "fine", Content: "this is a perfectly fine document"}
	points := []vectordb.Result{idx.docs["empty"], idx.docs["short"], idx.docs["fine"]}

	n, err := e.purgeMalformed(context.Background(), &points)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, points, 1)
	assert.Equal(t, "fine", points[0].ID)
}

func TestExtractEntitiesCreatesNodesAndCappedMentions(t *testing.T) {
	e, _, g := newTestEngine(t)
	points := make([]vectordb.Result, 0, 15)
	for i := 0; i < 15; i++ {
		points = append(points, vectordb.Result{ID: docIDFor(i), Content: "Ada Lovelace reviewed the design today."})
	}

	entities, mentions, err := e.extractEntities(context.Background(), points)
	require.NoError(t, err)
	assert.Equal(t, 1, entities)
	assert.Equal(t, mentionsCapPerEntity, mentions)
	assert.Contains(t, g.nodes, entityNodeID("Person", "Ada Lovelace"))
}

func docIDFor(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestHealthScorePerfectWhenNoIssues(t *testing.T) {
	score := healthScore(AnalysisSummary{TotalDocuments: 10}, 0)
	assert.Equal(t, 100.0, score)
}

func TestHealthScorePenalizesIssues(t *testing.T) {
	a := AnalysisSummary{TotalDocuments: 10, EmptyContent: 2, ExactDuplicates: 1}
	score := healthScore(a, 0)
	assert.Less(t, score, 100.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestCrossReferenceOrphansExcludesVectorBacked(t *testing.T) {
	e, _, _ := newTestEngine(t)
	points := []vectordb.Result{{ID: "has-vector"}}
	count := e.crossReferenceOrphans([]string{"has-vector", "truly-orphaned"}, points)
	assert.Equal(t, int64(1), count)
}

func TestReconcileFixpointConvergesWhenSetsMatch(t *testing.T) {
	e, idx, g := newTestEngine(t)
	idx.docs["x"] = vectordb.Result{ID: "x", Content: "synced document"}
	g.nodes["x"] = graphdb.Row{"id": "x", "labels": []string{"Document"}}

	iterations, _, err := e.reconcileFixpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, iterations)
}

func TestReconcileFixpointUpsertsMissingAndDeletesExtra(t *testing.T) {
	e, idx, g := newTestEngine(t)
	idx.docs["vector-only"] = vectordb.Result{ID: "vector-only", Content: "needs a graph node"}
	g.nodes["graph-only"] = graphdb.Row{"id": "graph-only", "labels": []string{"Document"}}

	iterations, _, err := e.reconcileFixpoint(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, iterations, 1)
	assert.Contains(t, g.nodes, "vector-only")
	assert.NotContains(t, g.nodes, "graph-only")
}

func TestConsolidateRunsAllPhasesWithoutError(t *testing.T) {
	e, idx, g := newTestEngine(t)
	idx.docs["a"] = vectordb.Result{ID: "a", Content: "Ada Lovelace worked on project Babbage for Acme Inc today."}

	report, err := e.Consolidate(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Analysis.TotalDocuments)

	// Entity nodes phase 8 creates have no vector-store counterpart by design
	// and must survive phase 13's fixpoint reconciliation, which only diffs
	// Document-labeled nodes against the vector store's ID set.
	foundEntity := false
	for id := range g.nodes {
		if strings.HasPrefix(id, "entity:") {
			foundEntity = true
			break
		}
	}
	assert.True(t, foundEntity, "entity node should survive consolidation's fixpoint reconciliation")
}
