package repoingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.vasic.ultramemory/internal/config"
	"dev.vasic.ultramemory/internal/coordinator"
	"dev.vasic.ultramemory/internal/embedding"
	"dev.vasic.ultramemory/internal/graphdb"
	"dev.vasic.ultramemory/internal/model"
	"dev.vasic.ultramemory/internal/vectordb"
)

func TestParseIdentifierShorthand(t *testing.T) {
	owner, repo, err := ParseIdentifier("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)
}

func TestParseIdentifierFullURL(t *testing.T) {
	owner, repo, err := ParseIdentifier("https://github.com/acme/widgets.git")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)
}

func TestParseIdentifierInvalid(t *testing.T) {
	_, _, err := ParseIdentifier("not a repo")
	assert.Error(t, err)
}

func TestFilterVB6BinaryContentKeepsStructuralLines(t *testing.T) {
	raw := "VERSION 5.00\nBegin VB.Form frmMain\n   Caption         =   \"Main Form\"\n   Height          =   3000\nEnd\n"
	filtered := filterVB6BinaryContent(raw)
	assert.Contains(t, filtered, "Begin VB.Form frmMain")
	assert.Contains(t, filtered, "Caption")
}

func TestFilterVB6BinaryContentFallsBackToMetadata(t *testing.T) {
	raw := "\x00\x01garbled\x02\nCaption = \"Lone Caption\"\n\x03\x04more garbage\x05\n"
	filtered := filterVB6BinaryContent(raw)
	assert.Contains(t, filtered, "Caption")
}

func TestExtractVB6MetadataParsesForm(t *testing.T) {
	content := "Begin VB.Form frmMain\nCaption = \"Main Form\"\nBegin VB.TextBox txtName\nEnd\nAttribute VB_Name = \"frmMain\"\nPrivate Sub Form_Load\n"
	meta := extractVB6Metadata(content)
	assert.Equal(t, "frmMain", meta.FormName)
	assert.Equal(t, "Main Form", meta.Caption)
	assert.Contains(t, meta.Controls, "TextBox:txtName")
	assert.Contains(t, meta.Procedures, "Private Sub Form_Load")
}

func TestEnumerateFilesAppliesAllowListExcludesAndSizeCap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("binary"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "dep.js"), []byte("skip me"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "huge.go"), make([]byte, 2*1024*1024), 0o644))

	cfg := config.RepoIngestConfig{MaxFileSizeKB: 1024}
	files, err := enumerateFiles(dir, cfg, nil)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.RelPath)
	}
	assert.Contains(t, names, "main.go")
	assert.NotContains(t, names, "image.png")
	assert.NotContains(t, names, filepath.Join("node_modules", "dep.js"))
	assert.NotContains(t, names, "huge.go")
}

func TestDetectLanguageFallsBackToLegacyTable(t *testing.T) {
	// .dsr (VB6 Data Report) has no go-enry grammar, so this exercises the
	// legacy-extension fallback rather than go-enry's own classification.
	lang := detectLanguage("Report1.dsr", []byte("VERSION 5.00\nBegin VB.DataReport Report1\nEnd"))
	assert.Equal(t, "VB Data Report", lang)
}

type fakeCloner struct {
	dir     string
	history FileCommit
}

func (f *fakeCloner) Clone(ctx context.Context, owner, repo string) (CloneResult, error) {
	return CloneResult{Dir: f.dir, HeadSHA: "headsha", DefaultBranch: "main", Visibility: "public", HTMLURL: "https://github.com/" + owner + "/" + repo}, nil
}

func (f *fakeCloner) FileHistory(ctx context.Context, dir, relPath string) (FileCommit, error) {
	return f.history, nil
}

func (f *fakeCloner) Cleanup(dir string) {}

type fakeIndex struct {
	docs map[string]vectordb.Result
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, dim int) error { return nil }
func (f *fakeIndex) Add(ctx context.Context, vector []float32, content string, meta model.Metadata) (string, error) {
	id := meta.FilePath
	if id == "" {
		id = content
	}
	f.docs[id] = vectordb.Result{ID: id, Content: content, Metadata: meta}
	return id, nil
}
func (f *fakeIndex) Search(ctx context.Context, vector []float32, limit int, minScore float32) ([]vectordb.Result, error) {
	return nil, nil
}
func (f *fakeIndex) Delete(ctx context.Context, id string) error { delete(f.docs, id); return nil }
func (f *fakeIndex) DeleteAll(ctx context.Context) (int, error) {
	n := len(f.docs)
	f.docs = map[string]vectordb.Result{}
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

type fakeGraph struct {
	nodes map[string]graphdb.Row
}

func (f *fakeGraph) Execute(ctx context.Context, query string, params map[string]any) ([]graphdb.Row, error) {
	return nil, nil
}
func (f *fakeGraph) AddNode(ctx context.Context, id, content string, metadata map[string]any, labels []string) (bool, error) {
	f.nodes[id] = graphdb.Row{"id": id}
	return true, nil
}
func (f *fakeGraph) AddRelationship(ctx context.Context, from, to, relType string, props map[string]any) (bool, error) {
	return true, nil
}
func (f *fakeGraph) GetNode(ctx context.Context, id string) (graphdb.Row, error) { return f.nodes[id], nil }
func (f *fakeGraph) GetNodeRelationships(ctx context.Context, id string) ([]graphdb.Row, error) {
	return nil, nil
}
func (f *fakeGraph) SearchNodes(ctx context.Context, substring string, limit int) ([]graphdb.Row, error) {
	return nil, nil
}
func (f *fakeGraph) GetAllNodes(ctx context.Context, limit int) ([]graphdb.Row, error) { return nil, nil }
func (f *fakeGraph) GetStats(ctx context.Context) (graphdb.Stats, error)               { return graphdb.Stats{}, nil }
func (f *fakeGraph) GetOrphanedNodes(ctx context.Context) (int64, error)               { return 0, nil }
func (f *fakeGraph) DeleteOrphanedNodes(ctx context.Context, limit int) (int64, error) { return 0, nil }
func (f *fakeGraph) OrphanedNodeIDs(ctx context.Context, limit int) ([]string, error)  { return nil, nil }
func (f *fakeGraph) AllNodeIDs(ctx context.Context) ([]string, error)                  { return nil, nil }
func (f *fakeGraph) CreateEntityLinks(ctx context.Context, threshold float64) (int, error) {
	return 0, nil
}
func (f *fakeGraph) HasIncidentEdges(ctx context.Context, id string) (bool, error) { return false, nil }
func (f *fakeGraph) DeleteNode(ctx context.Context, id string) error               { delete(f.nodes, id); return nil }
func (f *fakeGraph) DeleteAllNodes(ctx context.Context) (int64, error)             { return 0, nil }
func (f *fakeGraph) HealthCheck(ctx context.Context) bool                         { return true }
func (f *fakeGraph) Close(ctx context.Context) error                              { return nil }

var _ vectordb.Index = (*fakeIndex)(nil)
var _ graphdb.Graph = (*fakeGraph)(nil)

func TestIngestIndexesSupportedFilesAndSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("binary"), 0o644))

	idx := &fakeIndex{docs: map[string]vectordb.Result{}}
	g := &fakeGraph{nodes: map[string]graphdb.Row{}}
	embedder := embedding.NewHTTPProvider(config.EmbeddingConfig{Dimension: 8}, nil)
	coord := coordinator.New(idx, g, nil, embedder, nil, nil)
	cloner := &fakeCloner{dir: dir, history: FileCommit{SHA: "abc123"}}
	cfg := config.RepoIngestConfig{MaxFileSizeKB: 1024}

	ing := New(coord, idx, cloner, nil, cfg, nil)

	result, err := ing.Ingest(context.Background(), "acme/widgets", Options{})
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", result.Repo)
	assert.Equal(t, 1, result.FilesIndexed)
	assert.Equal(t, 1, result.TotalFiles)
	assert.Empty(t, result.Errors)

	result2, err := ing.Ingest(context.Background(), "acme/widgets", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result2.FilesSkipped)
	assert.Equal(t, 0, result2.FilesIndexed)
}
