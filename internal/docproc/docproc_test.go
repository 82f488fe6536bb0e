package docproc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkPassThroughBelowWindow(t *testing.T) {
	p := NewProcessor(1000, 200)
	chunks := p.Chunk("a short document")
	assert.Equal(t, []string{"a short document"}, chunks)
}

func TestChunkEmptyReturnsNoChunks(t *testing.T) {
	p := NewProcessor(1000, 200)
	assert.Nil(t, p.Chunk("   "))
}

func TestChunkBreaksAtSentenceBoundary(t *testing.T) {
	p := NewProcessor(20, 5)
	text := "First sentence here. Second sentence follows. Third one too."
	chunks := p.Chunk(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
	// the first window holds a period, so the first chunk ends exactly there
	assert.Equal(t, "First sentence here.", chunks[0])
	joined := strings.Join(chunks, "")
	assert.Contains(t, joined, "First sentence")
}

func TestChunkOverlapsWindows(t *testing.T) {
	p := NewProcessor(50, 10)
	text := strings.Repeat("word ", 40)
	chunks := p.Chunk(text)
	assert.Greater(t, len(chunks), 1)
}

func TestProcessPlainText(t *testing.T) {
	p := NewProcessor(1000, 200)
	result, err := p.Process(context.Background(), "just some bare text")
	require.NoError(t, err)
	assert.Equal(t, "just some bare text", result.Text)
}

func TestProcessTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("file contents"), 0o644))

	p := NewProcessor(1000, 200)
	result, err := p.Process(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "file contents", result.Text)
}

func TestProcessHTMLStripsScriptAndStyle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	html := `<html><head><style>body{color:red}</style></head><body><script>alert(1)</script><p>Hello world</p></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(html), 0o644))

	p := NewProcessor(1000, 200)
	result, err := p.Process(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Hello world")
	assert.NotContains(t, result.Text, "alert")
	assert.NotContains(t, result.Text, "color:red")
}

func TestProcessURLFetchesAndStripsHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><script>bad()</script><p>remote content</p></body></html>`))
	}))
	defer server.Close()

	p := NewProcessor(1000, 200)
	result, err := p.Process(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "remote content")
	assert.NotContains(t, result.Text, "bad()")
}

type fakeAdder struct {
	calls []map[string]any
}

func (f *fakeAdder) Add(ctx context.Context, content string, metadata map[string]any) (string, error) {
	f.calls = append(f.calls, metadata)
	return "id", nil
}

func TestIngestDirectoryAddsChunksWithMetadata(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello from file a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte("ignored"), 0o644))

	p := NewProcessor(1000, 200)
	adder := &fakeAdder{}
	summary, err := p.IngestDirectory(context.Background(), adder, dir, nil, map[string]any{"project": "demo"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FilesProcessed)
	assert.Equal(t, 1, summary.ChunksCreated)
	require.Len(t, adder.calls, 1)
	assert.Equal(t, "demo", adder.calls[0]["project"])
	assert.Equal(t, 0, adder.calls[0]["chunk_index"])
	assert.Equal(t, 1, adder.calls[0]["total_chunks"])
}
