// Package docproc implements the Document Processor: format-aware text
// extraction, chunking, and directory-ingestion walk.
package docproc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"

	"dev.vasic.ultramemory/internal/model"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	urlFetchTimeout     = 30 * time.Second
	urlTruncateChars    = 50000
)

// Processed is the text extracted from a piece of content, plus the
// provenance metadata the extraction step already knows.
type Processed struct {
	Text       string
	SourceType model.SourceType
	Metadata   map[string]string
}

// Processor extracts and chunks text from text/file/URL content, per §4.9.
type Processor struct {
	ChunkSize    int
	ChunkOverlap int
	httpClient   *http.Client
}

// NewProcessor builds a Processor with the configured chunk window, falling
// back to defaults (1000/200) when zero.
func NewProcessor(chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap <= 0 {
		chunkOverlap = defaultChunkOverlap
	}
	return &Processor{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		httpClient:   &http.Client{Timeout: urlFetchTimeout},
	}
}

// Process detects whether content is a URL, an existing file path, or bare
// text, and extracts plain text accordingly.
func (p *Processor) Process(ctx context.Context, content string) (Processed, error) {
	if strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://") {
		return p.processURL(ctx, content)
	}

	if info, err := os.Stat(content); err == nil && !info.IsDir() {
		return p.processFile(content)
	}

	return Processed{Text: content, SourceType: model.SourceText, Metadata: map[string]string{}}, nil
}

func (p *Processor) processFile(path string) (Processed, error) {
	ext := strings.ToLower(filepath.Ext(path))
	meta := map[string]string{"filename": filepath.Base(path)}

	switch ext {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return Processed{}, fmt.Errorf("reading %s: %w", path, err)
		}
		return Processed{Text: string(data), SourceType: model.SourceTextFile, Metadata: meta}, nil

	case ".csv":
		data, err := os.ReadFile(path)
		if err != nil {
			return Processed{}, fmt.Errorf("reading %s: %w", path, err)
		}
		return Processed{Text: string(data), SourceType: model.SourceDocument, Metadata: meta}, nil

	case ".html":
		data, err := os.ReadFile(path)
		if err != nil {
			return Processed{}, fmt.Errorf("reading %s: %w", path, err)
		}
		return Processed{Text: stripHTML(string(data)), SourceType: model.SourceDocument, Metadata: meta}, nil

	case ".xlsx", ".xls":
		// Spreadsheet parsing requires a binary-format reader this module does
		// not carry (no xlsx library is present anywhere in the retrieved
		// pack); the raw path is passed through for a caller-supplied
		// extraction step to fill in, matching the original's per-sheet-CSV
		// shape only once such a reader is wired.
		return Processed{Text: path, SourceType: model.SourceDocument, Metadata: meta}, nil

	case ".pdf":
		// Same rationale as .xlsx/.xls above: no PDF text-extraction library
		// is present in the retrieved pack.
		return Processed{Text: path, SourceType: model.SourceDocument, Metadata: meta}, nil

	default:
		return Processed{Text: path, SourceType: model.SourceFile, Metadata: meta}, nil
	}
}

func (p *Processor) processURL(ctx context.Context, url string) (Processed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Processed{}, fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Processed{}, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Processed{}, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Processed{}, fmt.Errorf("reading response from %s: %w", url, err)
	}

	text := string(body)
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		text = stripHTML(text)
	}

	if len(text) > urlTruncateChars {
		text = text[:urlTruncateChars]
	}

	return Processed{
		Text:       text,
		SourceType: model.SourceURL,
		Metadata:   map[string]string{"url": url},
	}, nil
}

// stripHTML removes <script>/<style> subtrees and renders the remaining text
// nodes newline-separated, mirroring BeautifulSoup's get_text(separator="\n").
func stripHTML(doc string) string {
	node, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return doc
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				b.WriteString(trimmed)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return strings.TrimRight(b.String(), "\n")
}

// Chunk splits text into overlapping windows, breaking at the last period or
// newline within range when possible, per §4.9. Inputs at or below the
// window size pass through unchunked; empty chunks are dropped.
func (p *Processor) Chunk(text string) []string {
	if len(text) <= p.ChunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + p.ChunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			window := text[start:end]
			lastPeriod := strings.LastIndex(window, ".")
			lastNewline := strings.LastIndex(window, "\n")
			breakPoint := lastPeriod
			if lastNewline > breakPoint {
				breakPoint = lastNewline
			}
			if breakPoint > 0 {
				end = start + breakPoint + 1
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - p.ChunkOverlap
		if next <= start {
			next = end // guards against a zero/negative advance when overlap >= window
		}
		start = next
	}

	return chunks
}
