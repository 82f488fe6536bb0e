package docproc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultExtensions is the directory-walk allow-list, grounded on
// librarian.py's add_from_directory default extensions argument.
var defaultExtensions = map[string]bool{
	".txt":  true,
	".pdf":  true,
	".md":   true,
	".html": true,
	".xlsx": true,
	".csv":  true,
}

// Adder is the subset of the Store Coordinator that directory ingestion
// depends on — kept narrow so this package never imports the coordinator.
type Adder interface {
	Add(ctx context.Context, content string, metadata map[string]any) (string, error)
}

// FileResult records the outcome of ingesting a single file.
type FileResult struct {
	Path        string
	ChunksAdded int
	Err         error
}

// DirectorySummary is the aggregate report of a directory-ingestion walk.
type DirectorySummary struct {
	FilesProcessed int
	ChunksCreated  int
	Results        []FileResult
}

// IngestDirectory walks directory, processing and chunking every file whose
// extension is in extensions (or the default allow-list when nil), and adds
// each chunk through adder with source/chunk_index/total_chunks metadata
// merged over the caller-supplied metadata — mirroring librarian.py's
// add_from_directory, including its per-file error tolerance.
func (p *Processor) IngestDirectory(ctx context.Context, adder Adder, directory string, extensions []string, metadata map[string]any) (DirectorySummary, error) {
	allow := defaultExtensions
	if len(extensions) > 0 {
		allow = make(map[string]bool, len(extensions))
		for _, ext := range extensions {
			allow[strings.ToLower(ext)] = true
		}
	}

	var summary DirectorySummary

	err := filepath.WalkDir(directory, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !allow[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		result := FileResult{Path: path}
		n, err := p.ingestFile(ctx, adder, path, metadata)
		result.ChunksAdded = n
		result.Err = err

		summary.Results = append(summary.Results, result)
		summary.FilesProcessed++
		summary.ChunksCreated += n
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("walking %s: %w", directory, err)
	}

	return summary, nil
}

func (p *Processor) ingestFile(ctx context.Context, adder Adder, path string, baseMetadata map[string]any) (int, error) {
	processed, err := p.Process(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("processing %s: %w", path, err)
	}

	chunks := p.Chunk(processed.Text)
	if len(chunks) == 0 {
		return 0, nil
	}

	added := 0
	for i, chunk := range chunks {
		meta := make(map[string]any, len(baseMetadata)+3)
		for k, v := range baseMetadata {
			meta[k] = v
		}
		meta["source"] = path
		meta["chunk_index"] = i
		meta["total_chunks"] = len(chunks)

		if _, err := adder.Add(ctx, chunk, meta); err != nil {
			return added, fmt.Errorf("adding chunk %d of %s: %w", i, path, err)
		}
		added++
	}

	return added, nil
}
