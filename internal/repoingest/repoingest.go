// Package repoingest implements the Repo Ingestor: parse a repository
// identifier, shallow-clone it, enumerate and classify its files, and add
// each one to the Store Coordinator with incremental skip/update semantics
// keyed on the file's last-touching commit.
package repoingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dev.vasic.ultramemory/internal/config"
	"dev.vasic.ultramemory/internal/coordinator"
	"dev.vasic.ultramemory/internal/model"
	"dev.vasic.ultramemory/internal/registry"
	"dev.vasic.ultramemory/internal/vectordb"
)

const instrumentationName = "dev.vasic.ultramemory/internal/repoingest"

// categoryValid mirrors code_indexer.py's CATEGORY_VALID — the fixed set of
// organisational labels a repository may be filed under.
var categoryValid = map[string]bool{
	"lefarma": true, "e6labs": true, "personal": true, "opensource": true,
	"hobby": true, "trabajo": true, "dependencias": true, "uncategorized": true,
}

// FileError records one file's ingestion failure without aborting the rest
// of the run.
type FileError struct {
	File  string
	Error string
}

// Result is the outcome of one Ingest call.
type Result struct {
	Repo              string
	Category          string
	DefaultBranch     string
	Visibility        string
	HeadSHA           string
	FilesIndexed      int
	FilesUpdated      int
	FilesSkipped      int
	TotalFiles        int
	CodeWikiAvailable bool
	Errors            []FileError
}

// Options tunes a single Ingest call.
type Options struct {
	Category        string
	Force           bool
	ExcludePatterns []string
	Limit           int
}

// Ingestor is the Repo Ingestor: clone, enumerate, classify, and add every
// supported file in a repository to the Store Coordinator.
type Ingestor struct {
	coord      *coordinator.Coordinator
	vector     vectordb.Index
	cloner     RepoCloner
	categories *registry.CategoryRepository
	cfg        config.RepoIngestConfig
	log        *logrus.Entry
	tracer     trace.Tracer
}

// New builds an Ingestor. categories may be nil — category resolution then
// falls back to Options.Category or "personal", matching this module's
// best-effort-degrade-to-default convention for optional dependencies.
func New(coord *coordinator.Coordinator, vector vectordb.Index, cloner RepoCloner, categories *registry.CategoryRepository, cfg config.RepoIngestConfig, log *logrus.Logger) *Ingestor {
	if log == nil {
		log = logrus.New()
	}
	return &Ingestor{
		coord:      coord,
		vector:     vector,
		cloner:     cloner,
		categories: categories,
		cfg:        cfg,
		log:        log.WithField("component", "repoingest"),
		tracer:     otel.Tracer(instrumentationName),
	}
}

// existingDoc is one already-indexed file, as scanned from the vector store.
type existingDoc struct {
	ID                 string
	LastModifiedCommit string
}

// Ingest parses identifier, clones the repository, enumerates its supported
// files, and adds each one through the Store Coordinator — skipping files
// whose last-modifying commit matches what's already indexed unless
// opts.Force is set.
func (ing *Ingestor) Ingest(ctx context.Context, identifier string, opts Options) (Result, error) {
	ctx, span := ing.tracer.Start(ctx, "repoingest.ingest")
	defer span.End()

	owner, repo, err := ParseIdentifier(identifier)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	fullName := FullName(owner, repo)

	category, err := ing.resolveCategory(ctx, fullName, opts.Category)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	clone, err := ing.cloner.Clone(ctx, owner, repo)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("cloning %s: %w", fullName, err)
	}
	defer ing.cloner.Cleanup(clone.Dir)

	files, err := enumerateFiles(clone.Dir, ing.cfg, opts.ExcludePatterns)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("enumerating files in %s: %w", fullName, err)
	}
	if opts.Limit > 0 && len(files) > opts.Limit {
		files = files[:opts.Limit]
	}

	existing, err := ing.scanExisting(ctx, owner, repo)
	if err != nil {
		ing.log.WithError(err).Warn("scanning existing index failed, proceeding as if nothing is indexed")
		existing = map[string]existingDoc{}
	}

	result := Result{Repo: fullName, Category: category, DefaultBranch: clone.DefaultBranch, Visibility: clone.Visibility, HeadSHA: clone.HeadSHA, TotalFiles: len(files)}

	for _, f := range files {
		outcome, err := ing.ingestFile(ctx, f, owner, repo, fullName, clone, category, opts.Force, existing)
		if err != nil {
			result.Errors = append(result.Errors, FileError{File: f.RelPath, Error: err.Error()})
			continue
		}
		switch outcome {
		case outcomeCreated, outcomeUpdated:
			result.FilesIndexed++
			if outcome == outcomeUpdated {
				result.FilesUpdated++
			}
		case outcomeSkipped:
			result.FilesSkipped++
		}
	}

	span.SetAttributes(
		attribute.String("repo", fullName),
		attribute.Int("files_indexed", result.FilesIndexed),
		attribute.Int("files_skipped", result.FilesSkipped),
		attribute.Int("total_files", result.TotalFiles),
	)
	return result, nil
}

type fileOutcome int

const (
	outcomeSkipped fileOutcome = iota
	outcomeCreated
	outcomeUpdated
)

func (ing *Ingestor) ingestFile(ctx context.Context, f candidateFile, owner, repo, fullName string, clone CloneResult, category string, force bool, existing map[string]existingDoc) (fileOutcome, error) {
	content, err := readFileUTF8(f.AbsPath)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("reading file: %w", err)
	}

	ext := extOf(f.RelPath)
	if vb6Extensions[ext] {
		content = filterVB6BinaryContent(content)
	}

	history, _ := ing.cloner.FileHistory(ctx, clone.Dir, f.RelPath)

	lookupKey := indexKey(owner, repo, f.RelPath)
	if !force {
		if prior, ok := existing[lookupKey]; ok {
			if prior.LastModifiedCommit != "" && prior.LastModifiedCommit == history.SHA {
				return outcomeSkipped, nil
			}
			if err := ing.replaceFile(ctx, prior.ID, f, owner, repo, fullName, clone, category, content, ext, history); err != nil {
				return outcomeSkipped, err
			}
			return outcomeUpdated, nil
		}
	}

	if err := ing.addFile(ctx, f, owner, repo, fullName, clone, category, content, ext, history); err != nil {
		return outcomeSkipped, err
	}
	return outcomeCreated, nil
}

func (ing *Ingestor) replaceFile(ctx context.Context, oldID string, f candidateFile, owner, repo, fullName string, clone CloneResult, category string, content, ext string, history FileCommit) error {
	if _, err := ing.coord.Delete(ctx, oldID, false); err != nil {
		return fmt.Errorf("deleting stale entry: %w", err)
	}
	return ing.addFile(ctx, f, owner, repo, fullName, clone, category, content, ext, history)
}

func (ing *Ingestor) addFile(ctx context.Context, f candidateFile, owner, repo, fullName string, clone CloneResult, category string, content, ext string, history FileCommit) error {
	language := detectLanguage(f.RelPath, []byte(content))

	if ext == ".frm" {
		vb6 := extractVB6Metadata(content)
		if !vb6.empty() {
			if header := vb6Header(vb6); header != "" {
				content = header + "\n\n" + content
			}
		}
	}

	meta := model.Metadata{
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
		Source:             fullName,
		SourceType:         model.SourceCode,
		ContentType:        model.ContentCode,
		RepoOwner:          owner,
		RepoName:           repo,
		FilePath:           f.RelPath,
		FileExtension:      ext,
		FileLanguage:       language,
		LastModifiedCommit: history.SHA,
		Category:           model.Category(category),
		Extra: map[string]any{
			"repo_url":             clone.HTMLURL,
			"commit_sha":           clone.HeadSHA,
			"commit_date":          clone.HeadDate.Format(time.RFC3339),
			"last_modified_date":   history.Date.Format(time.RFC3339),
			"last_modified_author": history.Author,
		},
	}

	_, err := ing.coord.Add(ctx, content, meta)
	return err
}

func extOf(relPath string) string {
	idx := strings.LastIndexByte(relPath, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(relPath[idx:])
}

func indexKey(owner, repo, relPath string) string {
	return owner + "|" + repo + "|" + relPath
}

// scanExisting scrolls the vector store once and builds a lookup keyed on
// (repo_owner, repo_name, file_path), so every file's incremental check is an
// in-memory lookup rather than a fresh scan per file — the same outcome
// code_indexer.py's per-file _check_if_indexed query achieves, batched.
func (ing *Ingestor) scanExisting(ctx context.Context, owner, repo string) (map[string]existingDoc, error) {
	points, err := ing.vector.Scroll(ctx, 100000)
	if err != nil {
		return nil, err
	}
	out := make(map[string]existingDoc)
	for _, p := range points {
		if p.Metadata.RepoOwner != owner || p.Metadata.RepoName != repo {
			continue
		}
		out[indexKey(p.Metadata.RepoOwner, p.Metadata.RepoName, p.Metadata.FilePath)] = existingDoc{
			ID:                 p.ID,
			LastModifiedCommit: p.Metadata.LastModifiedCommit,
		}
	}
	return out, nil
}

// resolveCategory honors an explicit Options.Category first, then the
// CategoryRepository's three-tier lookup (which yields "uncategorized" when
// no pattern matches). With no CategoryRepository it returns "personal".
func (ing *Ingestor) resolveCategory(ctx context.Context, fullName, explicit string) (string, error) {
	if explicit != "" {
		c := strings.ToLower(explicit)
		if !categoryValid[c] {
			return "", fmt.Errorf("invalid category %q", explicit)
		}
		return c, nil
	}
	if ing.categories == nil {
		return "personal", nil
	}
	category, err := ing.categories.Resolve(ctx, fullName)
	if err != nil {
		return "", fmt.Errorf("resolving category for %s: %w", fullName, err)
	}
	return category, nil
}
