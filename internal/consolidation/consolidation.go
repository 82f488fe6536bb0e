// Package consolidation implements the Consolidation Engine: a single
// re-runnable entry point, consolidate, that sweeps the tri-store through
// thirteen independent phases — no phase's failure aborts the ones after it.
package consolidation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dev.vasic.ultramemory/internal/config"
	"dev.vasic.ultramemory/internal/embedding"
	"dev.vasic.ultramemory/internal/graphdb"
	"dev.vasic.ultramemory/internal/model"
	"dev.vasic.ultramemory/internal/registry"
	"dev.vasic.ultramemory/internal/vectordb"
)

const instrumentationName = "dev.vasic.ultramemory/internal/consolidation"

const (
	maxContentLength     = 100000
	lowQualityThreshold  = 0.3
	mentionsCapPerEntity = 10
	similarityDocSample  = 100
	similarityScoreFloor = 0.7
	orphanCleanupLimit   = 1000
	entityLinkThreshold  = 0.3 // original_source/core/falkordb_client.py's create_entity_links default
	scrollBatchSize      = 10000
)

// Report is the outcome of one consolidate() pass: a count or note per phase,
// never a hard failure — per-phase errors are recorded, not propagated.
type Report struct {
	Analysis AnalysisSummary

	ChangedDocuments         int
	IncrementalSynced        int
	ExactDuplicatesPurged    int
	SemanticDuplicatesPurged int
	FuzzyDuplicatesPurged    int
	MalformedPurged          int

	EntitiesUpserted int
	MentionsCreated  int
	SimilarToCreated int

	OrphansFound   int64
	OrphansDeleted int64

	InsightDocumentID string

	FixpointIterations int
	EntityLinksCreated int

	Errors   map[string]string
	Duration time.Duration
}

// AnalysisSummary is phase 1's deep-analysis output: the per-issue counts
// the health score and the recommendations in the insight document are both
// derived from.
type AnalysisSummary struct {
	TotalDocuments  int
	EmptyContent    int
	TooShort        int
	TooLong         int
	ExactDuplicates int
	MissingMetadata int
	EncodingIssues  int
	LowQuality      int
	BySource        map[string]int
	HealthScore     float64
}

// Engine runs the thirteen-phase consolidation pipeline over the Store
// Coordinator's three backing stores.
type Engine struct {
	vector   vectordb.Index
	graph    graphdb.Graph
	embedder embedding.Provider
	runs     *registry.ConsolidationRunRepository
	cfg      config.ConsolidationConfig
	log      *logrus.Entry
	tracer   trace.Tracer

	// lastHashes is phase 2's change-detection state: process-lifetime only —
	// a process restart forces a full resync.
	lastHashes map[string]string
}

// New builds a Consolidation Engine. runs may be nil — run bookkeeping then
// degrades to a log line, matching the rest of this module's best-effort
// degrade-don't-crash convention.
func New(vector vectordb.Index, graph graphdb.Graph, embedder embedding.Provider, runs *registry.ConsolidationRunRepository, cfg config.ConsolidationConfig, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		vector:     vector,
		graph:      graph,
		embedder:   embedder,
		runs:       runs,
		cfg:        cfg,
		log:        log.WithField("component", "consolidation"),
		tracer:     otel.Tracer(instrumentationName),
		lastHashes: make(map[string]string),
	}
}

// Consolidate runs every phase in order. forceFull is reserved for a future
// mode that ignores the in-memory change-detection cache; today every run
// already treats phases 4 onward as full passes, so it is accepted but not
// yet branched on.
func (e *Engine) Consolidate(ctx context.Context, forceFull bool) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "consolidation.consolidate")
	defer span.End()
	start := time.Now()

	runID := e.startRun(ctx)

	report := Report{Errors: map[string]string{}}

	points, err := e.vector.Scroll(ctx, scrollBatchSize)
	if err != nil {
		span.RecordError(err)
		report.Errors["scroll"] = err.Error()
		report.Duration = time.Since(start)
		e.finishRun(ctx, runID, report)
		return report, nil
	}

	report.Analysis = e.analyze(points)
	report.ChangedDocuments = e.detectChanges(points)
	report.IncrementalSynced = e.incrementalSync(ctx, points)

	if n, err := e.purgeExactDuplicates(ctx, &points); err != nil {
		report.Errors["exact_duplicates"] = err.Error()
	} else {
		report.ExactDuplicatesPurged = n
	}

	if n, err := e.purgeSemanticDuplicates(ctx, &points); err != nil {
		report.Errors["semantic_duplicates"] = err.Error()
	} else {
		report.SemanticDuplicatesPurged = n
	}

	if n, err := e.purgeFuzzyDuplicates(ctx, &points); err != nil {
		report.Errors["fuzzy_duplicates"] = err.Error()
	} else {
		report.FuzzyDuplicatesPurged = n
	}

	if n, err := e.purgeMalformed(ctx, &points); err != nil {
		report.Errors["malformed"] = err.Error()
	} else {
		report.MalformedPurged = n
	}

	if entities, mentions, err := e.extractEntities(ctx, points); err != nil {
		report.Errors["entities"] = err.Error()
	} else {
		report.EntitiesUpserted = entities
		report.MentionsCreated = mentions
	}

	if n, err := e.linkSimilarDocuments(ctx, points); err != nil {
		report.Errors["similar_to"] = err.Error()
	} else {
		report.SimilarToCreated = n
	}

	orphanIDs, err := e.graph.OrphanedNodeIDs(ctx, orphanCleanupLimit)
	if err != nil {
		report.Errors["orphan_validation"] = err.Error()
	} else {
		report.OrphansFound = e.crossReferenceOrphans(orphanIDs, points)
	}

	if n, err := e.graph.DeleteOrphanedNodes(ctx, orphanCleanupLimit); err != nil {
		report.Errors["orphan_cleanup"] = err.Error()
	} else {
		report.OrphansDeleted = n
	}

	if id, err := e.generateInsights(ctx, report, points); err != nil {
		report.Errors["insights"] = err.Error()
	} else {
		report.InsightDocumentID = id
	}

	iterations, linkCount, err := e.reconcileFixpoint(ctx)
	if err != nil {
		report.Errors["reconciliation"] = err.Error()
	} else {
		report.FixpointIterations = iterations
		report.EntityLinksCreated = linkCount
	}

	report.Analysis.HealthScore = healthScore(report.Analysis, report.OrphansFound)
	report.Duration = time.Since(start)
	if len(report.Errors) == 0 {
		report.Errors = nil
	}

	span.SetAttributes(
		attribute.Int("documents", report.Analysis.TotalDocuments),
		attribute.Int("duplicates_purged", report.ExactDuplicatesPurged+report.SemanticDuplicatesPurged+report.FuzzyDuplicatesPurged),
		attribute.Int64("orphans_deleted", report.OrphansDeleted),
	)
	e.finishRun(ctx, runID, report)
	return report, nil
}

// Analyze runs phase 1 alone: a read-only health report over every scrolled
// document, with no purge, entity, or orphan-cleanup mutation. It backs the
// CLI's `memory analyze` verb, distinct from the full, mutating
// `consolidate`.
func (e *Engine) Analyze(ctx context.Context) (AnalysisSummary, error) {
	ctx, span := e.tracer.Start(ctx, "consolidation.analyze")
	defer span.End()

	points, err := e.vector.Scroll(ctx, scrollBatchSize)
	if err != nil {
		span.RecordError(err)
		return AnalysisSummary{}, err
	}

	orphanIDs, err := e.graph.OrphanedNodeIDs(ctx, orphanCleanupLimit)
	if err != nil {
		e.log.WithError(err).Warn("orphan lookup failed during analyze, health score omits it")
		orphanIDs = nil
	}

	summary := e.analyze(points)
	summary.HealthScore = healthScore(summary, e.crossReferenceOrphans(orphanIDs, points))
	return summary, nil
}

func (e *Engine) startRun(ctx context.Context) string {
	if e.runs == nil {
		return ""
	}
	id, err := e.runs.Start(ctx)
	if err != nil {
		e.log.WithError(err).Warn("starting consolidation run record failed")
		return ""
	}
	return id
}

func (e *Engine) finishRun(ctx context.Context, runID string, report Report) {
	if e.runs == nil || runID == "" {
		e.log.WithField("report", report).Info("consolidation run complete (unrecorded)")
		return
	}
	run := registry.ConsolidationRun{
		PhasesCompleted:    13,
		DocumentsProcessed: report.Analysis.TotalDocuments,
		DuplicatesRemoved:  report.ExactDuplicatesPurged + report.SemanticDuplicatesPurged + report.FuzzyDuplicatesPurged,
		OrphansRemoved:     int(report.OrphansDeleted),
		FixpointIterations: report.FixpointIterations,
	}
	if len(report.Errors) > 0 {
		run.Error = strings.Join(errorMessages(report.Errors), "; ")
	}
	if err := e.runs.Finish(ctx, runID, run); err != nil {
		e.log.WithError(err).Warn("finishing consolidation run record failed")
	}
}

func errorMessages(errs map[string]string) []string {
	out := make([]string, 0, len(errs))
	for phase, msg := range errs {
		out = append(out, phase+": "+msg)
	}
	return out
}

// sha256Hex is phase 2's change-detection hash — the full digest, unlike the
// 16-character truncation model.Metadata.ContentHash carries for cache keys.
func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// detectChanges hashes every document with SHA-256 and compares against the
// engine's in-memory hash map from the previous run, per phase 2. The
// changed/new set becomes report.ChangedDocuments; lastHashes is updated for
// the next call.
func (e *Engine) detectChanges(points []vectordb.Result) int {
	changed := 0
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		seen[p.ID] = struct{}{}
		h := sha256Hex(p.Content)
		if prev, ok := e.lastHashes[p.ID]; !ok || prev != h {
			changed++
		}
		e.lastHashes[p.ID] = h
	}
	for id := range e.lastHashes {
		if _, ok := seen[id]; !ok {
			delete(e.lastHashes, id)
		}
	}
	return changed
}

// incrementalSync is phase 3: upsert a graph node for every changed ID found
// by detectChanges. Rather than track a separate changed-ID list, it simply
// re-upserts every document scrolled this pass — MERGE semantics make that
// idempotent and correct, just not maximally cheap; §4.6 doesn't require the
// cheaper variant and the full Sync the Store Coordinator already runs
// separately covers the hot path.
func (e *Engine) incrementalSync(ctx context.Context, points []vectordb.Result) int {
	synced := 0
	for _, p := range points {
		labels := append([]string{"Document"}, p.Metadata.Entities.EntityTypeLabels()...)
		if _, err := e.graph.AddNode(ctx, p.ID, p.Content, graphMetadata(p.Metadata), labels); err != nil {
			e.log.WithError(err).WithField("id", p.ID).Debug("incremental sync upsert failed")
			continue
		}
		synced++
	}
	return synced
}

func graphMetadata(meta model.Metadata) map[string]any {
	return map[string]any{
		"source":      meta.Source,
		"source_type": string(meta.SourceType),
		"language":    meta.Language,
	}
}

// crossReferenceOrphans is phase 10: an orphaned graph node (no incident
// edges) is only a genuine orphan if it also has no counterpart in the
// vector store — a node id that IS in points just hasn't been linked yet.
func (e *Engine) crossReferenceOrphans(orphanIDs []string, points []vectordb.Result) int64 {
	vectorIDs := make(map[string]struct{}, len(points))
	for _, p := range points {
		vectorIDs[p.ID] = struct{}{}
	}
	var count int64
	for _, id := range orphanIDs {
		if _, ok := vectorIDs[id]; !ok {
			count++
		}
	}
	return count
}

// reconcileFixpoint is phase 13: iterate up to cfg.MaxFixpointIterations
// times, each round computing the symmetric difference between the vector
// store's ID set and the graph's ID set — deleting graph-only orphans and
// upserting vector-only misses — until the two sets agree or the iteration
// bound is reached. It finishes by running CreateEntityLinks to densify the
// graph with real keyword-overlap edges.
func (e *Engine) reconcileFixpoint(ctx context.Context) (int, int, error) {
	maxIter := e.cfg.MaxFixpointIterations
	if maxIter <= 0 {
		maxIter = 5
	}

	iterations := 0
	for ; iterations < maxIter; iterations++ {
		vectorPoints, err := e.vector.Scroll(ctx, scrollBatchSize)
		if err != nil {
			return iterations, 0, err
		}
		graphIDs, err := e.graph.AllNodeIDs(ctx)
		if err != nil {
			return iterations, 0, err
		}

		vectorSet := make(map[string]vectordb.Result, len(vectorPoints))
		for _, p := range vectorPoints {
			vectorSet[p.ID] = p
		}
		graphSet := make(map[string]struct{}, len(graphIDs))
		for _, id := range graphIDs {
			graphSet[id] = struct{}{}
		}

		var missing []vectordb.Result
		for id, p := range vectorSet {
			if _, ok := graphSet[id]; !ok {
				missing = append(missing, p)
			}
		}
		var extra []string
		for id := range graphSet {
			if _, ok := vectorSet[id]; !ok {
				extra = append(extra, id)
			}
		}

		if len(missing) == 0 && len(extra) == 0 {
			break
		}

		for _, p := range missing {
			labels := append([]string{"Document"}, p.Metadata.Entities.EntityTypeLabels()...)
			if _, err := e.graph.AddNode(ctx, p.ID, p.Content, graphMetadata(p.Metadata), labels); err != nil {
				e.log.WithError(err).WithField("id", p.ID).Debug("fixpoint reconciliation upsert failed")
			}
		}
		for _, id := range extra {
			if err := e.graph.DeleteNode(ctx, id); err != nil {
				e.log.WithError(err).WithField("id", id).Debug("fixpoint reconciliation delete failed")
			}
		}
	}
	if iterations == maxIter {
		e.log.WithField("iterations", iterations).Warn("fixpoint reconciliation reached its iteration bound")
	}

	linkCount, err := e.graph.CreateEntityLinks(ctx, entityLinkThreshold)
	if err != nil {
		return iterations, 0, err
	}
	return iterations, linkCount, nil
}
