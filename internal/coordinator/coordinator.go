// Package coordinator implements the Store Coordinator: the public
// add/query/delete/count/stats/sync surface over the vector, graph, and
// cache stores.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"dev.vasic.ultramemory/internal/cache"
	"dev.vasic.ultramemory/internal/embedding"
	"dev.vasic.ultramemory/internal/enrich"
	"dev.vasic.ultramemory/internal/graphdb"
	"dev.vasic.ultramemory/internal/model"
	"dev.vasic.ultramemory/internal/registry"
	"dev.vasic.ultramemory/internal/vectordb"
)

const instrumentationName = "dev.vasic.ultramemory/internal/coordinator"

const prefetchFanout = 10

// Coordinator is the tri-store orchestrator: every public operation fans out
// to vectordb.Index, graphdb.Graph and cache.CacheService, accumulating
// per-store errors rather than aborting on the first failure.
type Coordinator struct {
	vector   vectordb.Index
	graph    graphdb.Graph
	cacheSvc *cache.CacheService
	embedder embedding.Provider
	audit    *registry.DeletionAuditRepository
	log      *logrus.Entry
	tracer   trace.Tracer
	metrics  *Metrics
}

// New builds a Coordinator over its three backing stores. audit may be nil —
// deletion auditing then degrades to a log line, matching the best-effort
// convention the rest of this component follows.
func New(vector vectordb.Index, graph graphdb.Graph, cacheSvc *cache.CacheService, embedder embedding.Provider, audit *registry.DeletionAuditRepository, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.New()
	}
	return &Coordinator{
		vector:   vector,
		graph:    graph,
		cacheSvc: cacheSvc,
		embedder: embedder,
		audit:    audit,
		log:      log.WithField("component", "coordinator"),
		tracer:   otel.Tracer(instrumentationName),
		metrics:  sharedMetrics(),
	}
}

// QueryResult is the merged, per-source-attributed result of Query.
type QueryResult struct {
	CacheHit bool
	Vector   []vectordb.Result
	Graph    []graphdb.Row
}

// Counts reports per-store item counts.
type Counts struct {
	Vector int
	Graph  int64
}

// SyncResult reports how many nodes the fast Vector→Graph reconciliation
// pass created.
type SyncResult struct {
	Scanned int
	Synced  int
	Errors  int
}

func (c *Coordinator) observe(op string, start time.Time, status model.Status) {
	c.metrics.OpsTotal.WithLabelValues(op, string(status)).Inc()
	c.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Add enriches, embeds, and writes content into every store, per §4.1's add.
func (c *Coordinator) Add(ctx context.Context, content string, metadata model.Metadata) (model.OpResult, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.add")
	defer span.End()
	start := time.Now()

	meta := enrich.Enrich(content, metadata, time.Now().UTC())

	vec := c.embedder.Embed(ctx, contextAugmentedText(content, meta))

	result := model.OpResult{Errors: map[string]string{}}

	if err := c.vector.EnsureCollection(ctx, c.embedder.Dimension()); err != nil {
		c.log.WithError(err).Warn("ensure collection failed")
		result.Errors["vector_ensure"] = err.Error()
	}

	id, err := c.vector.Add(ctx, vec, content, meta)
	if err != nil {
		span.RecordError(err)
		c.log.WithError(err).Warn("vector add failed")
		result.Errors["vector"] = err.Error()
	} else {
		result.VectorOK = true
		result.ID = id
	}

	if result.ID == "" {
		// Graph/cache need a stable key even when the vector write failed —
		// fall back to a content-hash-derived one so the operation still
		// records something addressable.
		result.ID = meta.ContentHash
	}

	labels := append([]string{"Document"}, meta.Entities.EntityTypeLabels()...)
	graphMeta := map[string]any{
		"source":      meta.Source,
		"source_type": string(meta.SourceType),
		"language":    meta.Language,
		"keywords":    strings.Join(meta.Keywords, ","),
	}
	if _, err := c.graph.AddNode(ctx, result.ID, content, graphMeta, labels); err != nil {
		span.RecordError(err)
		c.log.WithError(err).Warn("graph add failed")
		result.Errors["graph"] = err.Error()
	} else {
		result.GraphOK = true
	}

	result.Status = model.DeriveStatus(result.VectorOK, result.GraphOK)
	if len(result.Errors) == 0 {
		result.Errors = nil
	}

	c.writeThroughCache(ctx, result.ID, content, meta)

	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Bool("vector_ok", result.VectorOK),
		attribute.Bool("graph_ok", result.GraphOK),
	)
	if result.Status == model.StatusFailed {
		span.SetStatus(codes.Error, "add failed on every store")
	}
	c.observe("add", start, result.Status)
	return result, nil
}

// writeThroughCache performs step 6-7 of §4.1's add: document/keyword/entity
// cache entries, the reverse entity index, and the recent-documents window.
// Every write is best-effort; failures are logged, never returned.
func (c *Coordinator) writeThroughCache(ctx context.Context, id, content string, meta model.Metadata) {
	if c.cacheSvc == nil || !c.cacheSvc.IsEnabled() {
		return
	}

	if err := c.cacheSvc.CacheDocument(ctx, id, content, time.Hour); err != nil {
		c.log.WithError(err).Debug("cache document write failed")
	}
	if err := c.cacheSvc.CacheKeywords(ctx, id, meta.Keywords, time.Hour); err != nil {
		c.log.WithError(err).Debug("cache keywords write failed")
	}

	entityTokens := entityTokens(meta.Entities)
	if err := c.cacheSvc.CacheDocEntities(ctx, id, entityTokens, 24*time.Hour); err != nil {
		c.log.WithError(err).Debug("cache entities write failed")
	}
	for _, token := range entityTokens {
		if err := c.cacheSvc.IndexEntityDoc(ctx, token, id); err != nil {
			c.log.WithError(err).Debug("entity reverse index write failed")
		}
	}

	if err := c.cacheSvc.TrackRecent(ctx, id, time.Now()); err != nil {
		c.log.WithError(err).Debug("recent-docs tracking failed")
	}
}

func entityTokens(e model.Entities) []string {
	tokens := make([]string, 0, len(e.People)+len(e.Organizations)+len(e.Locations))
	tokens = append(tokens, e.People...)
	tokens = append(tokens, e.Organizations...)
	tokens = append(tokens, e.Locations...)
	return tokens
}

// contextAugmentedText builds the embedding input §4.1 step 2 specifies:
// content, top-5 keywords, up to 4 entities, and the language tag,
// "` | `"-joined.
func contextAugmentedText(content string, meta model.Metadata) string {
	parts := []string{content}

	keywords := meta.Keywords
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	if len(keywords) > 0 {
		parts = append(parts, strings.Join(keywords, " "))
	}

	entities := entityTokens(meta.Entities)
	if len(entities) > 4 {
		entities = entities[:4]
	}
	parts = append(parts, entities...)

	if meta.Language != "" {
		parts = append(parts, meta.Language)
	}

	return strings.Join(parts, " | ")
}

// Query probes the cache, then fans out to the vector and graph stores,
// per §4.1's query.
func (c *Coordinator) Query(ctx context.Context, text string, limit int, useCache bool) (QueryResult, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.query")
	defer span.End()
	start := time.Now()

	if limit <= 0 {
		limit = 10
	}
	normalized := normalizeQuery(text)

	if useCache && c.cacheSvc != nil && c.cacheSvc.IsEnabled() {
		var cached QueryResult
		if err := c.cacheSvc.GetQueryResult(ctx, normalized, &cached); err == nil {
			cached.CacheHit = true
			c.observe("query", start, model.StatusFull)
			return cached, nil
		}
	}

	vec := c.embedder.Embed(ctx, text)

	var vectorResults []vectordb.Result
	var graphResults []graphdb.Row
	var vectorOK, graphOK bool

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		vr, err := c.vector.Search(gctx, vec, limit, 0)
		if err != nil {
			span.RecordError(err)
			return nil // per-store errors never abort the overall query
		}
		vectorResults, vectorOK = vr, true
		return nil
	})
	group.Go(func() error {
		gr, err := c.graph.SearchNodes(gctx, text, limit)
		if err != nil {
			span.RecordError(err)
			return nil
		}
		graphResults, graphOK = gr, true
		return nil
	})
	_ = group.Wait() // both goroutines swallow their own errors; Wait never returns one

	result := QueryResult{Vector: vectorResults, Graph: graphResults}

	if c.cacheSvc != nil && c.cacheSvc.IsEnabled() {
		if err := c.cacheSvc.CacheQueryResult(ctx, normalized, result, time.Hour); err != nil {
			c.log.WithError(err).Debug("query cache write failed")
		}
		go c.prefetch(context.WithoutCancel(ctx), result)
	}

	span.SetAttributes(attribute.Int("vector_results", len(vectorResults)), attribute.Int("graph_results", len(graphResults)))
	c.observe("query", start, model.DeriveStatus(vectorOK, graphOK))
	return result, nil
}

// prefetch is §4.1's step 5: for up to prefetchFanout result IDs, resolve
// co-occurring entities and mark their documents hot. Runs detached from the
// caller's request; any failure is swallowed.
func (c *Coordinator) prefetch(ctx context.Context, result QueryResult) {
	seen := 0
	for _, r := range result.Vector {
		if seen >= prefetchFanout {
			return
		}
		seen++

		entities, err := c.cacheSvc.GetDocEntities(ctx, r.ID)
		if err != nil {
			continue
		}
		for _, token := range entities {
			related, err := c.cacheSvc.DocsForEntity(ctx, token)
			if err != nil {
				continue
			}
			for _, relatedID := range related {
				if relatedID == r.ID {
					continue
				}
				_ = c.cacheSvc.Prefetch(ctx, relatedID, struct{}{}, 30*time.Minute)
			}
		}
	}
}

func normalizeQuery(text string) string {
	return strings.TrimSpace(strings.ToLower(text))
}

// Delete removes a document from every store, per §4.1's delete. When
// preserveConnections is set and the graph reports at least one incident
// edge, the operation is blocked without mutation.
func (c *Coordinator) Delete(ctx context.Context, id string, preserveConnections bool) (model.OpResult, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.delete")
	defer span.End()
	start := time.Now()

	if preserveConnections {
		connected, err := c.graph.HasIncidentEdges(ctx, id)
		if err == nil && connected {
			c.recordAudit(ctx, id, "delete", "blocked: has incident edges", "blocked", "")
			c.observe("delete", start, model.StatusBlocked)
			return model.OpResult{Status: model.StatusBlocked, ID: id}, nil
		}
	}

	result := model.OpResult{ID: id, Errors: map[string]string{}}

	if err := c.vector.Delete(ctx, id); err != nil {
		span.RecordError(err)
		result.Errors["vector"] = err.Error()
	} else {
		result.VectorOK = true
	}

	if err := c.graph.DeleteNode(ctx, id); err != nil {
		span.RecordError(err)
		result.Errors["graph"] = err.Error()
	} else {
		result.GraphOK = true
	}

	if c.cacheSvc != nil && c.cacheSvc.IsEnabled() {
		_ = c.cacheSvc.InvalidateDocument(ctx, id)
	}

	result.Status = model.DeriveStatus(result.VectorOK, result.GraphOK)
	if len(result.Errors) == 0 {
		result.Errors = nil
	}

	c.recordAudit(ctx, id, "delete", "", string(result.Status), "")
	c.observe("delete", start, result.Status)
	return result, nil
}

// DeleteAll truncates every store. Refuses without explicit confirmation.
func (c *Coordinator) DeleteAll(ctx context.Context, confirm bool) (model.OpResult, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.delete_all")
	defer span.End()
	start := time.Now()

	if !confirm {
		c.observe("delete_all", start, model.StatusBlocked)
		return model.OpResult{Status: model.StatusBlocked}, fmt.Errorf("delete-all requires explicit confirmation")
	}

	result := model.OpResult{Errors: map[string]string{}}

	if _, err := c.vector.DeleteAll(ctx); err != nil {
		span.RecordError(err)
		result.Errors["vector"] = err.Error()
	} else {
		result.VectorOK = true
	}

	if _, err := c.graph.DeleteAllNodes(ctx); err != nil {
		span.RecordError(err)
		result.Errors["graph"] = err.Error()
	} else {
		result.GraphOK = true
	}

	result.Status = model.DeriveStatus(result.VectorOK, result.GraphOK)
	if len(result.Errors) == 0 {
		result.Errors = nil
	}

	c.recordAudit(ctx, "*", "delete_all", "", string(result.Status), "")
	c.observe("delete_all", start, result.Status)
	return result, nil
}

func (c *Coordinator) recordAudit(ctx context.Context, id, action, reason, status, replacedBy string) {
	if c.audit == nil {
		c.log.WithFields(logrus.Fields{"id": id, "action": action, "status": status}).Info("deletion audit")
		return
	}
	if _, err := c.audit.Insert(ctx, registry.DeletionAudit{
		DocumentID: id,
		Action:     action,
		Reason:     reason,
		Status:     status,
		ReplacedBy: replacedBy,
	}); err != nil {
		c.log.WithError(err).Warn("deletion audit insert failed")
	}
}

// Count reports per-store item counts.
func (c *Coordinator) Count(ctx context.Context) (Counts, error) {
	_, span := c.tracer.Start(ctx, "coordinator.count")
	defer span.End()

	var counts Counts
	if n, err := c.vector.Count(ctx); err == nil {
		counts.Vector = n
	}
	if stats, err := c.graph.GetStats(ctx); err == nil {
		counts.Graph = stats.TotalNodes
	}
	return counts, nil
}

// Stats returns the graph's full statistics snapshot.
func (c *Coordinator) Stats(ctx context.Context) (graphdb.Stats, error) {
	_, span := c.tracer.Start(ctx, "coordinator.stats")
	defer span.End()
	return c.graph.GetStats(ctx)
}

// Sync is the fast Vector→Graph reconciliation pass: every vector point
// missing a graph node gets one inserted with the same content and metadata.
func (c *Coordinator) Sync(ctx context.Context) (SyncResult, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.sync")
	defer span.End()
	start := time.Now()

	points, err := c.vector.Scroll(ctx, 10000)
	if err != nil {
		span.RecordError(err)
		c.observe("sync", start, model.StatusFailed)
		return SyncResult{}, fmt.Errorf("scrolling vector store: %w", err)
	}

	result := SyncResult{Scanned: len(points)}
	for _, p := range points {
		node, err := c.graph.GetNode(ctx, p.ID)
		if err != nil {
			result.Errors++
			continue
		}
		if node != nil {
			continue
		}

		labels := append([]string{"Document"}, p.Metadata.Entities.EntityTypeLabels()...)
		if _, err := c.graph.AddNode(ctx, p.ID, p.Content, map[string]any{
			"source":      p.Metadata.Source,
			"source_type": string(p.Metadata.SourceType),
		}, labels); err != nil {
			result.Errors++
			continue
		}
		result.Synced++
	}

	c.observe("sync", start, model.StatusFull)
	return result, nil
}
