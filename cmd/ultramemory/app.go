package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"dev.vasic.ultramemory/internal/cache"
	"dev.vasic.ultramemory/internal/config"
	"dev.vasic.ultramemory/internal/consolidation"
	"dev.vasic.ultramemory/internal/coordinator"
	"dev.vasic.ultramemory/internal/docproc"
	"dev.vasic.ultramemory/internal/embedding"
	"dev.vasic.ultramemory/internal/graphdb"
	"dev.vasic.ultramemory/internal/registry"
	"dev.vasic.ultramemory/internal/repoingest"
	"dev.vasic.ultramemory/internal/vectordb"
)

// app holds every wired dependency a command handler might need. Backends
// connect lazily and degrade per the coordinator's own convention: Vector and
// Graph are required (a command that needs them fails loudly), Redis and
// Postgres are optional and simply leave their app fields nil on failure.
type app struct {
	cfg *config.Config
	log *logrus.Logger

	vector vectordb.Index
	graph  graphdb.Graph
	cache  *cache.CacheService
	pg     *registry.PostgresDB

	coord        *coordinator.Coordinator
	consolidator *consolidation.Engine
	ingestor     *repoingest.Ingestor
	processor    *docproc.Processor
	categories   *registry.CategoryRepository
	schedules    *registry.ScheduleRepository
	audit        *registry.DeletionAuditRepository
}

func newApp() *app {
	log := logrus.New()
	cfg := config.Load()
	if level, err := logrus.ParseLevel(cfg.Monitoring.LogLevel); err == nil {
		log.SetLevel(level)
	}
	return &app{cfg: cfg, log: log}
}

// connectCore dials Qdrant and the graph store — required for every memory/
// code-index/agent command — and wires the optional Redis/Postgres-backed
// pieces on a best-effort basis, matching the coordinator's own
// degrade-don't-crash convention for its optional dependencies.
func (a *app) connectCore(ctx context.Context) error {
	vector, err := vectordb.NewQdrantIndex(a.cfg.Qdrant, a.log)
	if err != nil {
		return fmt.Errorf("connecting to vector store: %w", err)
	}
	if err := vector.EnsureCollection(ctx, a.cfg.Embedding.Dimension); err != nil {
		a.log.WithError(err).Warn("ensuring vector collection failed, continuing")
	}
	a.vector = vector

	graph, err := graphdb.NewNeo4jGraph(ctx, a.cfg.Graph, a.log)
	if err != nil {
		return fmt.Errorf("connecting to graph store: %w", err)
	}
	a.graph = graph

	cacheSvc, err := cache.NewCacheService(&a.cfg.Redis)
	if err != nil {
		a.log.WithError(err).Warn("cache unavailable, continuing without it")
	}
	a.cache = cacheSvc

	embedder := embedding.NewHTTPProvider(a.cfg.Embedding, a.log)

	if pg, err := registry.NewPostgresDB(&a.cfg.Postgres, a.log); err != nil {
		a.log.WithError(err).Warn("durable registry unavailable, categories/schedules/audit degrade to best-effort")
	} else if err := pg.HealthCheck(); err != nil {
		a.log.WithError(err).Warn("durable registry unreachable, categories/schedules/audit degrade to best-effort")
	} else {
		if err := registry.RunMigrations(pg); err != nil {
			a.log.WithError(err).Warn("durable registry migrations failed")
		}
		a.pg = pg
		a.categories = registry.NewCategoryRepository(pg.Pool(), a.log)
		a.schedules = registry.NewScheduleRepository(pg.Pool(), a.log)
		a.audit = registry.NewDeletionAuditRepository(pg.Pool(), a.log)
	}

	a.coord = coordinator.New(a.vector, a.graph, a.cache, embedder, a.audit, a.log)
	a.consolidator = consolidation.New(a.vector, a.graph, embedder, nil, a.cfg.Consolidation, a.log)
	if a.pg != nil {
		a.consolidator = consolidation.New(a.vector, a.graph, embedder, registry.NewConsolidationRunRepository(a.pg.Pool(), a.log), a.cfg.Consolidation, a.log)
	}
	a.ingestor = repoingest.New(a.coord, a.vector, repoingest.NewCloner(a.cfg.RepoIngest, a.log), a.categories, a.cfg.RepoIngest, a.log)
	a.processor = docproc.NewProcessor(0, 0)

	return nil
}

func (a *app) close() {
	if a.vector != nil {
		_ = a.vector.Close()
	}
	if a.graph != nil {
		_ = a.graph.Close(context.Background())
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
}

// coordAdder adapts *coordinator.Coordinator to docproc.Adder, whose
// metadata parameter is a loosely-typed map (kept that way so docproc never
// has to import the coordinator's model package) by folding every entry into
// model.Metadata.Extra and lifting "source" out as the canonical field.
type coordAdder struct {
	coord *coordinator.Coordinator
}

func (c coordAdder) Add(ctx context.Context, content string, metadata map[string]any) (string, error) {
	meta := metadataFromMap(metadata)
	result, err := c.coord.Add(ctx, content, meta)
	return result.ID, err
}
