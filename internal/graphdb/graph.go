// Package graphdb implements the Graph Index: a Cypher-speaking property
// graph client over the Neo4j Go driver, every caller-controlled value
// passed as a bound parameter rather than string-interpolated into query
// text.
package graphdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"dev.vasic.ultramemory/internal/config"
)

// Row is one record returned by Execute, keyed by the Cypher RETURN aliases.
type Row map[string]any

// Stats summarises the graph per §4.3's get_stats.
type Stats struct {
	TotalNodes         int64
	TotalRelations     int64
	Labels             []string
	RelationshipTypes  []string
	Connected          bool
}

// Graph is the Graph Index contract consumed by the Store Coordinator and
// the Consolidation Engine.
type Graph interface {
	Execute(ctx context.Context, query string, params map[string]any) ([]Row, error)
	AddNode(ctx context.Context, id, content string, metadata map[string]any, labels []string) (bool, error)
	AddRelationship(ctx context.Context, from, to, relType string, props map[string]any) (bool, error)
	GetNode(ctx context.Context, id string) (Row, error)
	GetNodeRelationships(ctx context.Context, id string) ([]Row, error)
	SearchNodes(ctx context.Context, substring string, limit int) ([]Row, error)
	GetAllNodes(ctx context.Context, limit int) ([]Row, error)
	GetStats(ctx context.Context) (Stats, error)
	GetOrphanedNodes(ctx context.Context) (int64, error)
	DeleteOrphanedNodes(ctx context.Context, limit int) (int64, error)
	OrphanedNodeIDs(ctx context.Context, limit int) ([]string, error)
	AllNodeIDs(ctx context.Context) ([]string, error)
	CreateEntityLinks(ctx context.Context, threshold float64) (int, error)
	HasIncidentEdges(ctx context.Context, id string) (bool, error)
	DeleteNode(ctx context.Context, id string) error
	DeleteAllNodes(ctx context.Context) (int64, error)
	HealthCheck(ctx context.Context) bool
	Close(ctx context.Context) error
}

// Neo4jGraph is the Neo4j/FalkorDB-compatible Graph Index implementation.
type Neo4jGraph struct {
	driver neo4j.DriverWithContext
	dbName string
	log    *logrus.Entry
}

// NewNeo4jGraph dials the configured graph database and verifies connectivity.
func NewNeo4jGraph(ctx context.Context, cfg config.GraphStoreConfig, log *logrus.Logger) (*Neo4jGraph, error) {
	if log == nil {
		log = logrus.New()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating graph driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying graph connectivity: %w", err)
	}

	return &Neo4jGraph{
		driver: driver,
		dbName: cfg.DatabaseName,
		log:    log.WithField("component", "graphdb"),
	}, nil
}

func (g *Neo4jGraph) session(ctx context.Context) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.dbName})
}

// Execute runs an arbitrary Cypher statement with bound parameters and
// returns each record as a Row keyed by its RETURN aliases.
func (g *Neo4jGraph) Execute(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	session := g.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, len(records))
		for i, rec := range records {
			rows[i] = Row(rec.AsMap())
		}
		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return result.([]Row), nil
}

// AddNode upserts a node keyed on id, per §4.3's MERGE-not-CREATE semantics.
// labels defaults to ["Document"] if empty; the first label drives the MERGE
// pattern, extras are attached via SET n:Label afterward since Cypher doesn't
// parameterise label names.
func (g *Neo4jGraph) AddNode(ctx context.Context, id, content string, metadata map[string]any, labels []string) (bool, error) {
	if len(labels) == 0 {
		labels = []string{"Document"}
	}
	for _, l := range labels {
		if !isValidLabel(l) {
			return false, fmt.Errorf("invalid label %q", l)
		}
	}

	props := map[string]any{"id": id, "content": sanitizeContent(content)}
	for k, v := range metadata {
		if k == "labels" {
			continue
		}
		props[k] = v
	}

	primary := labels[0]
	query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", primary)
	if _, err := g.Execute(ctx, query, map[string]any{"id": id, "props": props}); err != nil {
		return false, fmt.Errorf("merging node %s: %w", id, err)
	}

	for _, extra := range labels[1:] {
		setQuery := fmt.Sprintf("MATCH (n {id: $id}) SET n:%s", extra)
		if _, err := g.Execute(ctx, setQuery, map[string]any{"id": id}); err != nil {
			return false, fmt.Errorf("adding label %s to node %s: %w", extra, id, err)
		}
	}

	return true, nil
}

// AddRelationship is idempotent on (from, to, relType): MERGE rather than
// CREATE so re-running consolidation never duplicates an edge.
func (g *Neo4jGraph) AddRelationship(ctx context.Context, from, to, relType string, props map[string]any) (bool, error) {
	if !isValidLabel(relType) {
		return false, fmt.Errorf("invalid relationship type %q", relType)
	}

	query := fmt.Sprintf(`
		MATCH (a {id: $from}), (b {id: $to})
		MERGE (a)-[r:%s]->(b)
		SET r += $props
	`, relType)
	if _, err := g.Execute(ctx, query, map[string]any{"from": from, "to": to, "props": props}); err != nil {
		return false, fmt.Errorf("merging relationship %s->%s: %w", from, to, err)
	}
	return true, nil
}

// GetNode returns a node by id, or a nil Row if not found.
func (g *Neo4jGraph) GetNode(ctx context.Context, id string) (Row, error) {
	rows, err := g.Execute(ctx, "MATCH (n {id: $id}) RETURN n", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// GetNodeRelationships returns every outgoing relationship from a node.
func (g *Neo4jGraph) GetNodeRelationships(ctx context.Context, id string) ([]Row, error) {
	return g.Execute(ctx, `
		MATCH (n {id: $id})-[r]->(m)
		RETURN type(r) AS type, m.id AS target, m.content AS content
	`, map[string]any{"id": id})
}

// SearchNodes does a substring match over content/source, parameterised.
func (g *Neo4jGraph) SearchNodes(ctx context.Context, substring string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 10
	}
	return g.Execute(ctx, `
		MATCH (n)
		WHERE n.content CONTAINS $q OR n.source CONTAINS $q
		RETURN n.id AS id, n.content AS content, n.source AS source, n.type AS type
		LIMIT $limit
	`, map[string]any{"q": substring, "limit": limit})
}

// GetAllNodes returns up to limit nodes with their labels.
func (g *Neo4jGraph) GetAllNodes(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 1000
	}
	return g.Execute(ctx, `
		MATCH (n)
		RETURN n.id AS id, n.content AS content, n.source AS source, n.type AS type, labels(n) AS labels
		LIMIT $limit
	`, map[string]any{"limit": limit})
}

// GetStats reports node/relationship counts plus the schema's label and
// relationship-type vocabularies.
func (g *Neo4jGraph) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{}

	nodeRows, err := g.Execute(ctx, "MATCH (n) RETURN count(n) AS count", nil)
	if err != nil {
		return stats, fmt.Errorf("counting nodes: %w", err)
	}
	stats.TotalNodes = asInt64(nodeRows, "count")

	relRows, err := g.Execute(ctx, "MATCH ()-[r]->() RETURN count(r) AS count", nil)
	if err != nil {
		return stats, fmt.Errorf("counting relationships: %w", err)
	}
	stats.TotalRelations = asInt64(relRows, "count")

	labelRows, err := g.Execute(ctx, "CALL db.labels() YIELD label RETURN label", nil)
	if err != nil {
		return stats, fmt.Errorf("listing labels: %w", err)
	}
	for _, r := range labelRows {
		if s, ok := r["label"].(string); ok {
			stats.Labels = append(stats.Labels, s)
		}
	}

	relTypeRows, err := g.Execute(ctx, "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType", nil)
	if err != nil {
		return stats, fmt.Errorf("listing relationship types: %w", err)
	}
	for _, r := range relTypeRows {
		if s, ok := r["relationshipType"].(string); ok {
			stats.RelationshipTypes = append(stats.RelationshipTypes, s)
		}
	}

	stats.Connected = true
	return stats, nil
}

// GetOrphanedNodes counts nodes with neither an incoming nor an outgoing
// relationship — both directions.
func (g *Neo4jGraph) GetOrphanedNodes(ctx context.Context) (int64, error) {
	rows, err := g.Execute(ctx, `
		MATCH (n)
		WHERE NOT (n)-[]->() AND NOT ()-[]->(n)
		RETURN count(n) AS count
	`, nil)
	if err != nil {
		return 0, fmt.Errorf("counting orphaned nodes: %w", err)
	}
	return asInt64(rows, "count"), nil
}

// DeleteOrphanedNodes removes up to limit orphaned nodes, returning how many
// were deleted.
func (g *Neo4jGraph) DeleteOrphanedNodes(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := g.Execute(ctx, `
		MATCH (n)
		WHERE NOT (n)-[]->() AND NOT ()-[]->(n)
		WITH n LIMIT $limit
		DETACH DELETE n
		RETURN count(n) AS count
	`, map[string]any{"limit": limit})
	if err != nil {
		return 0, fmt.Errorf("deleting orphaned nodes: %w", err)
	}
	return asInt64(rows, "count"), nil
}

// OrphanedNodeIDs returns up to limit node IDs with neither an incoming nor
// an outgoing relationship — the candidate set the Consolidation Engine
// cross-references against the vector store's ID set in its cross-reference
// validation phase.
func (g *Neo4jGraph) OrphanedNodeIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := g.Execute(ctx, `
		MATCH (n)
		WHERE NOT (n)-[]->() AND NOT ()-[]->(n)
		RETURN n.id AS id
		LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("listing orphaned node ids: %w", err)
	}
	return idColumn(rows), nil
}

// AllNodeIDs returns every Document node's id — used by the Consolidation
// Engine's fixpoint reconciliation to diff the graph's vector-mirrored ID set
// against the vector store's. Scoped to :Document on purpose: Entity nodes
// (id shape "entity:<type>:<name>") are never present in the vector store by
// design, and an unfiltered MATCH would classify every one of them as
// "extra" and hard-delete them each run, cascading away the MENTIONS edges
// phase 8 just created.
func (g *Neo4jGraph) AllNodeIDs(ctx context.Context) ([]string, error) {
	rows, err := g.Execute(ctx, "MATCH (n:Document) RETURN n.id AS id", nil)
	if err != nil {
		return nil, fmt.Errorf("listing all document node ids: %w", err)
	}
	return idColumn(rows), nil
}

func idColumn(rows []Row) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if id, ok := r["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// CreateEntityLinks builds SIMILAR_TO edges between nodes that share
// keywords above threshold. Weight is the real Jaccard similarity of each
// pair's keyword sets, not a hardcoded placeholder.
func (g *Neo4jGraph) CreateEntityLinks(ctx context.Context, threshold float64) (int, error) {
	nodes, err := g.GetAllNodes(ctx, 500)
	if err != nil {
		return 0, fmt.Errorf("loading nodes for entity linking: %w", err)
	}
	if len(nodes) < 2 {
		return 0, nil
	}

	keywordSets := make(map[string]map[string]struct{}, len(nodes))
	for _, n := range nodes {
		id, _ := n["id"].(string)
		content, _ := n["content"].(string)
		if id == "" {
			continue
		}
		keywordSets[id] = keywordSet(content)
	}

	seen := make(map[string]struct{})
	created := 0
	ids := make([]string, 0, len(keywordSets))
	for id := range keywordSets {
		ids = append(ids, id)
	}
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			pair := pairKey(a, b)
			if _, ok := seen[pair]; ok {
				continue
			}
			seen[pair] = struct{}{}

			weight := jaccard(keywordSets[a], keywordSets[b])
			if weight < threshold {
				continue
			}
			ok, err := g.AddRelationship(ctx, a, b, "SIMILAR_TO", map[string]any{"weight": weight})
			if err != nil {
				g.log.WithError(err).WithField("pair", pair).Warn("failed to create entity link")
				continue
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

// HasIncidentEdges reports whether id has at least one relationship in
// either direction — the per-node check behind the Store Coordinator's
// preserve_connections delete guard, using the same both-directions pattern
// as GetOrphanedNodes.
func (g *Neo4jGraph) HasIncidentEdges(ctx context.Context, id string) (bool, error) {
	rows, err := g.Execute(ctx, `
		MATCH (n {id: $id})
		RETURN (exists((n)-[]->()) OR exists(()-[]->(n))) AS connected
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("checking incident edges for %s: %w", id, err)
	}
	if len(rows) == 0 {
		return false, nil
	}
	connected, _ := rows[0]["connected"].(bool)
	return connected, nil
}

// DeleteNode removes a node and every relationship touching it.
func (g *Neo4jGraph) DeleteNode(ctx context.Context, id string) error {
	_, err := g.Execute(ctx, "MATCH (n {id: $id}) DETACH DELETE n", map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("deleting node %s: %w", id, err)
	}
	return nil
}

// DeleteAllNodes truncates the entire graph, returning how many nodes were
// removed.
func (g *Neo4jGraph) DeleteAllNodes(ctx context.Context) (int64, error) {
	countRows, err := g.Execute(ctx, "MATCH (n) RETURN count(n) AS count", nil)
	if err != nil {
		return 0, fmt.Errorf("counting nodes before delete-all: %w", err)
	}
	count := asInt64(countRows, "count")

	if _, err := g.Execute(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
		return 0, fmt.Errorf("deleting all nodes: %w", err)
	}
	return count, nil
}

// HealthCheck reports whether the graph connection is reachable.
func (g *Neo4jGraph) HealthCheck(ctx context.Context) bool {
	return g.driver.VerifyConnectivity(ctx) == nil
}

// Close releases the driver's connection pool.
func (g *Neo4jGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func asInt64(rows []Row, key string) int64 {
	if len(rows) == 0 {
		return 0
	}
	switch v := rows[0][key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

var validLabelChars = func(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}

// isValidLabel guards the label/relationship-type positions that Cypher
// cannot parameterise — these are validated against a closed character set
// instead of being interpolated verbatim from caller input.
func isValidLabel(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !validLabelChars(r) {
			return false
		}
	}
	return true
}

// sanitizeContent escapes the denormalised content copy stored on a node:
// control characters become spaces, non-ASCII becomes '?', and the quoting
// characters Cypher string literals are sensitive to are backslash-escaped.
// This runs in addition to (never instead of) parameter binding.
func sanitizeContent(content string) string {
	if len(content) > 500 {
		content = content[:500]
	}
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(r)
		case r < 32:
			b.WriteRune(' ')
		case r > 127:
			b.WriteRune('?')
		default:
			b.WriteRune(r)
		}
	}
	escaped := b.String()
	escaped = strings.ReplaceAll(escaped, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", "")
	return escaped
}

var stopwords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "been": {}, "were": {},
	"they": {}, "their": {}, "which": {}, "would": {}, "could": {}, "should": {},
	"there": {}, "where": {}, "when": {}, "what": {}, "more": {}, "also": {},
}

// keywordSet extracts lowercase alphabetic words of length >= 4, minus
// stopwords, as a set — used only for the CreateEntityLinks Jaccard weight.
func keywordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	var word strings.Builder
	flush := func() {
		if word.Len() >= 4 {
			w := strings.ToLower(word.String())
			if _, stop := stopwords[w]; !stop {
				set[w] = struct{}{}
			}
		}
		word.Reset()
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

var _ Graph = (*Neo4jGraph)(nil)
