package consolidation

import (
	"context"

	"github.com/sirupsen/logrus"

	"dev.vasic.ultramemory/internal/graphdb"
	"dev.vasic.ultramemory/internal/vectordb"
)

// linkSimilarDocuments is phase 9: for up to similarityDocSample documents,
// semantic-search the top 5 neighbours scoring at or above
// similarityScoreFloor and link any not already linked with a
// Document-[:SIMILAR_TO {score}]->Document edge.
func (e *Engine) linkSimilarDocuments(ctx context.Context, points []vectordb.Result) (int, error) {
	sample := points
	if len(sample) > similarityDocSample {
		sample = sample[:similarityDocSample]
	}

	linked := make(map[string]bool)
	created := 0

	for _, p := range sample {
		vec := e.embedder.Embed(ctx, p.Content)
		hits, err := e.vector.Search(ctx, vec, 5, similarityScoreFloor)
		if err != nil {
			continue
		}
		for _, hit := range hits {
			if hit.ID == p.ID {
				continue
			}
			edgeKey := edgeCacheKey(p.ID, hit.ID)
			if linked[edgeKey] {
				continue
			}

			existing, err := e.graph.GetNodeRelationships(ctx, p.ID)
			if err == nil && hasSimilarToEdge(existing, hit.ID) {
				linked[edgeKey] = true
				continue
			}

			if _, err := e.graph.AddRelationship(ctx, p.ID, hit.ID, "SIMILAR_TO", map[string]any{
				"score": hit.Score,
			}); err != nil {
				e.log.WithError(err).WithFields(logrus.Fields{"from": p.ID, "to": hit.ID}).Debug("SIMILAR_TO edge creation failed")
				continue
			}
			linked[edgeKey] = true
			created++
		}
	}

	return created, nil
}

func edgeCacheKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

func hasSimilarToEdge(rels []graphdb.Row, targetID string) bool {
	for _, r := range rels {
		if relType, _ := r["type"].(string); relType != "SIMILAR_TO" {
			continue
		}
		if target, _ := r["target"].(string); target == targetID {
			return true
		}
	}
	return false
}
