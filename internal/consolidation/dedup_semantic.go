package consolidation

import (
	"context"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"dev.vasic.ultramemory/internal/vectordb"
)

// purgeExactDuplicates is phase 4: a second, destructive pass over the hash
// map built in phase 1's style — any document whose normalised content
// (trimmed, lowercased) was already seen is deleted outright, keeping the
// first-seen copy.
func (e *Engine) purgeExactDuplicates(ctx context.Context, points *[]vectordb.Result) (int, error) {
	seen := make(map[string]string, len(*points))
	removed := make(map[string]bool)
	purged := 0
	for _, p := range *points {
		key := strings.ToLower(strings.TrimSpace(p.Content))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			if err := e.deleteBoth(ctx, p.ID); err != nil {
				return purged, err
			}
			removed[p.ID] = true
			purged++
			continue
		}
		seen[key] = p.ID
	}
	if purged > 0 {
		*points = filterOut(*points, removed)
	}
	return purged, nil
}

// purgeSemanticDuplicates is phase 5: re-embed up to cfg.SemanticSampleSize
// documents and search the vector index for near-neighbours scoring at or
// above cfg.SemanticSimThreshold; any hit other than the document itself is
// a semantic duplicate and is purged, keeping whichever of the pair was
// scrolled first.
func (e *Engine) purgeSemanticDuplicates(ctx context.Context, points *[]vectordb.Result) (int, error) {
	sampleSize := e.cfg.SemanticSampleSize
	if sampleSize <= 0 {
		sampleSize = 200
	}
	threshold := float32(e.cfg.SemanticSimThreshold)
	if threshold <= 0 {
		threshold = 0.85
	}

	purged := 0
	removed := make(map[string]bool)
	sample := *points
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	for _, p := range sample {
		if removed[p.ID] {
			continue
		}
		vec := e.embedder.Embed(ctx, p.Content)
		hits, err := e.vector.Search(ctx, vec, 5, threshold)
		if err != nil {
			continue
		}
		for _, hit := range hits {
			if hit.ID == p.ID || removed[hit.ID] {
				continue
			}
			if err := e.deleteBoth(ctx, hit.ID); err != nil {
				return purged, err
			}
			removed[hit.ID] = true
			purged++
		}
	}

	if purged > 0 {
		*points = filterOut(*points, removed)
	}
	return purged, nil
}

// purgeFuzzyDuplicates is phase 6: pairwise-compare a sample of up to 200
// documents, purging the later document of any pair whose similarity ratio
// reaches cfg.FuzzyMatchThreshold. The ratio is diff-based, in place of a
// hand-rolled LCS — diffmatchpatch's diff
// already returns the matching runs, and summing the Equal-op lengths gives
// the same numerator difflib's SequenceMatcher.ratio() uses.
func (e *Engine) purgeFuzzyDuplicates(ctx context.Context, points *[]vectordb.Result) (int, error) {
	threshold := e.cfg.FuzzyMatchThreshold
	if threshold <= 0 {
		threshold = 0.75
	}

	sample := *points
	const fuzzySampleCap = 200
	if len(sample) > fuzzySampleCap {
		sample = sample[:fuzzySampleCap]
	}

	removed := make(map[string]bool)
	purged := 0
	dmp := diffmatchpatch.New()

	for i := 0; i < len(sample); i++ {
		if removed[sample[i].ID] {
			continue
		}
		a := normalizeForFuzzy(sample[i].Content)
		for j := i + 1; j < len(sample); j++ {
			if removed[sample[j].ID] {
				continue
			}
			b := normalizeForFuzzy(sample[j].Content)
			if fuzzyRatio(dmp, a, b) >= threshold {
				if err := e.deleteBoth(ctx, sample[j].ID); err != nil {
					return purged, err
				}
				removed[sample[j].ID] = true
				purged++
			}
		}
	}

	if purged > 0 {
		*points = filterOut(*points, removed)
	}
	return purged, nil
}

func normalizeForFuzzy(content string) string {
	return strings.ToLower(strings.Join(strings.Fields(content), " "))
}

// fuzzyRatio mirrors difflib.SequenceMatcher.ratio(): twice the number of
// matching characters over the combined length of both strings.
func fuzzyRatio(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	diffs := dmp.DiffMain(a, b, false)
	matches := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			matches += len(d.Text)
		}
	}
	return 2 * float64(matches) / float64(len(a)+len(b))
}

// purgeMalformed is phase 7: delete anything empty or below the configured
// minimum content length that survived the earlier dedup passes.
func (e *Engine) purgeMalformed(ctx context.Context, points *[]vectordb.Result) (int, error) {
	minLen := e.cfg.MinContentLength
	if minLen <= 0 {
		minLen = 10
	}

	removed := make(map[string]bool)
	purged := 0
	for _, p := range *points {
		trimmed := strings.TrimSpace(p.Content)
		if trimmed != "" && len(p.Content) >= minLen {
			continue
		}
		if err := e.deleteBoth(ctx, p.ID); err != nil {
			return purged, err
		}
		removed[p.ID] = true
		purged++
	}

	if purged > 0 {
		*points = filterOut(*points, removed)
	}
	return purged, nil
}

func filterOut(points []vectordb.Result, removed map[string]bool) []vectordb.Result {
	out := make([]vectordb.Result, 0, len(points))
	for _, p := range points {
		if !removed[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// deleteBoth removes a document from the vector index and, best-effort, its
// graph counterpart — duplicate/malformed purges don't go through the Store
// Coordinator's connected-node guard, since a document already flagged as a
// duplicate or malformed is, by construction, being removed rather than
// edited.
func (e *Engine) deleteBoth(ctx context.Context, id string) error {
	if err := e.vector.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.graph.DeleteNode(ctx, id); err != nil {
		e.log.WithError(err).WithField("id", id).Debug("graph node deletion during consolidation failed")
	}
	return nil
}
