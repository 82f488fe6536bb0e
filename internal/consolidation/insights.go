package consolidation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"dev.vasic.ultramemory/internal/model"
	"dev.vasic.ultramemory/internal/vectordb"
)

// maxInsightTermsSources is the number of documents' content scanned for
// the top-terms tally — bounded the same way original_source's insight
// generator samples rather than scanning the full corpus.
const maxInsightTermsSources = 200

// stopwords is the short list of common English/Spanish function words
// excluded from the top-terms frequency count — original_source's insight
// generator only filters by length; this expansion adds the stopword list
// so 5+-letter function words such as "their"/"which"/"donde" don't crowd
// out genuine key terms (shorter entries are already dropped by the length
// filter in topTerms).
var stopwords = map[string]bool{
	"the": true, "that": true, "this": true, "with": true, "from": true, "have": true,
	"their": true, "there": true, "which": true, "about": true, "would": true,
	"para": true, "como": true, "pero": true, "este": true, "esta": true, "donde": true,
}

// generateInsights is phase 12: aggregate source/content-type distribution,
// graph health, and the top-20 significant terms across the scrolled
// corpus, render it as a Spanish-heading markdown document, and write it
// back into the vector and graph stores with type=insight.
func (e *Engine) generateInsights(ctx context.Context, report Report, points []vectordb.Result) (string, error) {
	lines := []string{
		"# Insights Generados",
		"",
		fmt.Sprintf("Fecha: %s", time.Now().UTC().Format(time.RFC3339)),
		"",
		"## Resumen General",
		"",
		fmt.Sprintf("- Documentos totales: %d", report.Analysis.TotalDocuments),
		fmt.Sprintf("- Puntuacion de salud: %.1f %s", report.Analysis.HealthScore, healthEmoji(report.Analysis.HealthScore)),
		fmt.Sprintf("- Duplicados eliminados: %d", report.ExactDuplicatesPurged+report.SemanticDuplicatesPurged+report.FuzzyDuplicatesPurged),
		fmt.Sprintf("- Nodos huerfanos eliminados: %d", report.OrphansDeleted),
		"",
		"## Distribucion por Fuente",
		"",
	}

	lines = append(lines, formatCounts(report.Analysis.BySource, 10)...)

	byContentType := make(map[string]int)
	for _, p := range points {
		ct := string(p.Metadata.ContentType)
		if ct == "" {
			ct = "unknown"
		}
		byContentType[ct]++
	}
	lines = append(lines, "", "## Distribucion por Tipo de Contenido", "")
	lines = append(lines, formatCounts(byContentType, 10)...)
	lines = append(lines, "", "## Salud del Grafo", "",
		fmt.Sprintf("- Enlaces de entidades creados: %d", report.EntityLinksCreated),
		fmt.Sprintf("- Iteraciones de reconciliacion: %d", report.FixpointIterations),
		"")

	sample := points
	if len(sample) > maxInsightTermsSources {
		sample = sample[:maxInsightTermsSources]
	}
	contents := make([]string, len(sample))
	for i, p := range sample {
		contents[i] = p.Content
	}
	terms := topTerms(contents, 20)
	lines = append(lines, "## Terminos Mas Frecuentes", "")
	for _, t := range terms {
		lines = append(lines, fmt.Sprintf("- %s: %d menciones", t.term, t.count))
	}

	lines = append(lines, "", "## Recomendaciones", "")
	lines = append(lines, recommendations(report.Analysis)...)

	markdown := strings.Join(lines, "\n")

	vec := e.embedder.Embed(ctx, markdown)
	meta := model.Metadata{
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		Source:     "consolidation",
		SourceType: model.SourceText,
		Extra:      map[string]any{"type": "insight"},
	}

	id, err := e.vector.Add(ctx, vec, markdown, meta)
	if err != nil {
		return "", err
	}
	if _, err := e.graph.AddNode(ctx, id, markdown, graphMetadata(meta), []string{"Document", "Insight"}); err != nil {
		e.log.WithError(err).Debug("insight graph node creation failed")
	}

	return id, nil
}

func healthEmoji(score float64) string {
	switch {
	case score >= 90:
		return "🟢"
	case score >= 70:
		return "🟡"
	default:
		return "🔴"
	}
}

func formatCounts(counts map[string]int, limit int) []string {
	type kv struct {
		k string
		v int
	}
	pairs := make([]kv, 0, len(counts))
	for k, v := range counts {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v > pairs[j].v })
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, fmt.Sprintf("- %s: %d", p.k, p.v))
	}
	return out
}

type termCount struct {
	term  string
	count int
}

// topTerms tallies whitespace-split tokens of 5+ letters, skipping
// stopwords, and returns the top-N by frequency.
func topTerms(corpus []string, n int) []termCount {
	freq := make(map[string]int)
	for _, content := range corpus {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(content)) {
			w = strings.Trim(w, ".,!?;:()[]{}\"'")
			if len(w) < 5 || stopwords[w] || seen[w] {
				continue
			}
			seen[w] = true
			freq[w]++
		}
	}
	terms := make([]termCount, 0, len(freq))
	for t, c := range freq {
		terms = append(terms, termCount{t, c})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].count > terms[j].count })
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

// recommendations mirrors the analyze command's severity-emoji convention:
// an overall health verdict followed by one line per nonzero issue bucket.
func recommendations(a AnalysisSummary) []string {
	var recs []string
	switch {
	case a.HealthScore >= 90:
		recs = append(recs, "✅ La memoria esta en excelente estado")
	case a.HealthScore >= 70:
		recs = append(recs, "👍 La memoria esta en buen estado, se recomienda limpieza menor")
	default:
		recs = append(recs, "⚠️ La memoria necesita atencion")
	}

	if a.ExactDuplicates > 0 {
		recs = append(recs, fmt.Sprintf("🔄 Ejecutar consolidacion para eliminar %d duplicados", a.ExactDuplicates))
	}
	if a.EmptyContent > 0 {
		recs = append(recs, fmt.Sprintf("🗑️ Eliminar %d entradas vacias", a.EmptyContent))
	}
	if a.TooShort > 0 {
		recs = append(recs, fmt.Sprintf("📏 Revisar %d entradas muy cortas", a.TooShort))
	}
	if a.EncodingIssues > 0 {
		recs = append(recs, fmt.Sprintf("🔧 Corregir %d problemas de codificacion", a.EncodingIssues))
	}
	if a.LowQuality > 0 {
		recs = append(recs, fmt.Sprintf("📉 Considerar eliminar %d entradas de baja calidad", a.LowQuality))
	}
	if len(recs) == 1 {
		recs = append(recs, "✨ No se encontraron problemas!")
	}
	return recs
}
