package consolidation

import (
	"regexp"
	"strings"
	"unicode"

	"dev.vasic.ultramemory/internal/vectordb"
)

// mojibakePatterns are common tells of a UTF-8 string that was misdecoded as
// Latin-1 somewhere upstream — the same signatures original_source's
// consolidator looks for.
var mojibakePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Ã[^\x00-\x7F]`),
	regexp.MustCompile(`â€`),
	regexp.MustCompile(`Ã¯Â¿Â½`),
	regexp.MustCompile("�"),
}

func hasEncodingIssues(content string) bool {
	for _, p := range mojibakePatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

// assessQuality scores content 0-1: repetitive, unpunctuated, or
// special-character-heavy text is penalised by the same multipliers
// original_source's consolidator applies.
func assessQuality(content string) float64 {
	if content == "" {
		return 0
	}

	score := 1.0

	words := strings.Fields(content)
	if len(words) > 10 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[strings.ToLower(w)] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) < 0.3 {
			score *= 0.5
		}
	}

	if !strings.ContainsAny(content, ".!?;:") {
		score *= 0.7
	}

	special := 0
	total := 0
	for _, r := range content {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	if total > 0 && float64(special)/float64(total) > 0.3 {
		score *= 0.6
	}

	return score
}

// healthPenaltyWeights mirror original_source's consolidator, plus an
// orphaned-graph-node weight added on top.
const (
	weightDuplicate     = 2
	weightEmpty         = 5
	weightTooShort      = 1
	weightEncodingIssue = 3
	weightLowQuality    = 2
	weightOrphanedNode  = 4
)

// healthScore computes the 0-100 memory health score: max(0, 100 -
// 100*penalty/(5*total)).
func healthScore(a AnalysisSummary, orphanCount int64) float64 {
	if a.TotalDocuments == 0 {
		return 100
	}
	penalty := a.ExactDuplicates*weightDuplicate +
		a.EmptyContent*weightEmpty +
		a.TooShort*weightTooShort +
		a.EncodingIssues*weightEncodingIssue +
		a.LowQuality*weightLowQuality +
		int(orphanCount)*weightOrphanedNode

	maxPenalty := a.TotalDocuments * 5
	health := 100 - (float64(penalty)/float64(maxPenalty))*100
	if health < 0 {
		health = 0
	}
	return roundTo1(health)
}

func roundTo1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// analyze is phase 1: a single linear pass over every scrolled document,
// classifying each into the issue buckets the health score and the insight
// document's recommendations are derived from.
func (e *Engine) analyze(points []vectordb.Result) AnalysisSummary {
	summary := AnalysisSummary{
		TotalDocuments: len(points),
		BySource:       map[string]int{},
	}

	seenHash := make(map[string]struct{}, len(points))
	minLen := e.cfg.MinContentLength
	if minLen <= 0 {
		minLen = 10
	}

	for _, p := range points {
		content := p.Content
		trimmed := strings.TrimSpace(content)

		source := p.Metadata.Source
		if source == "" {
			source = "unknown"
		}
		summary.BySource[source]++

		if trimmed == "" {
			summary.EmptyContent++
			continue
		}

		if len(content) < minLen {
			summary.TooShort++
		}
		if len(content) > maxContentLength {
			summary.TooLong++
		}

		hash := strings.ToLower(trimmed)
		if _, ok := seenHash[hash]; ok {
			summary.ExactDuplicates++
		} else {
			seenHash[hash] = struct{}{}
		}

		if p.Metadata.Source == "" {
			summary.MissingMetadata++
		}

		if hasEncodingIssues(content) {
			summary.EncodingIssues++
		}

		if assessQuality(content) < lowQualityThreshold {
			summary.LowQuality++
		}
	}

	return summary
}
