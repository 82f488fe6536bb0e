// Package enrich implements the Metadata Enricher: a pure function from
// (content, user metadata, timestamp) to the full model.Metadata record
// every store keys on.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"time"

	"dev.vasic.ultramemory/internal/model"
)

var keywordPattern = regexp.MustCompile(`\b[a-zA-Z]{4,}\b`)

// stopwords mirrors the keyword-extraction filter from
// original_source/core/falkordb_client.py's _extract_keywords, extended to
// a ~50-word list.
var stopwords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "been": {}, "were": {},
	"they": {}, "their": {}, "which": {}, "would": {}, "could": {}, "should": {},
	"there": {}, "where": {}, "when": {}, "what": {}, "more": {}, "also": {},
	"into": {}, "only": {}, "over": {}, "such": {}, "than": {}, "them": {},
	"then": {}, "these": {}, "some": {}, "will": {}, "about": {}, "after": {},
	"before": {}, "between": {}, "both": {}, "each": {}, "most": {}, "other": {},
	"same": {}, "very": {}, "just": {}, "like": {}, "make": {}, "made": {},
	"does": {}, "done": {}, "being": {}, "because": {}, "while": {}, "still": {},
	"under": {}, "again": {},
}

var personPattern = regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)
var companyPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]*(?:\s(?:Inc|LLC|Ltd|Corp|Corporation|Company|Labs|Technologies)\.?)\b`)
var locationPattern = regexp.MustCompile(`\b(?:in|at|from)\s+([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)\b`)

var spanishMarkers = []string{" que ", " de ", " el ", " la ", " los ", " las ", " es ", " para ", " con ", " por "}
var englishMarkers = []string{" the ", " and ", " is ", " are ", " for ", " with ", " this ", " that ", " have ", " from "}

var urlPattern = regexp.MustCompile(`^https?://`)
var codeExtPattern = regexp.MustCompile(`\.(go|py|js|ts|java|c|cpp|h|rb|rs|cs|php)$`)
var docExtPattern = regexp.MustCompile(`\.(pdf|docx?|xlsx?|pptx?)$`)
var configExtPattern = regexp.MustCompile(`\.(yaml|yml|json|toml|ini|conf|cfg)$`)

// Enrich computes the full Metadata for content, deferring to any
// already-populated fields on user (caller-supplied metadata wins on
// conflict, per §4.8's last rule).
func Enrich(content string, user model.Metadata, at time.Time) model.Metadata {
	meta := user
	meta.CreatedAt = at
	meta.UpdatedAt = at

	if len(meta.Keywords) == 0 {
		meta.Keywords = extractKeywords(content)
	}

	if meta.Entities.People == nil && meta.Entities.Organizations == nil && meta.Entities.Locations == nil {
		meta.Entities = extractEntities(content)
	}

	if meta.Language == "" {
		meta.Language = detectLanguage(content)
	}

	if meta.SourceType == "" {
		meta.SourceType = deriveSourceType(meta.Source)
	}

	sum := sha256.Sum256([]byte(content))
	meta.ContentHash = hex.EncodeToString(sum[:])[:16]
	meta.WordCount = len(strings.Fields(content))
	meta.CharCount = len([]rune(content))

	return meta
}

// extractKeywords lowercases, extracts 4+ letter words, drops stopwords,
// frequency-sorts, and keeps the top 15 — per §4.8.
func extractKeywords(content string) []string {
	counts := make(map[string]int)
	for _, w := range keywordPattern.FindAllString(strings.ToLower(content), -1) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j] // stable tiebreak for deterministic output
	})

	if len(words) > 15 {
		words = words[:15]
	}
	return words
}

// extractEntities runs the Person/Company/Location regex families, capping
// three matches per class.
func extractEntities(content string) model.Entities {
	return model.Entities{
		People:        capThree(dedupe(personPattern.FindAllString(content, -1))),
		Organizations: capThree(dedupe(companyPattern.FindAllString(content, -1))),
		Locations:     capThree(dedupe(locationSubmatches(content))),
	}
}

func locationSubmatches(content string) []string {
	matches := locationPattern.FindAllStringSubmatch(content, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			out = append(out, m[1])
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func capThree(in []string) []string {
	if len(in) > 3 {
		return in[:3]
	}
	return in
}

// detectLanguage counts Spanish vs English marker words and picks a winner
// only if the margin is at least 3, per §4.8; otherwise returns "".
func detectLanguage(content string) string {
	padded := " " + strings.ToLower(content) + " "
	es := countMarkers(padded, spanishMarkers)
	en := countMarkers(padded, englishMarkers)

	switch {
	case es-en >= 3:
		return "es"
	case en-es >= 3:
		return "en"
	default:
		return ""
	}
}

func countMarkers(text string, markers []string) int {
	count := 0
	for _, m := range markers {
		count += strings.Count(text, m)
	}
	return count
}

// deriveSourceType classifies a source string into a SourceType: URL,
// filesystem path, or bare text, further refined by extension/host.
func deriveSourceType(source string) model.SourceType {
	if source == "" {
		return model.SourceText
	}
	if urlPattern.MatchString(source) {
		lower := strings.ToLower(source)
		switch {
		case strings.Contains(lower, "github.com"):
			return model.SourceGithub
		case strings.Contains(lower, "wiki"):
			return model.SourceWiki
		default:
			return model.SourceURL
		}
	}
	switch {
	case codeExtPattern.MatchString(source):
		return model.SourceCode
	case docExtPattern.MatchString(source):
		return model.SourceDocument
	case configExtPattern.MatchString(source):
		return model.SourceConfig
	case strings.Contains(source, "/") || strings.Contains(source, `\`):
		return model.SourceFile
	default:
		return model.SourceTextFile
	}
}
