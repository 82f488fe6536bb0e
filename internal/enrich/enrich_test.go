package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dev.vasic.ultramemory/internal/model"
)

func TestEnrichStampsTimestampsAndHash(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	meta := Enrich("hello world, this is a test document about memory systems", model.Metadata{}, at)

	assert.Equal(t, at, meta.CreatedAt)
	assert.Equal(t, at, meta.UpdatedAt)
	assert.Len(t, meta.ContentHash, 16)
	assert.Greater(t, meta.WordCount, 0)
	assert.Greater(t, meta.CharCount, 0)
}

func TestEnrichKeywordsTopFifteenByFrequency(t *testing.T) {
	content := "memory memory memory graph graph cache cache cache cache coordinator"
	meta := Enrich(content, model.Metadata{}, time.Now().UTC())
	assert.LessOrEqual(t, len(meta.Keywords), 15)
	assert.Equal(t, "cache", meta.Keywords[0])
}

func TestEnrichDropsStopwords(t *testing.T) {
	meta := Enrich("this that with from have been were they", model.Metadata{}, time.Now().UTC())
	assert.Empty(t, meta.Keywords)
}

func TestEnrichUserMetadataWinsOnConflict(t *testing.T) {
	user := model.Metadata{Keywords: []string{"preset"}, Language: "fr"}
	meta := Enrich("el gato es de la casa que", user, time.Now().UTC())
	assert.Equal(t, []string{"preset"}, meta.Keywords)
	assert.Equal(t, "fr", meta.Language)
}

func TestDetectLanguageSpanish(t *testing.T) {
	lang := detectLanguage("el gato es de la casa que tiene para el perro con la")
	assert.Equal(t, "es", lang)
}

func TestDetectLanguageEnglish(t *testing.T) {
	lang := detectLanguage("the cat and the dog are from the house with the boy that have this")
	assert.Equal(t, "en", lang)
}

func TestDetectLanguageAmbiguousReturnsEmpty(t *testing.T) {
	lang := detectLanguage("one two three")
	assert.Equal(t, "", lang)
}

func TestDeriveSourceType(t *testing.T) {
	assert.Equal(t, model.SourceGithub, deriveSourceType("https://github.com/org/repo"))
	assert.Equal(t, model.SourceURL, deriveSourceType("https://example.com/page"))
	assert.Equal(t, model.SourceCode, deriveSourceType("main.go"))
	assert.Equal(t, model.SourceDocument, deriveSourceType("report.pdf"))
	assert.Equal(t, model.SourceConfig, deriveSourceType("config.yaml"))
	assert.Equal(t, model.SourceFile, deriveSourceType("/etc/hosts"))
	assert.Equal(t, model.SourceText, deriveSourceType(""))
}

func TestExtractEntitiesCapsAtThree(t *testing.T) {
	content := "John Smith met Jane Doe and Bob Jones and Mary Lane and Carl Young in Berlin."
	entities := extractEntities(content)
	assert.LessOrEqual(t, len(entities.People), 3)
}

func TestEntityLabels(t *testing.T) {
	e := model.Entities{People: []string{"Ada Lovelace"}, Organizations: []string{"Acme"}, Locations: []string{"Berlin"}}
	labels := e.EntityLabels()
	assert.Contains(t, labels, "Person:Ada Lovelace")
	assert.Contains(t, labels, "Org:Acme")
	assert.Contains(t, labels, "Location:Berlin")
}
