package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeKeywordsGo(t *testing.T) {
	src := []byte(`package main

func ComputeHealthScore(n int) int {
	return n * 2
}

type Document struct {
	ID string
}
`)
	names := CodeKeywords("go", src)
	assert.Contains(t, names, "ComputeHealthScore")
	assert.Contains(t, names, "Document")
}

func TestCodeKeywordsUnsupportedLanguageReturnsNil(t *testing.T) {
	assert.Nil(t, CodeKeywords("cobol", []byte("IDENTIFICATION DIVISION.")))
}
