package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackIsDeterministic(t *testing.T) {
	a := Fallback("paris is the capital of france", 128)
	b := Fallback("paris is the capital of france", 128)
	assert.Equal(t, a, b)
}

func TestFallbackDimension(t *testing.T) {
	vec := Fallback("hello", 1536)
	assert.Len(t, vec, 1536)
}

func TestFallbackIsL2Normalized(t *testing.T) {
	vec := Fallback("hello world", 64)
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSq, 0.01)
}

func TestFallbackDiffersForDifferentText(t *testing.T) {
	a := Fallback("hello", 32)
	b := Fallback("goodbye", 32)
	assert.NotEqual(t, a, b)
}

func TestNormalizeDimensionTruncatesAndPads(t *testing.T) {
	assert.Len(t, normalizeDimension(make([]float32, 10), 5), 5)
	assert.Len(t, normalizeDimension(make([]float32, 5), 10), 10)
}
