package graphdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeContentEscapesAndTruncates(t *testing.T) {
	in := "line1\nline2\x01binary\x00café" + repeatChar(600)
	out := sanitizeContent(in)
	assert.LessOrEqual(t, len(out), 1200) // escaping can roughly double length
	assert.NotContains(t, out, "\x00")
	assert.NotContains(t, out, "\x01")
}

func TestSanitizeContentEscapesQuotesAndBackslash(t *testing.T) {
	out := sanitizeContent(`he said "hi" and it's a \test`)
	assert.Equal(t, `he said \"hi\" and it\'s a \\test`, out)
}

func TestIsValidLabel(t *testing.T) {
	assert.True(t, isValidLabel("Document"))
	assert.True(t, isValidLabel("SIMILAR_TO"))
	assert.False(t, isValidLabel(""))
	assert.False(t, isValidLabel("Bad Label"))
	assert.False(t, isValidLabel("Robert'); DROP"))
}

func TestJaccardSimilarity(t *testing.T) {
	a := keywordSet("memory graph consolidation engine")
	b := keywordSet("memory graph coordinator engine")
	weight := jaccard(a, b)
	assert.Greater(t, weight, 0.4)
	assert.Less(t, weight, 1.0)
}

func TestJaccardEmptySets(t *testing.T) {
	assert.Equal(t, 0.0, jaccard(map[string]struct{}{}, map[string]struct{}{"x": {}}))
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, pairKey("a", "b"), pairKey("b", "a"))
}

func repeatChar(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = 'x'
	}
	return string(out)
}
