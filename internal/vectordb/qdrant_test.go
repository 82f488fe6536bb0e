package vectordb

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.vasic.ultramemory/internal/model"
)

func TestEncodeDecodePayloadRoundTrip(t *testing.T) {
	meta := model.Metadata{
		Source:     "repo.md",
		SourceType: model.SourceGithub,
		Keywords:   []string{"memory", "graph"},
		WordCount:  42,
	}

	payload, err := encodePayload("hello world", meta)
	require.NoError(t, err)

	result := resultFromPayload("point-1", 0.91, payload)
	assert.Equal(t, "point-1", result.ID)
	assert.Equal(t, float32(0.91), result.Score)
	assert.Equal(t, "hello world", result.Content)
	assert.Equal(t, meta.Source, result.Metadata.Source)
	assert.Equal(t, meta.Keywords, result.Metadata.Keywords)
	assert.Equal(t, 42, result.Metadata.WordCount)
}

func TestDistanceFromString(t *testing.T) {
	assert.Equal(t, qdrant.Distance_Cosine, distanceFromString(""))
	assert.Equal(t, qdrant.Distance_Cosine, distanceFromString("cosine"))
	assert.Equal(t, qdrant.Distance_Euclid, distanceFromString("euclid"))
	assert.Equal(t, qdrant.Distance_Dot, distanceFromString("dot"))
}

func TestExtractPointID(t *testing.T) {
	assert.Equal(t, "", extractPointID(nil))
	assert.Equal(t, "abc-123", extractPointID(qdrant.NewIDUUID("abc-123")))
	assert.Equal(t, "7", extractPointID(qdrant.NewIDNum(7)))
}
