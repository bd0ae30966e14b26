package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "[0.25,-1,3.5]", formatVector([]float32{0.25, -1, 3.5}))
	assert.Equal(t, "[]", formatVector(nil))
}

func TestVectorRoundTrip(t *testing.T) {
	original := []float32{0.1, -0.00042, 12345.678, 0, 1}

	parsed, err := parseVector(formatVector(original))
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseVector(t *testing.T) {
	t.Run("with spaces", func(t *testing.T) {
		parsed, err := parseVector("[0.5, 0.25, -0.75]")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.5, 0.25, -0.75}, parsed)
	})

	t.Run("empty literal", func(t *testing.T) {
		_, err := parseVector("[]")
		assert.Error(t, err)
	})

	t.Run("garbage element", func(t *testing.T) {
		_, err := parseVector("[0.5,abc]")
		assert.Error(t, err)
	})
}
