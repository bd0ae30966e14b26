package providers

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderDeterminism(t *testing.T) {
	p := NewLocalProvider(64)

	first, err := p.Embed(context.Background(), "senior go engineer, kafka, postgres")
	require.NoError(t, err)
	second, err := p.Embed(context.Background(), "senior go engineer, kafka, postgres")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	different, err := p.Embed(context.Background(), "junior frontend developer")
	require.NoError(t, err)
	assert.NotEqual(t, first, different)
}

func TestLocalProviderUnitNorm(t *testing.T) {
	p := NewLocalProvider(128)

	vec, err := p.Embed(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, vec, 128)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestNormalize(t *testing.T) {
	t.Run("scales to unit length", func(t *testing.T) {
		vec := Normalize([]float32{3, 4})
		assert.InDelta(t, 0.6, float64(vec[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(vec[1]), 1e-6)
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		vec := Normalize([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, vec)
	})
}
