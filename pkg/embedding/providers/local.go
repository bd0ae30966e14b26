package providers

import (
	"context"
	"math"
	"math/rand"
)

// LocalProvider produces deterministic pseudo-embeddings seeded by the input
// text. It exists for development and tests only; config validation refuses
// it in production environments.
type LocalProvider struct {
	dimensions int
}

// NewLocalProvider creates the dev-only provider.
func NewLocalProvider(dimensions int) *LocalProvider {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &LocalProvider{dimensions: dimensions}
}

func (p *LocalProvider) Name() string         { return NameLocal }
func (p *LocalProvider) ModelVersion() string { return "local-deterministic-v1" }
func (p *LocalProvider) Dimensions() int      { return p.dimensions }

// Embed hashes the text into a seed and synthesizes a unit vector from it.
// Identical text always yields the identical vector, so cache and
// short-circuit behavior can be exercised without a real backend.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var seed int64
	for _, ch := range text {
		seed = seed*31 + int64(ch)
	}
	r := rand.New(rand.NewSource(seed))

	vector := make([]float32, p.dimensions)
	for i := range vector {
		base := r.Float64()*2 - 1
		wave := math.Sin(float64(i) * 0.1)
		vector[i] = float32(base*0.8 + wave*0.2)
	}
	return Normalize(vector), nil
}

func (p *LocalProvider) HealthCheck(ctx context.Context) error { return ctx.Err() }

func (p *LocalProvider) Close() error { return nil }
