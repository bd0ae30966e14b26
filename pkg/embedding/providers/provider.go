// Package providers implements the embedding backends behind the embed
// service: an OpenAI-compatible HTTP provider, AWS Bedrock Titan, and a
// deterministic local provider for development.
package providers

import (
	"context"
	"time"
)

// Provider names as they appear in stored rows, logs and metrics.
const (
	NamePrimary   = "primary"
	NameSecondary = "secondary"
	NameLocal     = "local"
)

// Provider generates dense vectors for text. Implementations return raw
// provider output; the embed service normalizes and checks dimensions.
type Provider interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name identifies the provider in stored rows and logs.
	Name() string

	// ModelVersion is persisted with every vector it produced.
	ModelVersion() string

	// Dimensions is the width this provider is configured to emit.
	Dimensions() int

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases any held resources.
	Close() error
}

// Config carries the settings shared by the HTTP-backed providers.
type Config struct {
	APIKey         string
	Endpoint       string
	Model          string
	Region         string
	Dimensions     int
	RequestTimeout time.Duration
	CustomHeaders  map[string]string
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 768
	}
}
