// Package rerank implements stage 3 of the search pipeline: LLM-driven
// reordering of a scored candidate set with a deterministic cache in front
// and a provider fallback chain behind. Identical inputs (tenant, job hash,
// docset hash, model, weights version) return identical orderings and scores
// for the cache TTL.
package rerank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/talentmesh/talentmesh/pkg/models"
)

// Provider names as they appear in logs, metrics and breaker states.
const (
	NamePrimary   = "primary"
	NameSecondary = "secondary"
)

// Provider scores a docset against a job description. Implementations return
// the model's raw judgment; the service enforces the bijection and ordering
// invariants.
type Provider interface {
	// Rerank returns one scored result per input doc.
	Rerank(ctx context.Context, jdText string, docs []models.RerankDoc) ([]models.RerankResult, error)

	// Name identifies the provider in logs and breaker state.
	Name() string

	// ModelVersion participates in the cache key; a model change must miss.
	ModelVersion() string
}

// ProviderConfig carries the settings shared by the LLM providers.
type ProviderConfig struct {
	APIKey         string
	Endpoint       string
	Model          string
	Region         string
	RequestTimeout time.Duration
	MaxTokens      int
}

func (c *ProviderConfig) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
}

// buildPrompt renders the rerank instruction. The docset order is preserved
// so the prompt is deterministic for a given request.
func buildPrompt(jdText string, docs []models.RerankDoc) string {
	var b strings.Builder
	b.WriteString("You are ranking candidates for a role. Score how well each candidate fits the job description on a 0.0 to 1.0 scale and give a one-sentence reason.\n\n")
	b.WriteString("Job description:\n")
	b.WriteString(strings.TrimSpace(jdText))
	b.WriteString("\n\nCandidates:\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "%d. candidateId=%s: %s\n", i+1, doc.CandidateID, strings.TrimSpace(doc.RationaleInput))
	}
	b.WriteString("\nRespond with only a JSON array, no other text. One object per candidate, every candidateId exactly once:\n")
	b.WriteString(`[{"candidateId": "...", "score": 0.0, "reason": "..."}]`)
	b.WriteString("\n")
	return b.String()
}
