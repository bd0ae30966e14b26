package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad input", New(KindBadInput, "jdText is required"), http.StatusBadRequest},
		{"unprocessable", New(KindUnprocessable, "profile has no searchable content"), http.StatusUnprocessableEntity},
		{"unauthenticated", New(KindUnauthenticated, "missing tenant"), http.StatusUnauthorized},
		{"forbidden", New(KindForbidden, "tenant not allowed"), http.StatusForbidden},
		{"not found", New(KindNotFound, "unknown candidate"), http.StatusNotFound},
		{"degraded served as 200", New(KindDegraded, "vector path down"), http.StatusOK},
		{"unavailable", New(KindUnavailable, "no recall path"), http.StatusServiceUnavailable},
		{"timeout", New(KindTimeout, "deadline exceeded"), http.StatusGatewayTimeout},
		{"schema mismatch", ErrSchemaMismatch, http.StatusInternalServerError},
		{"provider", NewProviderError("primary", ProviderUpstream5xx, nil), http.StatusServiceUnavailable},
		{"unclassified", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestKindOf_WrappedChains(t *testing.T) {
	base := New(KindUnavailable, "store down")
	wrapped := pkgerrors.Wrap(base, "hybrid search")
	assert.Equal(t, KindUnavailable, KindOf(wrapped))

	again := Wrap(wrapped, KindDegraded, "serving text-only recall")
	assert.Equal(t, KindDegraded, KindOf(again))

	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
}

func TestSchemaMismatchSentinel(t *testing.T) {
	err := Wrap(ErrSchemaMismatch, KindSchemaMismatch, "dimension 768 != 1536")
	assert.True(t, IsSchemaMismatch(err))
	assert.False(t, IsSchemaMismatch(New(KindUnavailable, "down")))
}

func TestProviderError(t *testing.T) {
	err := NewProviderError("bedrock", ProviderRateLimited, fmt.Errorf("429"))
	assert.True(t, err.Retryable())
	assert.Equal(t, KindProvider, KindOf(err))
	// Message carries the provider name and reason only.
	assert.Equal(t, "provider bedrock failed: rate_limited", err.Error())

	parse := NewProviderError("bedrock", ProviderParseFailure, nil)
	assert.False(t, parse.Retryable())
}

func TestClassifyProviderStatus(t *testing.T) {
	assert.Equal(t, ProviderRateLimited, ClassifyProviderStatus(429))
	assert.Equal(t, ProviderTimeout, ClassifyProviderStatus(504))
	assert.Equal(t, ProviderUpstream5xx, ClassifyProviderStatus(500))
	assert.Equal(t, ProviderInvalidInput, ClassifyProviderStatus(400))
}
