package errors

import (
	"fmt"
	"time"
)

// ProviderReason sub-classifies upstream provider failures.
type ProviderReason string

const (
	// ProviderTimeout indicates the provider call exceeded its deadline.
	ProviderTimeout ProviderReason = "timeout"
	// ProviderRateLimited indicates a 429 or equivalent throttle.
	ProviderRateLimited ProviderReason = "rate_limited"
	// ProviderInvalidInput indicates the provider rejected the payload.
	ProviderInvalidInput ProviderReason = "invalid_input"
	// ProviderParseFailure indicates an unparseable provider response after
	// strict and lenient passes.
	ProviderParseFailure ProviderReason = "parse_failure"
	// ProviderUpstream5xx indicates a provider-side server error.
	ProviderUpstream5xx ProviderReason = "upstream_5xx"
	// ProviderUnavailable indicates the provider could not be reached.
	ProviderUnavailable ProviderReason = "unavailable"
)

// ProviderError is a classified upstream failure. Provider is the configured
// provider name only; response bodies and provider internals never appear in
// the message.
type ProviderError struct {
	Provider   string
	Reason     ProviderReason
	StatusCode int
	RetryAfter *time.Duration
	cause      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %s", e.Provider, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.cause
}

// Retryable reports whether the failure class is worth retrying.
func (e *ProviderError) Retryable() bool {
	switch e.Reason {
	case ProviderTimeout, ProviderRateLimited, ProviderUpstream5xx, ProviderUnavailable:
		return true
	default:
		return false
	}
}

// NewProviderError creates a classified provider failure.
func NewProviderError(provider string, reason ProviderReason, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Reason: reason, cause: cause}
}

// ClassifyProviderStatus maps an HTTP status from a provider to a reason.
func ClassifyProviderStatus(status int) ProviderReason {
	switch {
	case status == 429:
		return ProviderRateLimited
	case status == 408 || status == 504:
		return ProviderTimeout
	case status >= 500:
		return ProviderUpstream5xx
	case status >= 400:
		return ProviderInvalidInput
	default:
		return ProviderUnavailable
	}
}
