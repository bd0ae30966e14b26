// Package errors defines the error taxonomy shared by all services. Each
// layer converts lower-level failures into the nearest kind here; handlers
// map kinds to HTTP statuses and never expose internal detail to clients.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	// KindUnknown indicates an unclassified internal error.
	KindUnknown Kind = iota
	// KindBadInput indicates missing or invalid request fields.
	KindBadInput
	// KindUnprocessable indicates structurally valid input that cannot be
	// acted on, such as a profile with no searchable content.
	KindUnprocessable
	// KindUnauthenticated indicates a missing tenant or identity.
	KindUnauthenticated
	// KindForbidden indicates a present but unacceptable identity.
	KindForbidden
	// KindNotFound indicates an unknown entity on a direct lookup.
	KindNotFound
	// KindDegraded indicates a partial dependency outage; the request is
	// still served with degraded=true.
	KindDegraded
	// KindUnavailable indicates no viable path to serve the request.
	KindUnavailable
	// KindTimeout indicates a deadline was exceeded at request scope.
	KindTimeout
	// KindSchemaMismatch indicates the persistent schema does not match the
	// deployment. Startup-fatal and never masked.
	KindSchemaMismatch
	// KindProvider indicates a classified upstream provider failure.
	KindProvider
)

func (k Kind) String() string {
	switch k {
	case KindBadInput:
		return "bad_input"
	case KindUnprocessable:
		return "unprocessable"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindDegraded:
		return "degraded"
	case KindUnavailable:
		return "service_unavailable"
	case KindTimeout:
		return "timeout"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindProvider:
		return "provider_error"
	default:
		return "internal"
	}
}

// Error is a classified error. Message is a stable, user-visible string;
// details belong in structured logs keyed by request id.
type Error struct {
	Kind    Kind
	Message string
	Op      string
	cause   error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Op, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches errors by kind so sentinel comparisons work across wrapping.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind && (te.Message == "" || te.Message == e.Message)
	}
	return false
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, preserving it as the cause. Returns nil
// when err is nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: err}
}

// Wrapf classifies an existing error with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: err}
}

// WithOp annotates an error with the failing operation.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// ErrSchemaMismatch is the sentinel for vector schema verification failures.
var ErrSchemaMismatch = New(KindSchemaMismatch, "vector schema does not match deployment configuration")

// KindOf extracts the kind from any error chain. Context cancellation maps to
// KindTimeout; everything unclassified maps to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return KindProvider
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// HTTPStatus maps an error chain to a response status. Degraded requests are
// served as 200 with degraded=true in the body, so KindDegraded maps to 200.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindBadInput:
		return http.StatusBadRequest
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDegraded:
		return http.StatusOK
	case KindUnavailable, KindProvider:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindSchemaMismatch:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IsBadInput reports whether the chain classifies as invalid input.
func IsBadInput(err error) bool { return KindOf(err) == KindBadInput }

// IsNotFound reports whether the chain classifies as not found.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsUnavailable reports whether the chain classifies as unavailable.
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }

// IsTimeout reports whether the chain classifies as a timeout.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsSchemaMismatch reports whether the chain contains a schema mismatch.
func IsSchemaMismatch(err error) bool { return KindOf(err) == KindSchemaMismatch }

// IsDegraded reports whether the chain classifies as degraded.
func IsDegraded(err error) bool { return KindOf(err) == KindDegraded }
