// Package cache provides the tenant-scoped Redis cache shared by all
// services. Keys are namespaced per concern and always embed the tenant id;
// payloads over a size threshold are gzip-compressed; writes are best-effort
// and never fail the caller.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Namespace separates cache concerns. TTLs are configured per namespace.
type Namespace string

const (
	NamespaceEmbed    Namespace = "embed"
	NamespaceHybrid   Namespace = "hybrid"
	NamespaceRerank   Namespace = "rerank"
	NamespaceEvidence Namespace = "evidence"
	NamespaceMsgs     Namespace = "msgs"
)

// KeySchemaVersion is appended to every key. Bump it to invalidate all
// entries after an incompatible payload change.
const KeySchemaVersion = "v1"

// Status classifies cache health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDisabled Status = "disabled"
)

// Cache is the tenant-scoped key-value contract. Get treats any transport or
// deserialization failure as a miss; Set is best-effort and never surfaces an
// error to the caller.
type Cache interface {
	// Get loads the entry for key into dest and reports whether it was found.
	Get(ctx context.Context, ns Namespace, key string, dest interface{}) bool
	// Set stores value under key with the namespace TTL (or ttl when > 0).
	Set(ctx context.Context, ns Namespace, key string, value interface{}, ttl time.Duration)
	// Delete removes a key. Used by admin purge paths only.
	Delete(ctx context.Context, ns Namespace, key string) error
	// HealthCheck pings the backend and runs a short round-trip probe.
	HealthCheck(ctx context.Context) (Status, error)
	// Close releases the underlying connection pool.
	Close() error
}

// Key builds a namespaced tenant-scoped cache key. The tenant id is wrapped
// in braces so Redis Cluster slots all of a tenant's entries together:
//
//	rerank:{tenant-a}:9f3c…:77ab…:v1
func Key(ns Namespace, tenantID string, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(ns))
	fmt.Fprintf(&b, ":{%s}", tenantID)
	for _, p := range parts {
		b.WriteString(":")
		b.WriteString(p)
	}
	b.WriteString(":")
	b.WriteString(KeySchemaVersion)
	return b.String()
}
