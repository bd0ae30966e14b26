package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// CanonicalText lowercases and whitespace-normalizes text so that hashes are
// stable across formatting differences.
func CanonicalText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// TextHash returns the hex sha256 of the canonical form of text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(CanonicalText(text)))
	return hex.EncodeToString(sum[:])
}

// JobFingerprint hashes a job description into a stable identifier used in
// cache keys and logs.
func JobFingerprint(jdText string) string {
	return TextHash(jdText)
}

// DocsetHash produces an order-independent hash of a rerank docset. Both the
// candidate ids and their rationale inputs participate.
func DocsetHash(docs []RerankDoc) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.CandidateID+"\x1f"+TextHash(d.RationaleInput))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1e")))
	return hex.EncodeToString(sum[:])
}

// RerankCacheKey derives the deterministic rerank cache key. Identical keys
// must yield identical ordering and scores within the cache TTL.
func RerankCacheKey(tenantID, jdHash, docsetHash, modelVersion, weightsVersion string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		tenantID, jdHash, docsetHash, modelVersion, weightsVersion,
	}, "|")))
	return hex.EncodeToString(sum[:])
}
