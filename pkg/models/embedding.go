package models

import (
	"time"
)

// Chunk types stored in the vector table.
const (
	ChunkTypeProfile = "profile"
	ChunkTypeSummary = "summary"
)

// EmbeddingRecord is a persisted dense vector. Unique by
// (TenantID, EntityID, ChunkType); the vector length must equal the
// deployment dimension D.
type EmbeddingRecord struct {
	TenantID     string                 `json:"tenantId" db:"tenant_id"`
	EntityID     string                 `json:"entityId" db:"entity_id"`
	ChunkType    string                 `json:"chunkType" db:"chunk_type"`
	Vector       []float32              `json:"vector" db:"embedding"`
	ModelVersion string                 `json:"modelVersion" db:"model_version"`
	Provider     string                 `json:"provider" db:"provider"`
	TextHash     string                 `json:"textHash" db:"text_hash"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time              `json:"updatedAt" db:"updated_at"`
}

// UpsertRequest is the body of POST /embed/upsert. Exactly one of Text or
// Profile must be set.
type UpsertRequest struct {
	TenantID  string                 `json:"tenantId"`
	EntityID  string                 `json:"entityId" binding:"required"`
	ChunkType string                 `json:"chunkType,omitempty"`
	Text      string                 `json:"text,omitempty"`
	Profile   *CandidateProfile      `json:"profile,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// UpsertResponse is returned by POST /embed/upsert.
type UpsertResponse struct {
	EntityID     string `json:"entityId"`
	ModelVersion string `json:"modelVersion"`
	Provider     string `json:"provider"`
	Dim          int    `json:"dim"`
}

// QueryEmbedRequest is the body of POST /embed/query.
type QueryEmbedRequest struct {
	TenantID string `json:"tenantId"`
	Text     string `json:"text" binding:"required"`
}

// QueryEmbedResponse is returned by POST /embed/query.
type QueryEmbedResponse struct {
	Vector       []float32 `json:"vector"`
	Provider     string    `json:"provider"`
	ModelVersion string    `json:"modelVersion"`
}
