package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
)

const upsertEmbeddingQuery = `
	INSERT INTO candidate_embeddings (
		tenant_id, entity_id, chunk_type,
		embedding, model_version, provider, text_hash, metadata,
		created_at, updated_at
	) VALUES (
		$1, $2, $3,
		$4::vector, $5, $6, $7, $8,
		now(), now()
	)
	ON CONFLICT (tenant_id, entity_id, chunk_type) DO UPDATE SET
		embedding = EXCLUDED.embedding,
		model_version = EXCLUDED.model_version,
		provider = EXCLUDED.provider,
		text_hash = EXCLUDED.text_hash,
		metadata = EXCLUDED.metadata,
		updated_at = now()`

// UpsertEmbedding writes one vector row, replacing any previous vector for
// the same (tenant, entity, chunk). The write is idempotent, so it is safe
// to retry on transient failures.
func (s *Store) UpsertEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error {
	if rec == nil {
		return apperrors.New(apperrors.KindBadInput, "embedding record is nil")
	}
	if rec.TenantID == "" || rec.EntityID == "" {
		return apperrors.New(apperrors.KindBadInput, "tenant and entity ids are required")
	}
	if len(rec.Vector) != s.cfg.Dimensions {
		return apperrors.Newf(apperrors.KindSchemaMismatch,
			"vector has %d dimensions, store expects %d", len(rec.Vector), s.cfg.Dimensions)
	}
	chunkType := rec.ChunkType
	if chunkType == "" {
		chunkType = models.ChunkTypeProfile
	}

	var metadataJSON interface{}
	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return apperrors.Wrap(err, apperrors.KindBadInput, "marshal embedding metadata")
		}
		metadataJSON = raw
	}

	started := time.Now()
	err := s.withRetry(ctx, "upsert_embedding", func(ctx context.Context) error {
		_, execErr := s.db.ExecContext(ctx, upsertEmbeddingQuery,
			rec.TenantID, rec.EntityID, chunkType,
			formatVector(rec.Vector), rec.ModelVersion, rec.Provider, rec.TextHash, metadataJSON,
		)
		return execErr
	})
	s.metrics.RecordOperation("vectorstore", "upsert_embedding", err == nil, time.Since(started).Seconds(), nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindUnavailable, "upsert embedding")
	}
	return nil
}

const textHashQuery = `
	SELECT text_hash, model_version, provider
	FROM candidate_embeddings
	WHERE tenant_id = $1 AND entity_id = $2 AND chunk_type = $3`

// StoredHash describes the embedding already persisted for an entity, used
// to short-circuit re-embedding unchanged text.
type StoredHash struct {
	TextHash     string `db:"text_hash"`
	ModelVersion string `db:"model_version"`
	Provider     string `db:"provider"`
}

// GetStoredHash returns the persisted text hash for an entity, or nil when
// no row exists yet.
func (s *Store) GetStoredHash(ctx context.Context, tenantID, entityID, chunkType string) (*StoredHash, error) {
	if chunkType == "" {
		chunkType = models.ChunkTypeProfile
	}
	var stored StoredHash
	err := s.withRetry(ctx, "get_stored_hash", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &stored, textHashQuery, tenantID, entityID, chunkType)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "read stored text hash")
	}
	return &stored, nil
}

const upsertDocumentQuery = `
	INSERT INTO candidate_documents (
		tenant_id, candidate_id,
		full_name, current_title, summary, location,
		skills, experience_years, seniority,
		companies, domains, keywords, title_keywords,
		work_history, analysis_confidence, search_text, updated_at
	) VALUES (
		$1, $2,
		$3, $4, $5, $6,
		$7, $8, $9,
		$10, $11, $12, $13,
		$14, $15, to_tsvector('english', $16), now()
	)
	ON CONFLICT (tenant_id, candidate_id) DO UPDATE SET
		full_name = EXCLUDED.full_name,
		current_title = EXCLUDED.current_title,
		summary = EXCLUDED.summary,
		location = EXCLUDED.location,
		skills = EXCLUDED.skills,
		experience_years = EXCLUDED.experience_years,
		seniority = EXCLUDED.seniority,
		companies = EXCLUDED.companies,
		domains = EXCLUDED.domains,
		keywords = EXCLUDED.keywords,
		title_keywords = EXCLUDED.title_keywords,
		work_history = EXCLUDED.work_history,
		analysis_confidence = EXCLUDED.analysis_confidence,
		search_text = EXCLUDED.search_text,
		updated_at = now()`

// UpsertDocument writes the denormalized read-model row that hybrid recall
// joins against. searchText is the canonical serialization produced by the
// profile normalizer; the BM25 path indexes it, not the raw profile JSON.
func (s *Store) UpsertDocument(ctx context.Context, doc *models.CandidateDocument, searchText string) error {
	if doc == nil {
		return apperrors.New(apperrors.KindBadInput, "candidate document is nil")
	}
	if doc.TenantID == "" || doc.CandidateID == "" {
		return apperrors.New(apperrors.KindBadInput, "tenant and candidate ids are required")
	}

	var workHistoryJSON interface{}
	if len(doc.WorkHistory) > 0 {
		raw, err := json.Marshal(doc.WorkHistory)
		if err != nil {
			return apperrors.Wrap(err, apperrors.KindBadInput, "marshal work history")
		}
		workHistoryJSON = raw
	}

	started := time.Now()
	err := s.withRetry(ctx, "upsert_document", func(ctx context.Context) error {
		_, execErr := s.db.ExecContext(ctx, upsertDocumentQuery,
			doc.TenantID, doc.CandidateID,
			doc.FullName, doc.CurrentTitle, doc.Summary, doc.Location,
			pq.Array(doc.Skills), doc.ExperienceYears, doc.Seniority,
			pq.Array(doc.Companies), pq.Array(doc.Domains), pq.Array(doc.Keywords), pq.Array(doc.TitleKeywords),
			workHistoryJSON, doc.AnalysisConfidence, searchText,
		)
		return execErr
	})
	s.metrics.RecordOperation("vectorstore", "upsert_document", err == nil, time.Since(started).Seconds(), nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindUnavailable, "upsert candidate document")
	}
	return nil
}

const deleteCandidateQuery = `DELETE FROM candidate_embeddings WHERE tenant_id = $1 AND entity_id = $2`
const deleteDocumentQuery = `DELETE FROM candidate_documents WHERE tenant_id = $1 AND candidate_id = $2`

// DeleteCandidate removes all vector rows and the read-model row for one
// candidate within a tenant.
func (s *Store) DeleteCandidate(ctx context.Context, tenantID, candidateID string) error {
	if tenantID == "" || candidateID == "" {
		return apperrors.New(apperrors.KindBadInput, "tenant and candidate ids are required")
	}
	err := s.withRetry(ctx, "delete_candidate", func(ctx context.Context) error {
		if _, execErr := s.db.ExecContext(ctx, deleteCandidateQuery, tenantID, candidateID); execErr != nil {
			return execErr
		}
		_, execErr := s.db.ExecContext(ctx, deleteDocumentQuery, tenantID, candidateID)
		return execErr
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindUnavailable, "delete candidate")
	}
	return nil
}
