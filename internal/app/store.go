package app

import (
	"context"
	"sync/atomic"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/vectorstore"
)

// DeferredStore defers vector-store access until the background bootstrap
// has connected and verified Postgres. Handlers hold it from process start;
// calls that land before Set return KindUnavailable, which the API layer
// renders as a 503 with a clean envelope.
type DeferredStore struct {
	store atomic.Pointer[vectorstore.Store]
}

// NewDeferredStore returns an empty holder. Publish the real store with Set
// once Initialize has succeeded.
func NewDeferredStore() *DeferredStore {
	return &DeferredStore{}
}

// Set publishes the connected store. Call it exactly once.
func (d *DeferredStore) Set(s *vectorstore.Store) {
	d.store.Store(s)
}

func (d *DeferredStore) get() (*vectorstore.Store, error) {
	if s := d.store.Load(); s != nil {
		return s, nil
	}
	return nil, apperrors.New(apperrors.KindUnavailable, "vector store initializing")
}

func (d *DeferredStore) GetStoredHash(ctx context.Context, tenantID, entityID, chunkType string) (*vectorstore.StoredHash, error) {
	s, err := d.get()
	if err != nil {
		return nil, err
	}
	return s.GetStoredHash(ctx, tenantID, entityID, chunkType)
}

func (d *DeferredStore) UpsertEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error {
	s, err := d.get()
	if err != nil {
		return err
	}
	return s.UpsertEmbedding(ctx, rec)
}

func (d *DeferredStore) UpsertDocument(ctx context.Context, doc *models.CandidateDocument, searchText string) error {
	s, err := d.get()
	if err != nil {
		return err
	}
	return s.UpsertDocument(ctx, doc, searchText)
}

func (d *DeferredStore) DeleteCandidate(ctx context.Context, tenantID, candidateID string) error {
	s, err := d.get()
	if err != nil {
		return err
	}
	return s.DeleteCandidate(ctx, tenantID, candidateID)
}

func (d *DeferredStore) HybridSearch(ctx context.Context, q vectorstore.RecallQuery) (*vectorstore.RecallResult, error) {
	s, err := d.get()
	if err != nil {
		return nil, err
	}
	return s.HybridSearch(ctx, q)
}

func (d *DeferredStore) GetCandidates(ctx context.Context, tenant models.TenantContext, candidateIDs []string) ([]models.CandidateDocument, error) {
	s, err := d.get()
	if err != nil {
		return nil, err
	}
	return s.GetCandidates(ctx, tenant, candidateIDs)
}

// HealthCheck reports unhealthy until the store is published, then defers
// to the live pool check.
func (d *DeferredStore) HealthCheck(ctx context.Context) (vectorstore.Health, error) {
	s, err := d.get()
	if err != nil {
		return vectorstore.HealthUnhealthy, err
	}
	return s.HealthCheck(ctx)
}

// Close releases the underlying pool if the store was ever published.
func (d *DeferredStore) Close() error {
	if s := d.store.Load(); s != nil {
		return s.Close()
	}
	return nil
}
