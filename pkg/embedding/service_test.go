package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/pkg/cache"
	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/vectorstore"
)

type fakeEmbedder struct {
	vector   []float32
	provider string
	model    string
	dims     int
	err      error
	calls    int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (*EmbedResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, len(f.vector))
	copy(out, f.vector)
	return &EmbedResult{Vector: out, Provider: f.provider, ModelVersion: f.model}, nil
}

func (f *fakeEmbedder) PreferredModelVersion() string { return f.model }
func (f *fakeEmbedder) Dimensions() int               { return f.dims }
func (f *fakeEmbedder) HealthCheck(ctx context.Context) map[string]error {
	return map[string]error{f.provider: nil}
}

type fakeStorage struct {
	hashes      map[string]*vectorstore.StoredHash
	hashErr     error
	embedErr    error
	docErr      error
	deleteErr   error
	embeddings  []*models.EmbeddingRecord
	documents   []*models.CandidateDocument
	searchTexts []string
	deleted     []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{hashes: map[string]*vectorstore.StoredHash{}}
}

func storageKey(tenantID, entityID, chunkType string) string {
	return tenantID + "/" + entityID + "/" + chunkType
}

func (f *fakeStorage) GetStoredHash(ctx context.Context, tenantID, entityID, chunkType string) (*vectorstore.StoredHash, error) {
	if f.hashErr != nil {
		return nil, f.hashErr
	}
	return f.hashes[storageKey(tenantID, entityID, chunkType)], nil
}

func (f *fakeStorage) UpsertEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error {
	if f.embedErr != nil {
		return f.embedErr
	}
	f.embeddings = append(f.embeddings, rec)
	f.hashes[storageKey(rec.TenantID, rec.EntityID, rec.ChunkType)] = &vectorstore.StoredHash{
		TextHash:     rec.TextHash,
		ModelVersion: rec.ModelVersion,
		Provider:     rec.Provider,
	}
	return nil
}

func (f *fakeStorage) UpsertDocument(ctx context.Context, doc *models.CandidateDocument, searchText string) error {
	if f.docErr != nil {
		return f.docErr
	}
	f.documents = append(f.documents, doc)
	f.searchTexts = append(f.searchTexts, searchText)
	return nil
}

func (f *fakeStorage) DeleteCandidate(ctx context.Context, tenantID, candidateID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, storageKey(tenantID, candidateID, ""))
	return nil
}

func newEmbedTestCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewRedisCache(cache.Config{
		Address: mr.Addr(),
		TTLs:    map[cache.Namespace]time.Duration{cache.NamespaceEmbed: time.Hour},
	}, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestService(t *testing.T, embedder Embedder, store Storage, remote cache.Cache) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{LocalCacheEntries: 16}, embedder, store, remote, nil, nil)
	require.NoError(t, err)
	return svc
}

func testProfile() *models.CandidateProfile {
	conf := 0.8
	return &models.CandidateProfile{
		ID:              "cand-1",
		DisplayName:     "Ada Kovacs",
		CurrentTitle:    "Senior Backend Engineer",
		CurrentCompany:  "Acme",
		Summary:         "Backend engineer focused on payment systems.",
		Skills:          []models.SkillEntry{{Name: "Go"}, {Name: "Postgres", Confidence: &conf}},
		ExperienceYears: 8,
		SeniorityLevel:  "Senior",
		Companies:       []string{"Initech"},
		Domains:         []string{"fintech"},
		WorkHistory: []models.WorkHistoryEntry{
			{Title: "Backend Engineer", Company: "Initech", Months: 30},
			{Title: "Senior Backend Engineer", Company: "Acme", Months: 18},
		},
	}
}

func TestUpsertValidation(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, provider: "primary", model: "m1", dims: 3}
	svc := newTestService(t, embedder, newFakeStorage(), nil)

	cases := []struct {
		name string
		req  models.UpsertRequest
		kind apperrors.Kind
	}{
		{"missing tenant", models.UpsertRequest{EntityID: "c1", Text: "go engineer"}, apperrors.KindBadInput},
		{"missing entity", models.UpsertRequest{TenantID: "t1", Text: "go engineer"}, apperrors.KindBadInput},
		{"text and profile", models.UpsertRequest{TenantID: "t1", EntityID: "c1", Text: "x", Profile: testProfile()}, apperrors.KindBadInput},
		{"neither text nor profile", models.UpsertRequest{TenantID: "t1", EntityID: "c1"}, apperrors.KindBadInput},
		{"unknown chunk type", models.UpsertRequest{TenantID: "t1", EntityID: "c1", Text: "x", ChunkType: "resume"}, apperrors.KindBadInput},
		{"profile id mismatch", models.UpsertRequest{TenantID: "t1", EntityID: "c2", Profile: testProfile()}, apperrors.KindBadInput},
		{"empty profile", models.UpsertRequest{TenantID: "t1", EntityID: "c1", Profile: &models.CandidateProfile{ID: "c1", Summary: "   "}}, apperrors.KindUnprocessable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upsert(context.Background(), tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperrors.KindOf(err))
		})
	}
	assert.Zero(t, embedder.calls)
}

func TestUpsertEmbedsAndPersists(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{3, 0, 4}, provider: "primary", model: "m1", dims: 3}
	store := newFakeStorage()
	svc := newTestService(t, embedder, store, nil)

	resp, err := svc.Upsert(context.Background(), models.UpsertRequest{
		TenantID: "tenant-a",
		EntityID: "cand-1",
		Profile:  testProfile(),
		Metadata: map[string]interface{}{"source": "enrichment"},
	})
	require.NoError(t, err)

	assert.Equal(t, "cand-1", resp.EntityID)
	assert.Equal(t, "primary", resp.Provider)
	assert.Equal(t, "m1", resp.ModelVersion)
	assert.Equal(t, 3, resp.Dim)

	require.Len(t, store.embeddings, 1)
	rec := store.embeddings[0]
	assert.Equal(t, "tenant-a", rec.TenantID)
	assert.Equal(t, models.ChunkTypeProfile, rec.ChunkType)
	assert.Equal(t, models.TextHash(testProfile().Searchable()), rec.TextHash)
	assert.Equal(t, "enrichment", rec.Metadata["source"])

	// Vectors are stored unit-normalized for cosine similarity.
	var norm float64
	for _, v := range rec.Vector {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	require.Len(t, store.documents, 1)
	doc := store.documents[0]
	assert.Equal(t, "cand-1", doc.CandidateID)
	assert.Equal(t, "Ada Kovacs", doc.FullName)
	assert.Equal(t, "senior", doc.Seniority)
	assert.Contains(t, store.searchTexts[0], "skills: go, postgres")
}

func TestUpsertShortCircuitSkipsReembed(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, provider: "primary", model: "m1", dims: 3}
	store := newFakeStorage()
	svc := newTestService(t, embedder, store, nil)

	req := models.UpsertRequest{TenantID: "tenant-a", EntityID: "cand-1", Profile: testProfile()}

	_, err := svc.Upsert(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, embedder.calls)

	resp, err := svc.Upsert(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls, "unchanged text must not re-embed")
	assert.Equal(t, "primary", resp.Provider)
	assert.Equal(t, "m1", resp.ModelVersion)
	assert.Len(t, store.embeddings, 1)

	// The read-model row is still refreshed: tenure months can change
	// without changing the searchable text.
	assert.Len(t, store.documents, 2)
}

func TestUpsertReembedsWhenPreferredModelChanges(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, provider: "primary", model: "m1", dims: 3}
	store := newFakeStorage()
	svc := newTestService(t, embedder, store, nil)

	req := models.UpsertRequest{TenantID: "tenant-a", EntityID: "cand-1", Text: "go engineer in berlin"}
	_, err := svc.Upsert(context.Background(), req)
	require.NoError(t, err)

	// A failover earlier wrote the row under the secondary's model; once the
	// primary is preferred again the same text re-embeds.
	embedder.model = "m2"
	resp, err := svc.Upsert(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, embedder.calls)
	assert.Equal(t, "m2", resp.ModelVersion)
}

func TestUpsertTextOnlySkipsDocument(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, provider: "primary", model: "m1", dims: 3}
	store := newFakeStorage()
	svc := newTestService(t, embedder, store, nil)

	_, err := svc.Upsert(context.Background(), models.UpsertRequest{
		TenantID:  "tenant-a",
		EntityID:  "cand-1",
		ChunkType: models.ChunkTypeSummary,
		Text:      "Staff engineer, distributed systems.",
	})
	require.NoError(t, err)

	assert.Len(t, store.embeddings, 1)
	assert.Equal(t, models.ChunkTypeSummary, store.embeddings[0].ChunkType)
	assert.Empty(t, store.documents)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0}, provider: "primary", model: "m1", dims: 3}
	store := newFakeStorage()
	svc := newTestService(t, embedder, store, nil)

	_, err := svc.Upsert(context.Background(), models.UpsertRequest{
		TenantID: "tenant-a", EntityID: "cand-1", Text: "go engineer",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsSchemaMismatch(err))
	assert.Empty(t, store.embeddings)
}

func TestUpsertHashLookupFailureFallsThrough(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, provider: "primary", model: "m1", dims: 3}
	store := newFakeStorage()
	store.hashErr = errors.New("connection refused")
	svc := newTestService(t, embedder, store, nil)

	resp, err := svc.Upsert(context.Background(), models.UpsertRequest{
		TenantID: "tenant-a", EntityID: "cand-1", Text: "go engineer",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, "m1", resp.ModelVersion)
}

func TestUpsertStoreWriteFailure(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, provider: "primary", model: "m1", dims: 3}
	store := newFakeStorage()
	store.embedErr = apperrors.New(apperrors.KindUnavailable, "store down")
	svc := newTestService(t, embedder, store, nil)

	_, err := svc.Upsert(context.Background(), models.UpsertRequest{
		TenantID: "tenant-a", EntityID: "cand-1", Text: "go engineer",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestDeleteRemovesCandidate(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, provider: "primary", model: "m1", dims: 3}
	store := newFakeStorage()
	svc := newTestService(t, embedder, store, nil)

	require.NoError(t, svc.Delete(context.Background(), "tenant-a", "cand-1"))
	require.Len(t, store.deleted, 1)
	assert.Equal(t, storageKey("tenant-a", "cand-1", ""), store.deleted[0])

	err := svc.Delete(context.Background(), "", "cand-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsBadInput(err))

	err = svc.Delete(context.Background(), "tenant-a", "  ")
	require.Error(t, err)
	assert.True(t, apperrors.IsBadInput(err))

	store.deleteErr = apperrors.New(apperrors.KindUnavailable, "store down")
	err = svc.Delete(context.Background(), "tenant-a", "cand-2")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestQueryEmbedValidation(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, provider: "primary", model: "m1", dims: 3}
	svc := newTestService(t, embedder, newFakeStorage(), nil)

	_, err := svc.QueryEmbed(context.Background(), models.QueryEmbedRequest{Text: "jd"})
	require.Error(t, err)
	assert.True(t, apperrors.IsBadInput(err))

	_, err = svc.QueryEmbed(context.Background(), models.QueryEmbedRequest{TenantID: "t1", Text: "   "})
	require.Error(t, err)
	assert.True(t, apperrors.IsBadInput(err))
}

func TestQueryEmbedTwoTierCache(t *testing.T) {
	remote := newEmbedTestCache(t)
	embedder := &fakeEmbedder{vector: []float32{0, 2, 0}, provider: "primary", model: "m1", dims: 3}
	svc := newTestService(t, embedder, newFakeStorage(), remote)

	req := models.QueryEmbedRequest{TenantID: "tenant-a", Text: "Senior Go engineer, Berlin"}

	first, err := svc.QueryEmbed(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, embedder.calls)
	assert.Equal(t, "primary", first.Provider)
	assert.InDelta(t, 1.0, float64(first.Vector[1]), 1e-6)

	// Local tier.
	second, err := svc.QueryEmbed(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, first.Vector, second.Vector)

	// A fresh instance has a cold LRU but shares Redis.
	other := newTestService(t, embedder, newFakeStorage(), remote)
	third, err := other.QueryEmbed(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls, "redis tier must satisfy the lookup")
	assert.Equal(t, first.Vector, third.Vector)
	assert.Equal(t, "m1", third.ModelVersion)
}

func TestQueryEmbedCacheIsTenantScoped(t *testing.T) {
	remote := newEmbedTestCache(t)
	embedder := &fakeEmbedder{vector: []float32{0, 2, 0}, provider: "primary", model: "m1", dims: 3}
	svc := newTestService(t, embedder, newFakeStorage(), remote)

	_, err := svc.QueryEmbed(context.Background(), models.QueryEmbedRequest{TenantID: "tenant-a", Text: "go engineer"})
	require.NoError(t, err)
	_, err = svc.QueryEmbed(context.Background(), models.QueryEmbedRequest{TenantID: "tenant-b", Text: "go engineer"})
	require.NoError(t, err)

	assert.Equal(t, 2, embedder.calls)
}

func TestQueryEmbedKeyTracksCanonicalText(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0, 2, 0}, provider: "primary", model: "m1", dims: 3}
	svc := newTestService(t, embedder, newFakeStorage(), nil)

	_, err := svc.QueryEmbed(context.Background(), models.QueryEmbedRequest{TenantID: "tenant-a", Text: "Go Engineer"})
	require.NoError(t, err)
	_, err = svc.QueryEmbed(context.Background(), models.QueryEmbedRequest{TenantID: "tenant-a", Text: "  go   engineer "})
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls, "formatting differences share one cache entry")
}

func TestQueryEmbedProviderFailurePropagates(t *testing.T) {
	embedder := &fakeEmbedder{
		err:  apperrors.NewProviderError("primary", apperrors.ProviderUpstream5xx, errors.New("status 502")),
		dims: 3,
	}
	svc := newTestService(t, embedder, newFakeStorage(), nil)

	_, err := svc.QueryEmbed(context.Background(), models.QueryEmbedRequest{TenantID: "tenant-a", Text: "go engineer"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindProvider, apperrors.KindOf(err))
}

func TestDocumentFromProfile(t *testing.T) {
	doc := documentFromProfile("tenant-a", "cand-1", testProfile())

	assert.Equal(t, []string{"Go", "Postgres"}, doc.Skills)
	assert.InDelta(t, 0.8, doc.AnalysisConfidence, 1e-9)
	assert.ElementsMatch(t, []string{"Initech", "Acme"}, doc.Companies)
	assert.Equal(t, []string{"senior", "backend", "engineer"}, doc.TitleKeywords)
	assert.Equal(t, 8.0, doc.ExperienceYears)
	require.Len(t, doc.WorkHistory, 2)
	assert.Equal(t, 30, doc.WorkHistory[0].Months)
}

func TestDocumentFromProfileDefaultsConfidence(t *testing.T) {
	p := &models.CandidateProfile{
		ID:           "cand-2",
		CurrentTitle: "Data Engineer",
		Skills:       []models.SkillEntry{{Name: "Spark"}},
	}
	doc := documentFromProfile("tenant-a", "cand-2", p)
	assert.Equal(t, 1.0, doc.AnalysisConfidence)
}

func TestCapRunesBoundsLongText(t *testing.T) {
	long := strings.Repeat("é", maxEmbedRunes+100)
	capped := capRunes(long)
	assert.Equal(t, maxEmbedRunes, len([]rune(capped)))

	short := "go engineer"
	assert.Equal(t, short, capRunes(short))
}
