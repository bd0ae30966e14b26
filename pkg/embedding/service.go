package embedding

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/talentmesh/talentmesh/pkg/cache"
	"github.com/talentmesh/talentmesh/pkg/embedding/providers"
	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/vectorstore"
)

const (
	defaultLocalEntries = 512

	// maxEmbedRunes caps text sent to providers. Longer inputs are cut
	// before hashing so the hash always covers the text actually embedded.
	maxEmbedRunes = 8192
)

// Storage is the slice of the vector store the upsert and delete flows use.
type Storage interface {
	GetStoredHash(ctx context.Context, tenantID, entityID, chunkType string) (*vectorstore.StoredHash, error)
	UpsertEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error
	UpsertDocument(ctx context.Context, doc *models.CandidateDocument, searchText string) error
	DeleteCandidate(ctx context.Context, tenantID, candidateID string) error
}

// Embedder is the slice of the provider router the service calls. *Router
// satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) (*EmbedResult, error)
	PreferredModelVersion() string
	Dimensions() int
	HealthCheck(ctx context.Context) map[string]error
}

// ServiceConfig tunes the embed service.
type ServiceConfig struct {
	// LocalCacheEntries bounds the in-process query-embedding LRU.
	LocalCacheEntries int
	// CacheTTL overrides the embed namespace TTL in Redis; zero keeps the
	// namespace default.
	CacheTTL time.Duration
}

func (c *ServiceConfig) withDefaults() {
	if c.LocalCacheEntries <= 0 {
		c.LocalCacheEntries = defaultLocalEntries
	}
}

// cachedEmbedding is the value held by both query cache tiers. Provider and
// model record who actually produced the vector, which may differ from the
// chain head after a failover.
type cachedEmbedding struct {
	Vector       []float32 `json:"vector"`
	Provider     string    `json:"provider"`
	ModelVersion string    `json:"modelVersion"`
}

// Service implements the embed endpoints: profile/text upsert with a
// hash-based short-circuit, and query embedding behind a two-tier
// (process LRU, then Redis) cache.
type Service struct {
	cfg     ServiceConfig
	router  Embedder
	store   Storage
	remote  cache.Cache
	local   *lru.Cache[string, cachedEmbedding]
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewService wires the embed service. router and store are required; remote
// may be nil, which disables the Redis tier.
func NewService(cfg ServiceConfig, router Embedder, store Storage, remote cache.Cache, logger observability.Logger, metrics observability.MetricsClient) (*Service, error) {
	if router == nil {
		return nil, apperrors.New(apperrors.KindBadInput, "embedding router is required")
	}
	if store == nil {
		return nil, apperrors.New(apperrors.KindBadInput, "vector storage is required")
	}
	cfg.withDefaults()
	if remote == nil {
		remote = cache.NewNoopCache()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	local, err := lru.New[string, cachedEmbedding](cfg.LocalCacheEntries)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindBadInput, "building local embed cache")
	}

	return &Service{
		cfg:     cfg,
		router:  router,
		store:   store,
		remote:  remote,
		local:   local,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Upsert normalizes the request into canonical text, skips re-embedding when
// the stored hash already matches under the preferred model, and otherwise
// embeds and persists the vector. Profile upserts also refresh the
// denormalized document row, even on the short-circuit path, because fields
// like position tenure can change without changing the searchable text.
func (s *Service) Upsert(ctx context.Context, req models.UpsertRequest) (*models.UpsertResponse, error) {
	text, err := upsertText(&req)
	if err != nil {
		return nil, err
	}
	chunkType, err := chunkTypeOf(req.ChunkType)
	if err != nil {
		return nil, err
	}

	hash := models.TextHash(text)
	log := s.logger.With(map[string]interface{}{
		"tenant_id": req.TenantID,
		"entity_id": req.EntityID,
	})

	started := time.Now()
	stored, err := s.store.GetStoredHash(ctx, req.TenantID, req.EntityID, chunkType)
	if err != nil {
		// The lookup only powers the short-circuit; a failed read falls
		// through to a full re-embed.
		log.Warn("stored hash lookup failed", map[string]interface{}{"error": err.Error()})
	}

	if stored != nil && stored.TextHash == hash && stored.ModelVersion == s.router.PreferredModelVersion() {
		if req.Profile != nil {
			if err := s.upsertDocument(ctx, &req, text); err != nil {
				return nil, err
			}
		}
		s.metrics.RecordCounter("embed_upsert_short_circuit_total", 1, nil)
		s.metrics.RecordOperation("embed_service", "upsert", true, time.Since(started).Seconds(), nil)
		log.Debug("text unchanged, skipping re-embed", map[string]interface{}{
			"text_hash": hash,
			"provider":  stored.Provider,
		})
		return &models.UpsertResponse{
			EntityID:     req.EntityID,
			ModelVersion: stored.ModelVersion,
			Provider:     stored.Provider,
			Dim:          s.router.Dimensions(),
		}, nil
	}

	result, err := s.embed(ctx, text)
	if err != nil {
		s.metrics.RecordOperation("embed_service", "upsert", false, time.Since(started).Seconds(), nil)
		return nil, err
	}

	rec := &models.EmbeddingRecord{
		TenantID:     req.TenantID,
		EntityID:     req.EntityID,
		ChunkType:    chunkType,
		Vector:       result.Vector,
		ModelVersion: result.ModelVersion,
		Provider:     result.Provider,
		TextHash:     hash,
		Metadata:     req.Metadata,
	}
	if err := s.store.UpsertEmbedding(ctx, rec); err != nil {
		s.metrics.RecordOperation("embed_service", "upsert", false, time.Since(started).Seconds(), nil)
		return nil, err
	}
	if req.Profile != nil {
		if err := s.upsertDocument(ctx, &req, text); err != nil {
			s.metrics.RecordOperation("embed_service", "upsert", false, time.Since(started).Seconds(), nil)
			return nil, err
		}
	}

	s.metrics.RecordOperation("embed_service", "upsert", true, time.Since(started).Seconds(), nil)
	log.Info("embedding upserted", map[string]interface{}{
		"chunk_type":    chunkType,
		"provider":      result.Provider,
		"model_version": result.ModelVersion,
		"dim":           len(result.Vector),
	})
	return &models.UpsertResponse{
		EntityID:     req.EntityID,
		ModelVersion: result.ModelVersion,
		Provider:     result.Provider,
		Dim:          len(result.Vector),
	}, nil
}

// QueryEmbed returns the vector for ad-hoc query text. Lookups go local LRU
// first, then Redis; both tiers key on the canonical text hash plus the
// preferred model version so a model rollout naturally invalidates them.
func (s *Service) QueryEmbed(ctx context.Context, req models.QueryEmbedRequest) (*models.QueryEmbedResponse, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "tenantId is required")
	}
	text := capRunes(strings.TrimSpace(req.Text))
	if text == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "text is required")
	}

	key := cache.Key(cache.NamespaceEmbed, req.TenantID, models.TextHash(text), s.router.PreferredModelVersion())

	if entry, ok := s.local.Get(key); ok {
		s.metrics.RecordCounter("embed_cache_hits_total", 1, map[string]string{"tier": "local"})
		return queryResponse(entry), nil
	}
	var entry cachedEmbedding
	if s.remote.Get(ctx, cache.NamespaceEmbed, key, &entry) && len(entry.Vector) == s.router.Dimensions() {
		s.local.Add(key, entry)
		s.metrics.RecordCounter("embed_cache_hits_total", 1, map[string]string{"tier": "redis"})
		return queryResponse(entry), nil
	}
	s.metrics.RecordCounter("embed_cache_misses_total", 1, nil)

	started := time.Now()
	result, err := s.embed(ctx, text)
	s.metrics.RecordOperation("embed_service", "query", err == nil, time.Since(started).Seconds(), nil)
	if err != nil {
		return nil, err
	}

	entry = cachedEmbedding{
		Vector:       result.Vector,
		Provider:     result.Provider,
		ModelVersion: result.ModelVersion,
	}
	s.local.Add(key, entry)
	s.remote.Set(ctx, cache.NamespaceEmbed, key, entry, s.cfg.CacheTTL)

	return queryResponse(entry), nil
}

// embed routes the call and applies the service-side postconditions: the
// vector must match the deployment dimension and is normalized to unit L2
// norm for cosine similarity.
func (s *Service) embed(ctx context.Context, text string) (*EmbedResult, error) {
	result, err := s.router.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(result.Vector) != s.router.Dimensions() {
		return nil, apperrors.Newf(apperrors.KindSchemaMismatch,
			"provider %s returned %d dimensions, deployment expects %d",
			result.Provider, len(result.Vector), s.router.Dimensions())
	}
	result.Vector = providers.Normalize(result.Vector)
	return result, nil
}

func (s *Service) upsertDocument(ctx context.Context, req *models.UpsertRequest, searchText string) error {
	doc := documentFromProfile(req.TenantID, req.EntityID, req.Profile)
	return s.store.UpsertDocument(ctx, doc, searchText)
}

// Delete removes a candidate's embeddings and document row. Deletion is
// always explicit; no pipeline path calls this.
func (s *Service) Delete(ctx context.Context, tenantID, candidateID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return apperrors.New(apperrors.KindBadInput, "tenantId is required")
	}
	if strings.TrimSpace(candidateID) == "" {
		return apperrors.New(apperrors.KindBadInput, "candidateId is required")
	}

	started := time.Now()
	err := s.store.DeleteCandidate(ctx, tenantID, candidateID)
	s.metrics.RecordOperation("embed_service", "delete", err == nil, time.Since(started).Seconds(), nil)
	if err != nil {
		return err
	}
	s.logger.Info("candidate deleted", map[string]interface{}{
		"tenant_id": tenantID,
		"entity_id": candidateID,
	})
	return nil
}

// HealthCheck reports per-provider reachability.
func (s *Service) HealthCheck(ctx context.Context) map[string]error {
	return s.router.HealthCheck(ctx)
}

func queryResponse(entry cachedEmbedding) *models.QueryEmbedResponse {
	return &models.QueryEmbedResponse{
		Vector:       entry.Vector,
		Provider:     entry.Provider,
		ModelVersion: entry.ModelVersion,
	}
}

// upsertText validates the request and produces the canonical text to embed.
func upsertText(req *models.UpsertRequest) (string, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return "", apperrors.New(apperrors.KindBadInput, "tenantId is required")
	}
	if strings.TrimSpace(req.EntityID) == "" {
		return "", apperrors.New(apperrors.KindBadInput, "entityId is required")
	}

	text := strings.TrimSpace(req.Text)
	switch {
	case text != "" && req.Profile != nil:
		return "", apperrors.New(apperrors.KindBadInput, "text and profile are mutually exclusive")
	case text == "" && req.Profile == nil:
		return "", apperrors.New(apperrors.KindBadInput, "one of text or profile is required")
	}

	if req.Profile != nil {
		if id := strings.TrimSpace(req.Profile.ID); id != "" && id != req.EntityID {
			return "", apperrors.New(apperrors.KindBadInput, "profile id does not match entityId")
		}
		if req.Profile.Empty() {
			return "", apperrors.New(apperrors.KindUnprocessable, "profile has no searchable content")
		}
		return capRunes(req.Profile.Searchable()), nil
	}
	return capRunes(text), nil
}

func chunkTypeOf(requested string) (string, error) {
	switch requested {
	case "":
		return models.ChunkTypeProfile, nil
	case models.ChunkTypeProfile, models.ChunkTypeSummary:
		return requested, nil
	default:
		return "", apperrors.Newf(apperrors.KindBadInput, "unknown chunk type %q", requested)
	}
}

func capRunes(text string) string {
	if len(text) <= maxEmbedRunes {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxEmbedRunes {
		return text
	}
	return string(runes[:maxEmbedRunes])
}

// documentFromProfile flattens a profile into the retrieval row hybrid recall
// reads. Analysis confidence is the mean over skills that carry one; explicit
// skills without a confidence count as confirmed.
func documentFromProfile(tenantID, entityID string, p *models.CandidateProfile) *models.CandidateDocument {
	skills := make([]string, 0, len(p.Skills))
	confidence := 1.0
	var confSum float64
	var confCount int
	for _, sk := range p.Skills {
		name := strings.TrimSpace(sk.Name)
		if name == "" {
			continue
		}
		skills = append(skills, name)
		if sk.Confidence != nil {
			confSum += *sk.Confidence
			confCount++
		}
	}
	if confCount > 0 {
		confidence = confSum / float64(confCount)
	}

	companies := cleanList(p.Companies)
	if company := strings.TrimSpace(p.CurrentCompany); company != "" && !containsFold(companies, company) {
		companies = append(companies, company)
	}

	return &models.CandidateDocument{
		CandidateID:        entityID,
		TenantID:           tenantID,
		AnalysisConfidence: confidence,
		FullName:           strings.TrimSpace(p.DisplayName),
		CurrentTitle:       strings.TrimSpace(p.CurrentTitle),
		Summary:            strings.TrimSpace(p.Summary),
		Location:           strings.TrimSpace(p.Location),
		Skills:             skills,
		ExperienceYears:    p.ExperienceYears,
		Seniority:          strings.ToLower(strings.TrimSpace(p.SeniorityLevel)),
		Companies:          companies,
		Domains:            cleanList(p.Domains),
		Keywords:           cleanList(p.Keywords),
		TitleKeywords:      strings.Fields(strings.ToLower(p.CurrentTitle)),
		UpdatedAt:          p.LastUpdatedAt,
		WorkHistory:        p.WorkHistory,
	}
}

func cleanList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			cleaned = append(cleaned, it)
		}
	}
	return cleaned
}

func containsFold(items []string, target string) bool {
	for _, it := range items {
		if strings.EqualFold(it, target) {
			return true
		}
	}
	return false
}
