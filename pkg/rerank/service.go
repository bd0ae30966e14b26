package rerank

import (
	"context"
	"sort"
	"time"

	"github.com/talentmesh/talentmesh/pkg/cache"
	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/resilience"
)

// ServiceConfig tunes the rerank service.
type ServiceConfig struct {
	WeightsVersion  string
	CacheTTL        time.Duration
	MaxDocs         int
	CircuitFailures int
	CircuitCooldown time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.MaxDocs <= 0 {
		c.MaxDocs = 50
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	return c
}

// Service runs the rerank flow: deterministic cache in front, provider chain
// behind, graceful fallback when every provider fails. A response with
// RerankApplied=false tells the caller to keep its own ordering.
type Service struct {
	cfg       ServiceConfig
	providers []Provider
	breakers  *resilience.Registry
	store     cache.Cache
	logger    observability.Logger
	metrics   observability.MetricsClient
}

// cachedRerank is the cache payload. ModelVersion rides along so hits can
// report which model produced the ordering.
type cachedRerank struct {
	Results      []models.RerankResult `json:"results"`
	ModelVersion string                `json:"modelVersion"`
}

// NewService builds the service. Providers are tried in order; each gets its
// own circuit breaker.
func NewService(cfg ServiceConfig, providers []Provider, store cache.Cache, logger observability.Logger, metrics observability.MetricsClient) *Service {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	if store == nil {
		store = cache.NewNoopCache()
	}
	cfg = cfg.withDefaults()

	breakerConfigs := make(map[string]resilience.Config, len(providers))
	for _, p := range providers {
		breakerConfigs[p.Name()] = resilience.Config{
			Name:                p.Name(),
			ConsecutiveFailures: uint32(cfg.CircuitFailures),
			Cooldown:            cfg.CircuitCooldown,
		}
	}

	return &Service{
		cfg:       cfg,
		providers: providers,
		breakers:  resilience.NewRegistry(breakerConfigs, logger, metrics),
		store:     store,
		logger:    logger,
		metrics:   metrics,
	}
}

// Rerank serves one rerank request. The returned response always satisfies
// the bijection invariant over the input docset.
func (s *Service) Rerank(ctx context.Context, tenant models.TenantContext, req models.RerankRequest) (*models.RerankResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	providers, modelVersion, err := s.selectProviders(req.Model)
	if err != nil {
		return nil, err
	}

	jdHash := models.JobFingerprint(req.JDText)
	docsetHash := models.DocsetHash(req.Docset)
	key := cache.Key(cache.NamespaceRerank, tenant.TenantID,
		models.RerankCacheKey(tenant.TenantID, jdHash, docsetHash, modelVersion, s.cfg.WeightsVersion))

	log := s.logger.With(tenant.LogFields())

	var cached cachedRerank
	if s.store.Get(ctx, cache.NamespaceRerank, key, &cached) {
		s.metrics.RecordCounter("rerank_cache_total", 1, map[string]string{"result": "hit"})
		log.Debug("rerank cache hit", map[string]interface{}{"docs": len(req.Docset), "jd_hash": jdHash})
		return &models.RerankResponse{
			Results:       cached.Results,
			RerankApplied: true,
			CacheHit:      true,
			ModelVersion:  cached.ModelVersion,
		}, nil
	}
	s.metrics.RecordCounter("rerank_cache_total", 1, map[string]string{"result": "miss"})

	var lastErr error
	for _, provider := range providers {
		started := time.Now()
		result, err := s.breakers.Get(provider.Name()).Execute(ctx, func() (interface{}, error) {
			return provider.Rerank(ctx, req.JDText, req.Docset)
		})
		s.metrics.RecordOperation("rerank", provider.Name(), err == nil, time.Since(started).Seconds(), nil)
		if err != nil {
			lastErr = err
			log.Warn("rerank provider failed", map[string]interface{}{
				"provider": provider.Name(),
				"docs":     len(req.Docset),
				"error":    err.Error(),
			})
			continue
		}

		results := result.([]models.RerankResult)
		orderResults(results)
		s.store.Set(ctx, cache.NamespaceRerank, key, cachedRerank{
			Results:      results,
			ModelVersion: provider.ModelVersion(),
		}, s.cfg.CacheTTL)

		log.Info("rerank applied", map[string]interface{}{
			"provider": provider.Name(),
			"docs":     len(req.Docset),
			"jd_hash":  jdHash,
		})
		return &models.RerankResponse{
			Results:       results,
			RerankApplied: true,
			ModelVersion:  provider.ModelVersion(),
		}, nil
	}

	// Every provider failed or the chain is empty. Serve the input order so
	// the caller keeps its stage-2 ranking; never cache this.
	s.metrics.RecordCounter("rerank_fallback_total", 1, nil)
	fields := map[string]interface{}{"docs": len(req.Docset)}
	if lastErr != nil {
		fields["error"] = lastErr.Error()
	}
	log.Error("all rerank providers failed, serving input order", fields)

	return &models.RerankResponse{
		Results:       fallbackResults(req.Docset),
		RerankApplied: false,
	}, nil
}

func (s *Service) validate(req models.RerankRequest) error {
	if len(req.Docset) == 0 {
		return apperrors.New(apperrors.KindBadInput, "docset is empty")
	}
	if len(req.Docset) > s.cfg.MaxDocs {
		return apperrors.Newf(apperrors.KindBadInput, "docset exceeds %d docs", s.cfg.MaxDocs)
	}
	if req.JDText == "" {
		return apperrors.New(apperrors.KindBadInput, "jdText is required")
	}
	seen := make(map[string]struct{}, len(req.Docset))
	for _, doc := range req.Docset {
		if doc.CandidateID == "" {
			return apperrors.New(apperrors.KindBadInput, "docset contains an empty candidateId")
		}
		if _, dup := seen[doc.CandidateID]; dup {
			return apperrors.Newf(apperrors.KindBadInput, "duplicate candidateId %q in docset", doc.CandidateID)
		}
		seen[doc.CandidateID] = struct{}{}
	}
	return nil
}

// selectProviders resolves an optional model pin. A pinned model restricts
// the chain to the matching provider so a fallback can never answer with a
// model the caller did not ask for.
func (s *Service) selectProviders(model string) ([]Provider, string, error) {
	if model == "" {
		if len(s.providers) == 0 {
			return nil, "", nil
		}
		return s.providers, s.providers[0].ModelVersion(), nil
	}
	for _, p := range s.providers {
		if p.ModelVersion() == model {
			return []Provider{p}, model, nil
		}
	}
	return nil, "", apperrors.Newf(apperrors.KindBadInput, "unknown rerank model %q", model)
}

// orderResults sorts by score descending with candidate id as the final
// tie-break, so equal inputs serialize identically.
func orderResults(results []models.RerankResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CandidateID < results[j].CandidateID
	})
}

// fallbackResults preserves the input order. Scores come from the hybrid
// score when the caller supplied one, otherwise from the position, so they
// stay descending and inside [0,1].
func fallbackResults(docs []models.RerankDoc) []models.RerankResult {
	results := make([]models.RerankResult, len(docs))
	for i, doc := range docs {
		score := doc.HybridScore
		if score <= 0 {
			score = float64(len(docs)-i) / float64(len(docs))
		}
		if score > 1 {
			score = 1
		}
		results[i] = models.RerankResult{CandidateID: doc.CandidateID, Score: score}
	}
	return results
}

// HealthCheck probes every provider. The service is healthy when at least
// one provider answers; the per-provider map feeds the readiness detail.
func (s *Service) HealthCheck(ctx context.Context) map[string]error {
	health := make(map[string]error, len(s.providers))
	for _, p := range s.providers {
		checker, ok := p.(interface{ HealthCheck(context.Context) error })
		if !ok {
			health[p.Name()] = nil
			continue
		}
		health[p.Name()] = checker.HealthCheck(ctx)
	}
	return health
}

// BreakerStates reports each provider's circuit state for readiness.
func (s *Service) BreakerStates() map[string]string {
	states := make(map[string]string, len(s.providers))
	for _, p := range s.providers {
		states[p.Name()] = s.breakers.Get(p.Name()).State().String()
	}
	return states
}
