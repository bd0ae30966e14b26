// Package search implements the three-stage candidate search pipeline:
// hybrid retrieval over the vector store, deterministic signal scoring with
// role-type weights, and LLM reranking of the returned window. Responses are
// cached per tenant and JD fingerprint; ML trajectory predictions are fetched
// in shadow mode and never influence ordering.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/talentmesh/talentmesh/pkg/cache"
	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/scoring"
	"github.com/talentmesh/talentmesh/pkg/vectorstore"
)

const componentName = "search_orchestrator"

// maxLimit caps how many results one request may ask for. Larger windows
// belong in a paging layer, not in the rerank budget.
const maxLimit = 50

// summaryFragmentRunes bounds how much of a candidate summary is shown to
// the reranker per docset entry.
const summaryFragmentRunes = 240

// Pipeline defaults. Stage timeouts follow the per-request latency budget:
// embed 150ms, recall 300ms, scoring 200ms, rerank 350ms, ML 100ms.
const (
	defaultEngineVersion  = "2.3.0"
	defaultPerMethodLimit = 300
	defaultStage2Keep     = 100
	defaultScoringWorkers = 8
	defaultMLTopN         = 50

	defaultEmbedTimeout   = 150 * time.Millisecond
	defaultRecallTimeout  = 300 * time.Millisecond
	defaultScoringTimeout = 200 * time.Millisecond
	defaultRerankTimeout  = 350 * time.Millisecond
	defaultMLTimeout      = 100 * time.Millisecond
)

// EmbedClient obtains the query embedding for a job description.
type EmbedClient interface {
	QueryEmbed(ctx context.Context, tenant models.TenantContext, text string) (*models.QueryEmbedResponse, error)
}

// Recaller runs stage-1 hybrid recall against the vector store.
type Recaller interface {
	HybridSearch(ctx context.Context, q vectorstore.RecallQuery) (*vectorstore.RecallResult, error)
}

// RerankClient reorders a stage-3 docset. Both the rerank HTTP client and an
// in-process rerank service satisfy it.
type RerankClient interface {
	Rerank(ctx context.Context, tenant models.TenantContext, req models.RerankRequest) (*models.RerankResponse, error)
}

// MLClient fetches trajectory predictions for a candidate batch.
type MLClient interface {
	Predict(ctx context.Context, tenantID string, candidateIDs []string) (map[string]*models.TrajectoryPrediction, error)
}

// ShadowSink receives ML-vs-rules trajectory comparisons.
type ShadowSink interface {
	Record(doc *models.CandidateDocument, prediction *models.TrajectoryPrediction)
}

// Config tunes the pipeline.
type Config struct {
	EngineVersion  string
	WeightsVersion string

	PerMethodLimit int
	Stage2Keep     int
	Stage3Keep     int
	ScoringWorkers int

	EmbedTimeout   time.Duration
	RecallTimeout  time.Duration
	ScoringTimeout time.Duration
	RerankTimeout  time.Duration
	MLTimeout      time.Duration

	RerankEnabled bool
	MLEnabled     bool
	MLTopN        int

	// CachePurge disables response cache reads while leaving writes on, so a
	// poisoned entry ages out under fresh traffic.
	CachePurge bool
	// CacheTTL overrides the hybrid namespace TTL when positive.
	CacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.EngineVersion == "" {
		c.EngineVersion = defaultEngineVersion
	}
	if c.PerMethodLimit <= 0 {
		c.PerMethodLimit = defaultPerMethodLimit
	}
	if c.Stage2Keep <= 0 {
		c.Stage2Keep = defaultStage2Keep
	}
	if c.Stage3Keep <= 0 || c.Stage3Keep > maxLimit {
		c.Stage3Keep = maxLimit
	}
	if c.ScoringWorkers <= 0 {
		c.ScoringWorkers = defaultScoringWorkers
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = defaultEmbedTimeout
	}
	if c.RecallTimeout <= 0 {
		c.RecallTimeout = defaultRecallTimeout
	}
	if c.ScoringTimeout <= 0 {
		c.ScoringTimeout = defaultScoringTimeout
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = defaultRerankTimeout
	}
	if c.MLTimeout <= 0 {
		c.MLTimeout = defaultMLTimeout
	}
	if c.MLTopN <= 0 {
		c.MLTopN = defaultMLTopN
	}
	return c
}

// Deps are the orchestrator's collaborators. Embed, Store and Analyzer are
// required; Rerank, ML, Shadow and Cache degrade to disabled when nil.
type Deps struct {
	Embed    EmbedClient
	Store    Recaller
	Rerank   RerankClient
	ML       MLClient
	Shadow   ShadowSink
	Cache    cache.Cache
	Analyzer *scoring.Analyzer
}

// Orchestrator runs the pipeline. It is stateless across requests and safe
// for concurrent use.
type Orchestrator struct {
	cfg      Config
	embed    EmbedClient
	store    Recaller
	rerank   RerankClient
	ml       MLClient
	shadow   ShadowSink
	cache    cache.Cache
	analyzer *scoring.Analyzer
	scorers  map[string]*scoring.Scorer
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// New builds the orchestrator. The weights version participates in cache
// keys, so it must be set.
func New(cfg Config, deps Deps, logger observability.Logger, metrics observability.MetricsClient) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, apperrors.New(apperrors.KindBadInput, "search requires a vector store")
	}
	if deps.Embed == nil {
		return nil, apperrors.New(apperrors.KindBadInput, "search requires an embed client")
	}
	if deps.Analyzer == nil {
		return nil, apperrors.New(apperrors.KindBadInput, "search requires a jd analyzer")
	}
	if strings.TrimSpace(cfg.WeightsVersion) == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "search requires a weights version")
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	store := deps.Cache
	if store == nil {
		store = cache.NewNoopCache()
	}
	cfg = cfg.withDefaults()

	return &Orchestrator{
		cfg:      cfg,
		embed:    deps.Embed,
		store:    deps.Store,
		rerank:   deps.Rerank,
		ml:       deps.ML,
		shadow:   deps.Shadow,
		cache:    store,
		analyzer: deps.Analyzer,
		scorers: map[string]*scoring.Scorer{
			models.RoleTypeIC:      scoring.NewScorer(scoring.ICWeights(cfg.WeightsVersion)),
			models.RoleTypeManager: scoring.NewScorer(scoring.ManagerWeights(cfg.WeightsVersion)),
		},
		logger:  logger.WithPrefix(componentName),
		metrics: metrics,
	}, nil
}

// Search runs the full pipeline for one request.
//
// Stage 1 embeds the JD and recalls candidates over the vector and full-text
// paths. Stage 2 derives JD features, scores every candidate across a bounded
// worker pool while ML predictions for the recall head are fetched in shadow,
// then ranks and keeps the stage-2 window. Stage 3 sends the returned window
// to the reranker; on any rerank failure the stage-2 ordering stands.
func (o *Orchestrator) Search(ctx context.Context, tenant models.TenantContext, req models.SearchRequest) (*models.SearchResponse, error) {
	started := time.Now()

	jdText := strings.TrimSpace(req.JDText)
	if err := validate(tenant, req, jdText); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = o.cfg.Stage3Keep
	}

	reqLog := o.logger.With(tenant.LogFields())
	jdHash := models.JobFingerprint(jdText)
	key := cache.Key(cache.NamespaceHybrid, tenant.TenantID,
		jdHash, o.cfg.WeightsVersion, requestVariant(limit, req.Filters))

	if !o.cfg.CachePurge {
		if cached, ok := o.cachedResponse(ctx, key); ok {
			o.metrics.RecordCounter("search_cache_hits_total", 1, nil)
			reqLog.Info("search served from cache", map[string]interface{}{"jd_hash": jdHash})
			return cached, nil
		}
	}
	o.metrics.RecordCounter("search_cache_misses_total", 1, nil)

	var lat models.StageLatencies

	// Stage 1: query embedding, then fused recall. The two recall paths fan
	// out inside the store; the embedding feeds the vector path, so it runs
	// first under its own budget.
	embedStart := time.Now()
	embedded, err := o.queryEmbed(ctx, tenant, jdText)
	lat.EmbedMS = o.observeStage("embed", embedStart)
	if err != nil {
		if !o.cfg.CachePurge {
			if cached, ok := o.cachedResponse(ctx, key); ok {
				o.metrics.RecordCounter("search_cache_hits_total", 1, nil)
				reqLog.Warn("query embedding unavailable, serving cached response", map[string]interface{}{
					"jd_hash": jdHash,
					"error":   err.Error(),
				})
				return cached, nil
			}
		}
		o.metrics.RecordOperation(componentName, "search", false, time.Since(started).Seconds(), nil)
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "query embedding unavailable")
	}

	recallStart := time.Now()
	recalled, err := o.recall(ctx, tenant, embedded.Vector, jdText, req.Filters)
	lat.RecallMS = o.observeStage("recall", recallStart)
	if err != nil {
		o.metrics.RecordOperation(componentName, "search", false, time.Since(started).Seconds(), nil)
		return nil, err
	}
	pool := o.tenantRows(reqLog, tenant, recalled.Documents)
	stage1 := len(pool)

	// Stage 2: JD features, then signal scoring in parallel with the shadow
	// ML fetch. ML output never reaches the ranking; its only effects are the
	// shadow comparisons and the advisory predictions on the response.
	features := o.analyzer.Analyze(jdText)
	scorer := o.scorerFor(features.RoleType)

	var (
		scored      []scoring.ScoredCandidate
		predictions map[string]*models.TrajectoryPrediction
	)
	mlStatus := models.MLStatusDisabled

	g, gctx := errgroup.WithContext(ctx)
	scoringStart := time.Now()
	g.Go(func() error {
		var scoreErr error
		scored, scoreErr = o.scorePool(gctx, scorer, features, pool)
		lat.ScoringMS = o.observeStage("scoring", scoringStart)
		return scoreErr
	})
	if o.cfg.MLEnabled && o.ml != nil {
		g.Go(func() error {
			predictions, mlStatus = o.shadowPredictions(gctx, tenant, pool)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.metrics.RecordOperation(componentName, "search", false, time.Since(started).Seconds(), nil)
		return nil, err
	}

	scoring.Rank(scored)
	if len(scored) > o.cfg.Stage2Keep {
		scored = scored[:o.cfg.Stage2Keep]
	}
	stage2 := len(scored)
	if req.IncludeDebug {
		o.debugRanking(reqLog, scored)
	}

	kept := scored
	if len(kept) > limit {
		kept = kept[:limit]
	}

	// Stage 3: rerank the returned window. Failures keep the stage-2 order.
	rerankStart := time.Now()
	reasons, stage3, rerankApplied := o.rerankWindow(ctx, tenant, reqLog, jdText, kept)
	lat.RerankMS = o.observeStage("rerank", rerankStart)

	lat.TotalMS = time.Since(started).Milliseconds()

	response := &models.SearchResponse{
		Results: o.assemble(kept, features, reasons, predictions),
		Meta: models.SearchMeta{
			EngineVersion:  o.cfg.EngineVersion,
			WeightsVersion: o.cfg.WeightsVersion,
			RerankApplied:  rerankApplied,
			Degraded:       recalled.Degraded,
			MLTrajectory:   mlStatus,
			PipelineMetrics: models.PipelineMetrics{
				Stage1Count: stage1,
				Stage2Count: stage2,
				Stage3Count: stage3,
				Latencies:   lat,
			},
		},
	}
	o.recordStageCounts(stage1, stage2, stage3)

	// Degraded responses are not cached, so a recovered vector path serves
	// full recall immediately instead of waiting out the TTL.
	if !recalled.Degraded {
		o.cache.Set(ctx, cache.NamespaceHybrid, key, response, o.cfg.CacheTTL)
	}

	o.metrics.RecordOperation(componentName, "search", true, time.Since(started).Seconds(), nil)
	reqLog.Info("search completed", map[string]interface{}{
		"jd_hash":        jdHash,
		"role_type":      features.RoleType,
		"stage1_count":   stage1,
		"stage2_count":   stage2,
		"stage3_count":   stage3,
		"rerank_applied": rerankApplied,
		"degraded":       recalled.Degraded,
		"ml_trajectory":  mlStatus,
		"total_ms":       lat.TotalMS,
	})
	return response, nil
}

func validate(tenant models.TenantContext, req models.SearchRequest, jdText string) error {
	if strings.TrimSpace(tenant.TenantID) == "" {
		return apperrors.New(apperrors.KindUnauthenticated, "tenant identity required")
	}
	if req.TenantID != "" && req.TenantID != tenant.TenantID {
		return apperrors.New(apperrors.KindForbidden, "body tenantId does not match tenant header")
	}
	if jdText == "" {
		return apperrors.New(apperrors.KindBadInput, "jdText is required")
	}
	if req.Limit < 0 || req.Limit > maxLimit {
		return apperrors.Newf(apperrors.KindBadInput, "limit must be between 1 and %d", maxLimit)
	}
	return nil
}

func (o *Orchestrator) cachedResponse(ctx context.Context, key string) (*models.SearchResponse, bool) {
	var cached models.SearchResponse
	if !o.cache.Get(ctx, cache.NamespaceHybrid, key, &cached) {
		return nil, false
	}
	cached.Meta.CacheHit = true
	return &cached, true
}

func (o *Orchestrator) queryEmbed(ctx context.Context, tenant models.TenantContext, jdText string) (*models.QueryEmbedResponse, error) {
	ctx, cancel := withBudget(ctx, o.cfg.EmbedTimeout)
	defer cancel()
	return o.embed.QueryEmbed(ctx, tenant, jdText)
}

func (o *Orchestrator) recall(ctx context.Context, tenant models.TenantContext, vector []float32, jdText string, filters *models.SearchFilters) (*vectorstore.RecallResult, error) {
	ctx, cancel := withBudget(ctx, o.cfg.RecallTimeout)
	defer cancel()
	return o.store.HybridSearch(ctx, vectorstore.RecallQuery{
		Tenant:         tenant,
		QueryVector:    vector,
		QueryText:      jdText,
		Filters:        filters,
		PerMethodLimit: o.cfg.PerMethodLimit,
	})
}

// tenantRows re-checks the tenant predicate row-wise. The store already
// filters; a row slipping through anyway is dropped and counted.
func (o *Orchestrator) tenantRows(log observability.Logger, tenant models.TenantContext, docs []models.CandidateDocument) []models.CandidateDocument {
	if tenant.CrossTenant() {
		return docs
	}
	kept := docs[:0]
	for _, doc := range docs {
		if doc.TenantID == tenant.TenantID {
			kept = append(kept, doc)
		}
	}
	if dropped := len(docs) - len(kept); dropped > 0 {
		log.Warn("dropped recall rows from other tenants", map[string]interface{}{"dropped": dropped})
		o.metrics.RecordCounter("tenant_isolation_drops_total", float64(dropped), nil)
	}
	return kept
}

func (o *Orchestrator) scorerFor(roleType string) *scoring.Scorer {
	if s, ok := o.scorers[roleType]; ok {
		return s
	}
	return o.scorers[models.RoleTypeIC]
}

// scorePool computes signals for every pool candidate across a bounded
// worker pool. Each worker writes only its own index.
func (o *Orchestrator) scorePool(ctx context.Context, scorer *scoring.Scorer, features scoring.JDFeatures, pool []models.CandidateDocument) ([]scoring.ScoredCandidate, error) {
	ctx, cancel := withBudget(ctx, o.cfg.ScoringTimeout)
	defer cancel()

	scored := make([]scoring.ScoredCandidate, len(pool))
	sem := semaphore.NewWeighted(int64(o.cfg.ScoringWorkers))
	g, gctx := errgroup.WithContext(ctx)

	var budgetErr error
	for i := range pool {
		if err := sem.Acquire(gctx, 1); err != nil {
			budgetErr = apperrors.Wrap(err, apperrors.KindTimeout, "scoring budget exhausted")
			break
		}
		i := i
		g.Go(func() error {
			defer sem.Release(1)
			scored[i] = scoring.ScoredCandidate{
				Document: pool[i],
				Scores:   scorer.Score(&pool[i], features),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if budgetErr != nil {
		return nil, budgetErr
	}
	return scored, nil
}

// shadowPredictions fetches ML predictions for the recall head and records
// the shadow comparisons. Failures degrade to an unavailable status; they
// never fail the request.
func (o *Orchestrator) shadowPredictions(ctx context.Context, tenant models.TenantContext, pool []models.CandidateDocument) (map[string]*models.TrajectoryPrediction, string) {
	head := pool
	if len(head) > o.cfg.MLTopN {
		head = head[:o.cfg.MLTopN]
	}
	ids := make([]string, len(head))
	for i := range head {
		ids[i] = head[i].CandidateID
	}

	ctx, cancel := withBudget(ctx, o.cfg.MLTimeout)
	defer cancel()
	predictions, err := o.ml.Predict(ctx, tenant.TenantID, ids)
	if err != nil {
		return nil, models.MLStatusUnavailable
	}
	if o.shadow != nil {
		for i := range head {
			if p := predictions[head[i].CandidateID]; p != nil {
				o.shadow.Record(&head[i], p)
			}
		}
	}
	return predictions, models.MLStatusHealthy
}

// rerankWindow sends the returned window to the reranker and reorders it in
// place by the returned scores, ties keeping their scoring order. Any failure
// or incomplete response leaves the window untouched.
func (o *Orchestrator) rerankWindow(ctx context.Context, tenant models.TenantContext, log observability.Logger, jdText string, kept []scoring.ScoredCandidate) (map[string]string, int, bool) {
	if !o.cfg.RerankEnabled || o.rerank == nil || len(kept) == 0 {
		return nil, 0, false
	}
	window := kept
	if len(window) > o.cfg.Stage3Keep {
		window = kept[:o.cfg.Stage3Keep]
	}

	docset := make([]models.RerankDoc, len(window))
	for i := range window {
		docset[i] = models.RerankDoc{
			CandidateID:    window[i].Document.CandidateID,
			RationaleInput: rationaleInput(&window[i].Document),
			HybridScore:    window[i].Document.HybridScore,
		}
	}

	rctx, cancel := withBudget(ctx, o.cfg.RerankTimeout)
	defer cancel()
	resp, err := o.rerank.Rerank(rctx, tenant, models.RerankRequest{JDText: jdText, Docset: docset})
	if err != nil {
		log.Warn("rerank unavailable, keeping scoring order", map[string]interface{}{"error": err.Error()})
		o.metrics.RecordCounter("rerank_fallbacks_total", 1, nil)
		return nil, 0, false
	}
	if !resp.RerankApplied {
		// The rerank service itself fell back to input order; its fallback
		// scores derive from hybrid recall, not from the signal ranking.
		o.metrics.RecordCounter("rerank_fallbacks_total", 1, nil)
		return nil, 0, false
	}

	rerankScores := make(map[string]float64, len(resp.Results))
	reasons := make(map[string]string, len(resp.Results))
	for _, r := range resp.Results {
		rerankScores[r.CandidateID] = r.Score
		if r.Reason != "" {
			reasons[r.CandidateID] = r.Reason
		}
	}
	for i := range window {
		if _, ok := rerankScores[window[i].Document.CandidateID]; !ok {
			log.Warn("rerank response incomplete, keeping scoring order", map[string]interface{}{
				"missing": window[i].Document.CandidateID,
			})
			return nil, 0, false
		}
	}

	sort.SliceStable(window, func(i, j int) bool {
		return rerankScores[window[i].Document.CandidateID] > rerankScores[window[j].Document.CandidateID]
	})
	return reasons, len(window), true
}

func (o *Orchestrator) assemble(kept []scoring.ScoredCandidate, features scoring.JDFeatures, reasons map[string]string, predictions map[string]*models.TrajectoryPrediction) []models.CandidateMatch {
	results := make([]models.CandidateMatch, 0, len(kept))
	for i := range kept {
		doc := &kept[i].Document
		match := models.CandidateMatch{
			CandidateID:  doc.CandidateID,
			Overall:      kept[i].Scores.Overall,
			SignalScores: kept[i].Scores,
			Rationale:    scoring.BuildRationale(doc, features, kept[i].Scores, reasons[doc.CandidateID]),
		}
		if p := predictions[doc.CandidateID]; p != nil {
			match.MLTrajectory = p
		}
		results = append(results, match)
	}
	return results
}

func (o *Orchestrator) observeStage(stage string, started time.Time) int64 {
	elapsed := time.Since(started)
	o.metrics.RecordTimer("pipeline_stage_duration_seconds", elapsed, map[string]string{"stage": stage})
	return elapsed.Milliseconds()
}

func (o *Orchestrator) recordStageCounts(stage1, stage2, stage3 int) {
	o.metrics.RecordGauge("pipeline_stage_count", float64(stage1), map[string]string{"stage": "stage1"})
	o.metrics.RecordGauge("pipeline_stage_count", float64(stage2), map[string]string{"stage": "stage2"})
	o.metrics.RecordGauge("pipeline_stage_count", float64(stage3), map[string]string{"stage": "stage3"})
}

func (o *Orchestrator) debugRanking(log observability.Logger, scored []scoring.ScoredCandidate) {
	head := scored
	if len(head) > 10 {
		head = head[:10]
	}
	entries := make([]string, 0, len(head))
	for i := range head {
		entries = append(entries, fmt.Sprintf("%s=%.4f", head[i].Document.CandidateID, head[i].Scores.Overall))
	}
	log.Debug("stage2 ranking head", map[string]interface{}{"candidates": strings.Join(entries, " ")})
}

// rationaleInput is the minimal docset text shown to the reranker: title,
// skills, and a bounded summary fragment.
func rationaleInput(doc *models.CandidateDocument) string {
	parts := make([]string, 0, 3)
	if title := strings.TrimSpace(doc.CurrentTitle); title != "" {
		parts = append(parts, title)
	}
	if len(doc.Skills) > 0 {
		parts = append(parts, "skills: "+strings.Join(doc.Skills, ", "))
	}
	if frag := summaryFragment(doc.Summary); frag != "" {
		parts = append(parts, frag)
	}
	return strings.Join(parts, ". ")
}

func summaryFragment(summary string) string {
	summary = strings.TrimSpace(summary)
	runes := []rune(summary)
	if len(runes) <= summaryFragmentRunes {
		return summary
	}
	return string(runes[:summaryFragmentRunes]) + "..."
}

// requestVariant fingerprints the response-shaping request fields so
// differently shaped requests never serve each other's cached bodies.
func requestVariant(limit int, filters *models.SearchFilters) string {
	var locations, seniority []string
	if filters != nil {
		locations = normalizedList(filters.Locations)
		seniority = normalizedList(filters.Seniority)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "limit=%d|loc=%s|sen=%s",
		limit, strings.Join(locations, ","), strings.Join(seniority, ","))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

func normalizedList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func withBudget(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
