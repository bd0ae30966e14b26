package models

// Role types for the signal weights table.
const (
	RoleTypeIC      = "ic"
	RoleTypeManager = "manager"
)

// ML trajectory status values reported in search meta.
const (
	MLStatusHealthy     = "healthy"
	MLStatusUnavailable = "unavailable"
	MLStatusDisabled    = "disabled"
)

// SearchFilters narrows hybrid recall.
type SearchFilters struct {
	Locations []string `json:"locations,omitempty"`
	Seniority []string `json:"seniority,omitempty"`
}

// SearchRequest is the body of POST /search/hybrid. TenantID is taken from
// the tenant header; a body value must match it when present.
type SearchRequest struct {
	TenantID     string         `json:"tenantId,omitempty"`
	JDText       string         `json:"jdText"`
	Limit        int            `json:"limit,omitempty" validate:"omitempty,min=1,max=50"`
	IncludeDebug bool           `json:"includeDebug,omitempty"`
	Filters      *SearchFilters `json:"filters,omitempty"`
}

// CandidateMatch is one ranked result.
type CandidateMatch struct {
	CandidateID  string                `json:"candidateId"`
	Overall      float64               `json:"overall"`
	SignalScores SignalScores          `json:"signalScores"`
	Rationale    MatchRationale        `json:"rationale"`
	MLTrajectory *TrajectoryPrediction `json:"mlTrajectory,omitempty"`
}

// StageLatencies records per-stage wall time in milliseconds.
type StageLatencies struct {
	EmbedMS   int64 `json:"embedMs"`
	RecallMS  int64 `json:"recallMs"`
	ScoringMS int64 `json:"scoringMs"`
	RerankMS  int64 `json:"rerankMs"`
	TotalMS   int64 `json:"totalMs"`
}

// PipelineMetrics reports how many candidates survived each stage.
// stage1Count >= stage2Count >= stage3Count always holds.
type PipelineMetrics struct {
	Stage1Count int            `json:"stage1Count"`
	Stage2Count int            `json:"stage2Count"`
	Stage3Count int            `json:"stage3Count"`
	Latencies   StageLatencies `json:"latencies"`
}

// SearchMeta describes how the response was produced.
type SearchMeta struct {
	EngineVersion   string          `json:"engineVersion"`
	WeightsVersion  string          `json:"weightsVersion"`
	RerankApplied   bool            `json:"rerankApplied"`
	Degraded        bool            `json:"degraded"`
	CacheHit        bool            `json:"cacheHit"`
	PipelineMetrics PipelineMetrics `json:"pipelineMetrics"`
	MLTrajectory    string          `json:"mlTrajectory"`
}

// SearchResponse is the body returned by POST /search/hybrid. Vector payloads
// are never included.
type SearchResponse struct {
	Results []CandidateMatch `json:"results"`
	Meta    SearchMeta       `json:"meta"`
}
