package models

// RerankDoc is one entry in a rerank docset: the candidate id plus the
// minimal rationale input (title, skills, summary fragments) shown to the
// model. HybridScore seeds fallback scores when every provider fails; it is
// excluded from the docset hash so volatile recall scores cannot split the
// cache.
type RerankDoc struct {
	CandidateID    string  `json:"candidateId"`
	RationaleInput string  `json:"rationaleInput"`
	HybridScore    float64 `json:"hybridScore,omitempty"`
}

// RerankRequest is the body of POST /rerank.
type RerankRequest struct {
	TenantID string      `json:"tenantId,omitempty"`
	JDText   string      `json:"jdText"`
	Docset   []RerankDoc `json:"docset"`
	Model    string      `json:"model,omitempty"`
}

// RerankResult is one reordered entry. Output is a bijection over the input
// docset; Score is in [0,1].
type RerankResult struct {
	CandidateID string  `json:"candidateId"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason,omitempty"`
}

// RerankResponse is the body returned by POST /rerank.
type RerankResponse struct {
	Results       []RerankResult `json:"results"`
	RerankApplied bool           `json:"rerankApplied"`
	CacheHit      bool           `json:"cacheHit"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}
