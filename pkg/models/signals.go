package models

// NeutralSignal is the score a signal receives when its underlying input is
// missing. Missing data never excludes a candidate.
const NeutralSignal = 0.5

// Signal names, used for weights tables and rationale text.
const (
	SignalVectorSimilarity   = "vectorSimilarity"
	SignalSkillsExact        = "skillsExact"
	SignalSkillsInferred     = "skillsInferred"
	SignalSeniorityAlignment = "seniorityAlignment"
	SignalRecencyBoost       = "recencyBoost"
	SignalCompanyRelevance   = "companyRelevance"
	SignalTrajectoryFit      = "trajectoryFit"
)

// SignalScores holds the eight ranking signals, each clamped to [0,1].
// Overall is the weighted sum under the active weights version.
type SignalScores struct {
	VectorSimilarity   float64 `json:"vectorSimilarity"`
	SkillsExact        float64 `json:"skillsExact"`
	SkillsInferred     float64 `json:"skillsInferred"`
	SeniorityAlignment float64 `json:"seniorityAlignment"`
	RecencyBoost       float64 `json:"recencyBoost"`
	CompanyRelevance   float64 `json:"companyRelevance"`
	TrajectoryFit      float64 `json:"trajectoryFit"`
	Overall            float64 `json:"overall"`
}

// Components returns the seven weighted signals keyed by name, excluding
// Overall.
func (s SignalScores) Components() map[string]float64 {
	return map[string]float64{
		SignalVectorSimilarity:   s.VectorSimilarity,
		SignalSkillsExact:        s.SkillsExact,
		SignalSkillsInferred:     s.SkillsInferred,
		SignalSeniorityAlignment: s.SeniorityAlignment,
		SignalRecencyBoost:       s.RecencyBoost,
		SignalCompanyRelevance:   s.CompanyRelevance,
		SignalTrajectoryFit:      s.TrajectoryFit,
	}
}
