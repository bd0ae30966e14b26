package models

// Skill chip sources.
const (
	SkillSourceExplicit = "explicit"
	SkillSourceInferred = "inferred"
)

// SkillChip is a single skill match shown in the rationale.
type SkillChip struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// MatchRationale explains why a candidate ranked where it did.
type MatchRationale struct {
	Strengths    []string     `json:"strengths"`
	Concerns     []string     `json:"concerns"`
	SkillChips   []SkillChip  `json:"skillChips"`
	Breakdown    SignalScores `json:"breakdown"`
	LLMNarrative string       `json:"llmNarrative,omitempty"`
}
