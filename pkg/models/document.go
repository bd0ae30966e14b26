package models

import (
	"time"
)

// CandidateDocument is a retrieval row: the denormalized candidate fields the
// scoring stage needs, plus the recall scores attached during stage 1.
type CandidateDocument struct {
	CandidateID        string             `json:"candidateId" db:"candidate_id"`
	TenantID           string             `json:"tenantId" db:"tenant_id"`
	VectorScore        float64            `json:"vectorScore" db:"vector_score"`
	TextScore          float64            `json:"textScore" db:"text_score"`
	HybridScore        float64            `json:"hybridScore" db:"hybrid_score"`
	AnalysisConfidence float64            `json:"analysisConfidence" db:"analysis_confidence"`
	FullName           string             `json:"fullName" db:"full_name"`
	CurrentTitle       string             `json:"currentTitle" db:"current_title"`
	Summary            string             `json:"summary,omitempty" db:"summary"`
	Location           string             `json:"location,omitempty" db:"location"`
	Skills             []string           `json:"skills" db:"skills"`
	ExperienceYears    float64            `json:"experienceYears" db:"experience_years"`
	Seniority          string             `json:"seniority" db:"seniority"`
	Companies          []string           `json:"companies" db:"companies"`
	Domains            []string           `json:"domains" db:"domains"`
	Keywords           []string           `json:"keywords" db:"keywords"`
	TitleKeywords      []string           `json:"titleKeywords" db:"title_keywords"`
	UpdatedAt          *time.Time         `json:"updatedAt" db:"updated_at"`
	WorkHistory        []WorkHistoryEntry `json:"workHistory,omitempty"`
}

// WorkHistoryEntry is one position in a candidate's history, ordered oldest
// first. Months is the tenure in that position.
type WorkHistoryEntry struct {
	Title   string `json:"title"`
	Company string `json:"company,omitempty"`
	Months  int    `json:"months,omitempty"`
}
