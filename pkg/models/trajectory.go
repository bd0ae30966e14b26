package models

import (
	"time"
)

// Trajectory directions.
const (
	DirectionUpward   = "upward"
	DirectionLateral  = "lateral"
	DirectionDownward = "downward"
)

// Trajectory velocities.
const (
	VelocityFast   = "fast"
	VelocityNormal = "normal"
	VelocitySlow   = "slow"
)

// Trajectory types.
const (
	TrajectoryTechnicalGrowth = "technical_growth"
	TrajectoryLeadershipTrack = "leadership_track"
	TrajectoryLateralMove     = "lateral_move"
	TrajectoryCareerPivot     = "career_pivot"
)

// Trajectory is the rule-based classification of a work history.
type Trajectory struct {
	Direction string `json:"direction"`
	Velocity  string `json:"velocity"`
	Type      string `json:"type"`
}

// TenureRange bounds a predicted tenure in months.
type TenureRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// TrajectoryPrediction is the ML service's output for one candidate.
type TrajectoryPrediction struct {
	NextRole           string      `json:"nextRole"`
	NextRoleConfidence float64     `json:"nextRoleConfidence"`
	TenureMonths       TenureRange `json:"tenureMonths"`
	Hireability        float64     `json:"hireability"`
	LowConfidence      bool        `json:"lowConfidence"`
	UncertaintyReason  string      `json:"uncertaintyReason,omitempty"`
}

// PredictRequest is the body of POST /trajectory/predict.
type PredictRequest struct {
	TenantID     string   `json:"tenantId,omitempty"`
	CandidateIDs []string `json:"candidateIds"`
}

// PredictResponse maps candidate id to prediction. Missing ids mean the model
// had no answer for them.
type PredictResponse struct {
	Predictions  map[string]*TrajectoryPrediction `json:"predictions"`
	ModelVersion string                           `json:"modelVersion,omitempty"`
}

// TrajectoryAgreement records, per dimension, whether the ML prediction and
// the rule-based classification agreed.
type TrajectoryAgreement struct {
	Direction bool `json:"direction"`
	Velocity  bool `json:"velocity"`
	Type      bool `json:"type"`
}

// ShadowComparisonRecord is one shadow-mode observation. Records are
// append-only and flushed in batches to the structured log.
type ShadowComparisonRecord struct {
	Timestamp    time.Time             `json:"timestamp"`
	CandidateID  string                `json:"candidateId"`
	MLPrediction *TrajectoryPrediction `json:"mlPrediction"`
	RuleBased    Trajectory            `json:"ruleBased"`
	Agreement    TrajectoryAgreement   `json:"agreement"`
}
