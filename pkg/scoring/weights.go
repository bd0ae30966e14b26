package scoring

import (
	"math"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
)

// weightSumTolerance absorbs float drift when validating a weights table.
const weightSumTolerance = 1e-6

// Weights assigns a fraction of the overall score to each signal. Tables are
// versioned so cached results can be invalidated when tuning changes.
type Weights struct {
	Version            string  `json:"version"`
	VectorSimilarity   float64 `json:"vectorSimilarity"`
	SkillsExact        float64 `json:"skillsExact"`
	SkillsInferred     float64 `json:"skillsInferred"`
	SeniorityAlignment float64 `json:"seniorityAlignment"`
	RecencyBoost       float64 `json:"recencyBoost"`
	CompanyRelevance   float64 `json:"companyRelevance"`
	TrajectoryFit      float64 `json:"trajectoryFit"`
}

// ICWeights ranks individual-contributor searches. Hands-on signals carry
// the load.
func ICWeights(version string) Weights {
	return Weights{
		Version:            version,
		VectorSimilarity:   0.30,
		SkillsExact:        0.25,
		SkillsInferred:     0.10,
		SeniorityAlignment: 0.10,
		RecencyBoost:       0.10,
		CompanyRelevance:   0.05,
		TrajectoryFit:      0.10,
	}
}

// ManagerWeights ranks people-leadership searches, shifting weight toward
// seniority, company pedigree and trajectory.
func ManagerWeights(version string) Weights {
	return Weights{
		Version:            version,
		VectorSimilarity:   0.25,
		SkillsExact:        0.20,
		SkillsInferred:     0.10,
		SeniorityAlignment: 0.15,
		RecencyBoost:       0.05,
		CompanyRelevance:   0.10,
		TrajectoryFit:      0.15,
	}
}

// WeightsFor selects the table matching the role type. Anything other than
// an explicit manager classification gets the IC table.
func WeightsFor(roleType, version string) Weights {
	if roleType == models.RoleTypeManager {
		return ManagerWeights(version)
	}
	return ICWeights(version)
}

// Sum totals the signal fractions.
func (w Weights) Sum() float64 {
	return w.VectorSimilarity + w.SkillsExact + w.SkillsInferred +
		w.SeniorityAlignment + w.RecencyBoost + w.CompanyRelevance + w.TrajectoryFit
}

// Validate rejects tables whose fractions do not cover exactly the whole
// score, or that carry a negative weight.
func (w Weights) Validate() error {
	if w.Version == "" {
		return apperrors.New(apperrors.KindBadInput, "weights table requires a version")
	}
	for name, value := range w.components() {
		if value < 0 {
			return apperrors.Newf(apperrors.KindBadInput, "weight %s is negative", name)
		}
	}
	if diff := math.Abs(w.Sum() - 1.0); diff > weightSumTolerance {
		return apperrors.Newf(apperrors.KindBadInput, "weights sum to %.6f, want 1.0", w.Sum())
	}
	return nil
}

func (w Weights) components() map[string]float64 {
	return map[string]float64{
		models.SignalVectorSimilarity:   w.VectorSimilarity,
		models.SignalSkillsExact:        w.SkillsExact,
		models.SignalSkillsInferred:     w.SkillsInferred,
		models.SignalSeniorityAlignment: w.SeniorityAlignment,
		models.SignalRecencyBoost:       w.RecencyBoost,
		models.SignalCompanyRelevance:   w.CompanyRelevance,
		models.SignalTrajectoryFit:      w.TrajectoryFit,
	}
}

// Apply computes the weighted overall score from per-signal values.
func (w Weights) Apply(s models.SignalScores) float64 {
	return clamp01(w.VectorSimilarity*s.VectorSimilarity +
		w.SkillsExact*s.SkillsExact +
		w.SkillsInferred*s.SkillsInferred +
		w.SeniorityAlignment*s.SeniorityAlignment +
		w.RecencyBoost*s.RecencyBoost +
		w.CompanyRelevance*s.CompanyRelevance +
		w.TrajectoryFit*s.TrajectoryFit)
}
