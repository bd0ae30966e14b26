// Package scoring implements the deterministic ranking signals applied to
// retrieval candidates: skill matching through an alias table and a closed
// transferability graph, seniority ladder alignment, recency buckets,
// company/domain relevance and a rule-based career trajectory classifier,
// combined into a weighted overall score per role type.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/talentmesh/talentmesh/pkg/models"
)

// Recency buckets by profile age.
const (
	recencyFreshMonths = 6
	recencyStaleMonths = 18

	recencyFresh  = 1.0
	recencyNormal = 0.7
	recencyStale  = 0.4
)

// Scorer computes per-candidate signal scores against analyzed JD features.
// It is stateless apart from the weights table and safe for concurrent use.
type Scorer struct {
	weights Weights
	now     func() time.Time
}

// NewScorer builds a scorer over a validated weights table.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights, now: time.Now}
}

// WithClock overrides the time source. Recency tests pin this.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Weights returns the active weights table.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes all signals for one candidate. Missing inputs score the
// neutral 0.5; every value lands in [0,1] and Overall is the weighted sum.
func (s *Scorer) Score(doc *models.CandidateDocument, jd JDFeatures) models.SignalScores {
	scores := models.SignalScores{
		VectorSimilarity:   s.vectorSimilarity(doc),
		SeniorityAlignment: neutralUnless(seniorityAlignment(candidateLevel(doc), jd.TargetSeniority)),
		RecencyBoost:       neutralUnless(s.recencyBoost(doc.UpdatedAt)),
		CompanyRelevance:   neutralUnless(companyRelevance(doc.Companies, doc.Domains, jd.TargetDomains, jd.WantsTopTier)),
		TrajectoryFit:      s.trajectoryFit(doc, jd.RoleType),
	}

	exact, inferred, ok := skillMatch(jd.RequiredSkills, doc.Skills)
	scores.SkillsExact = neutralUnless(exact, ok)
	scores.SkillsInferred = neutralUnless(inferred, ok)

	scores.Overall = s.weights.Apply(scores)
	return scores
}

// vectorSimilarity passes through the stage 1 cosine score. A zero score
// means the vector path never ran for this row, so the signal is missing
// rather than minimal.
func (s *Scorer) vectorSimilarity(doc *models.CandidateDocument) float64 {
	if doc.VectorScore <= 0 {
		return models.NeutralSignal
	}
	return clamp01(doc.VectorScore)
}

func (s *Scorer) recencyBoost(updatedAt *time.Time) (float64, bool) {
	if updatedAt == nil || updatedAt.IsZero() {
		return 0, false
	}
	now := s.now()
	switch {
	case updatedAt.After(now.AddDate(0, -recencyFreshMonths, 0)):
		return recencyFresh, true
	case updatedAt.After(now.AddDate(0, -recencyStaleMonths, 0)):
		return recencyNormal, true
	default:
		return recencyStale, true
	}
}

func (s *Scorer) trajectoryFit(doc *models.CandidateDocument, roleType string) float64 {
	trajectory, ok := ClassifyTrajectory(doc.WorkHistory)
	if !ok {
		return models.NeutralSignal
	}
	return trajectoryFit(trajectory, roleType)
}

// candidateLevel prefers the enriched seniority label, falling back to title
// parsing when enrichment had nothing.
func candidateLevel(doc *models.CandidateDocument) int {
	if level := SeniorityLevel(doc.Seniority); level != LevelUnknown {
		return level
	}
	return TitleLevel(doc.CurrentTitle)
}

// ScoredCandidate pairs a retrieval row with its computed signals.
type ScoredCandidate struct {
	Document models.CandidateDocument
	Scores   models.SignalScores
}

// Rank sorts candidates best-first. Ties on Overall break on exact skill
// match, then recency, then vector similarity, then candidate id so equal
// inputs always produce the same ordering.
func Rank(candidates []ScoredCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Scores.Overall != b.Scores.Overall {
			return a.Scores.Overall > b.Scores.Overall
		}
		if a.Scores.SkillsExact != b.Scores.SkillsExact {
			return a.Scores.SkillsExact > b.Scores.SkillsExact
		}
		if a.Scores.RecencyBoost != b.Scores.RecencyBoost {
			return a.Scores.RecencyBoost > b.Scores.RecencyBoost
		}
		if a.Scores.VectorSimilarity != b.Scores.VectorSimilarity {
			return a.Scores.VectorSimilarity > b.Scores.VectorSimilarity
		}
		return a.Document.CandidateID < b.Document.CandidateID
	})
}

func neutralUnless(value float64, ok bool) float64 {
	if !ok {
		return models.NeutralSignal
	}
	return clamp01(value)
}

// clamp01 bounds a signal to [0,1]. NaN collapses to 0 so malformed inputs
// can never poison an overall score.
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
