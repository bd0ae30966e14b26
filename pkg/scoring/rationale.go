package scoring

import (
	"fmt"
	"sort"

	"github.com/talentmesh/talentmesh/pkg/models"
)

// Rationale thresholds. Signals above strong become strengths, below weak
// become concerns; neutral-scored signals are omitted since they carry no
// evidence either way.
const (
	strongSignal = 0.75
	weakSignal   = 0.45
)

// signalPhrases render a signal into recruiter-facing language.
var signalPhrases = map[string][2]string{
	models.SignalVectorSimilarity:   {"profile closely matches the role description", "profile is a weak semantic match for the role"},
	models.SignalSkillsExact:        {"has most of the required skills", "missing several required skills"},
	models.SignalSkillsInferred:     {"adjacent experience transfers to the required stack", "little transferable experience for the required stack"},
	models.SignalSeniorityAlignment: {"seniority lines up with the role", "seniority is far from the target level"},
	models.SignalRecencyBoost:       {"profile updated recently", "profile has not been updated in a long time"},
	models.SignalCompanyRelevance:   {"company background fits the target domain", "company background is outside the target domain"},
	models.SignalTrajectoryFit:      {"career trajectory points toward this role", "career trajectory does not support this move"},
}

// BuildRationale assembles the recruiter-facing explanation for one scored
// candidate: strengths and concerns from the extreme signals, skill chips
// for every requirement the candidate covers, and the reranker narrative
// when one exists.
func BuildRationale(doc *models.CandidateDocument, jd JDFeatures, scores models.SignalScores, llmNarrative string) models.MatchRationale {
	rationale := models.MatchRationale{
		Strengths:    []string{},
		Concerns:     []string{},
		SkillChips:   skillChips(jd.RequiredSkills, doc.Skills),
		Breakdown:    scores,
		LLMNarrative: llmNarrative,
	}

	names := make([]string, 0, len(signalPhrases))
	for name := range signalPhrases {
		names = append(names, name)
	}
	sort.Strings(names)

	components := scores.Components()
	for _, name := range names {
		value := components[name]
		phrases := signalPhrases[name]
		switch {
		case value >= strongSignal:
			rationale.Strengths = append(rationale.Strengths, phrases[0])
		case value <= weakSignal:
			rationale.Concerns = append(rationale.Concerns, phrases[1])
		}
	}
	return rationale
}

// skillChips reports, per required skill the candidate covers, whether the
// match was exact or came through the transfer graph and at what confidence.
func skillChips(required, candidateSkills []string) []models.SkillChip {
	reqSet := normalizeSkillSet(required)
	candSet := normalizeSkillSet(candidateSkills)

	names := make([]string, 0, len(reqSet))
	for req := range reqSet {
		names = append(names, req)
	}
	sort.Strings(names)

	chips := make([]models.SkillChip, 0, len(names))
	for _, req := range names {
		if candSet[req] {
			chips = append(chips, models.SkillChip{Name: req, Confidence: 1.0, Source: models.SkillSourceExplicit})
			continue
		}
		best := 0.0
		via := ""
		for cand := range candSet {
			if w := TransferWeight(cand, req); w > best {
				best = w
				via = cand
			}
		}
		if best > 0 {
			chips = append(chips, models.SkillChip{
				Name:       fmt.Sprintf("%s (via %s)", req, via),
				Confidence: best,
				Source:     models.SkillSourceInferred,
			})
		}
	}
	return chips
}
