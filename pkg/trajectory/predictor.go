package trajectory

import (
	"math"
	"strings"

	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/scoring"
)

// RulesModelVersion labels predictions produced by the rule-based predictor.
const RulesModelVersion = "rules-v1"

// Confidence grows with usable history length and is capped well below
// certainty; a heuristic never deserves more.
const (
	confidenceBase    = 0.35
	confidencePerStep = 0.15
	confidenceCap     = 0.90
	lowConfidenceBar  = 0.60
)

// levelDisplay renders ladder levels for synthesized titles.
var levelDisplay = map[int]string{
	scoring.LevelIntern:    "Intern",
	scoring.LevelJunior:    "Junior",
	scoring.LevelMid:       "Mid-Level",
	scoring.LevelSenior:    "Senior",
	scoring.LevelStaff:     "Staff",
	scoring.LevelPrincipal: "Principal",
}

// familyNouns turn a role family into the noun used in synthesized titles.
var familyNouns = map[string]string{
	"engineering": "Engineering",
	"data":        "Data",
	"design":      "Design",
	"product":     "Product",
	"sales":       "Sales",
	"marketing":   "Marketing",
	"operations":  "Operations",
}

// familyTitles turn a role family into the individual-contributor base title.
var familyTitles = map[string]string{
	"engineering": "Engineer",
	"data":        "Data Scientist",
	"design":      "Product Designer",
	"product":     "Product Manager",
	"sales":       "Account Executive",
	"marketing":   "Marketing Manager",
	"operations":  "Operations Manager",
}

// Predictor derives trajectory predictions from work history alone. It backs
// the trajectory service and the shadow comparison, and shares the seniority
// ladder and velocity buckets with ranking.
type Predictor struct {
	logger observability.Logger
}

// NewPredictor builds a rule-based predictor.
func NewPredictor(logger observability.Logger) *Predictor {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Predictor{logger: logger}
}

// ModelVersion identifies the rule set.
func (p *Predictor) ModelVersion() string { return RulesModelVersion }

// Predict returns a prediction for one candidate, or nil when the history is
// too thin to say anything.
func (p *Predictor) Predict(doc *models.CandidateDocument) *models.TrajectoryPrediction {
	classified, ok := scoring.ClassifyTrajectory(doc.WorkHistory)
	if !ok {
		return nil
	}

	currentTitle := doc.CurrentTitle
	if currentTitle == "" && len(doc.WorkHistory) > 0 {
		currentTitle = doc.WorkHistory[len(doc.WorkHistory)-1].Title
	}
	currentLevel := scoring.TitleLevel(currentTitle)

	prediction := &models.TrajectoryPrediction{
		NextRole:           p.nextRole(currentTitle, currentLevel, classified),
		NextRoleConfidence: p.confidence(doc.WorkHistory, currentLevel),
		TenureMonths:       predictTenure(doc.WorkHistory),
		Hireability:        hireability(classified),
	}
	if prediction.NextRoleConfidence < lowConfidenceBar {
		prediction.LowConfidence = true
		prediction.UncertaintyReason = uncertaintyReason(doc.WorkHistory, currentLevel)
	}
	return prediction
}

// PredictBatch predicts for every candidate that has enough history.
func (p *Predictor) PredictBatch(docs []models.CandidateDocument) map[string]*models.TrajectoryPrediction {
	predictions := make(map[string]*models.TrajectoryPrediction, len(docs))
	for i := range docs {
		if prediction := p.Predict(&docs[i]); prediction != nil {
			predictions[docs[i].CandidateID] = prediction
		}
	}
	p.logger.Debug("trajectory batch predicted", map[string]interface{}{
		"requested": len(docs),
		"predicted": len(predictions),
	})
	return predictions
}

// nextRole synthesizes the likely next title. Upward movers step one rung;
// everyone else is predicted to change employer at the same rung.
func (p *Predictor) nextRole(currentTitle string, currentLevel int, classified models.Trajectory) string {
	if currentLevel == scoring.LevelUnknown {
		return currentTitle
	}

	nextLevel := currentLevel
	if classified.Direction == models.DirectionUpward && nextLevel < scoring.LevelCLevel {
		nextLevel++
	}

	family := scoring.RoleFamily(currentTitle)
	leadership := classified.Type == models.TrajectoryLeadershipTrack || scoring.IsManagementTitle(currentTitle)

	if leadership || nextLevel >= scoring.LevelDirector {
		return managementTitle(nextLevel, family)
	}

	base := familyTitles[family]
	if base == "" {
		base = "Engineer"
	}
	if display := levelDisplay[nextLevel]; display != "" {
		return display + " " + base
	}
	return base
}

func managementTitle(level int, family string) string {
	noun := familyNouns[family]
	if noun == "" {
		noun = "Engineering"
	}
	switch {
	case level >= scoring.LevelCLevel:
		return "VP of " + noun
	case level >= scoring.LevelDirector:
		return "Director of " + noun
	case level >= scoring.LevelPrincipal:
		return "Senior " + noun + " Manager"
	default:
		return noun + " Manager"
	}
}

func (p *Predictor) confidence(history []models.WorkHistoryEntry, currentLevel int) float64 {
	usable := 0
	for _, entry := range history {
		if strings.TrimSpace(entry.Title) != "" {
			usable++
		}
	}
	confidence := confidenceBase + confidencePerStep*math.Min(float64(usable), 4)
	if currentLevel == scoring.LevelUnknown {
		confidence -= 0.2
	}
	return math.Min(math.Max(confidence, 0), confidenceCap)
}

func uncertaintyReason(history []models.WorkHistoryEntry, currentLevel int) string {
	if currentLevel == scoring.LevelUnknown {
		return "current title does not map to a known seniority level"
	}
	if len(history) < 3 {
		return "fewer than three positions on record"
	}
	return "sparse work history"
}

// predictTenure bounds expected tenure in the next role around the average
// observed tenure.
func predictTenure(history []models.WorkHistoryEntry) models.TenureRange {
	var total, counted int
	for _, entry := range history {
		if entry.Months > 0 {
			total += entry.Months
			counted++
		}
	}
	if counted == 0 {
		return models.TenureRange{Min: 12, Max: 36}
	}
	avg := float64(total) / float64(counted)
	return models.TenureRange{
		Min: int(math.Round(avg * 0.75)),
		Max: int(math.Round(avg * 1.5)),
	}
}

// hireability estimates openness to a move: upward momentum and fast hops
// raise it, downward drift and long stays lower it.
func hireability(classified models.Trajectory) float64 {
	var score float64
	switch classified.Direction {
	case models.DirectionUpward:
		score = 0.75
	case models.DirectionLateral:
		score = 0.55
	default:
		score = 0.35
	}
	switch classified.Velocity {
	case models.VelocityFast:
		score += 0.1
	case models.VelocitySlow:
		score -= 0.1
	}
	return math.Min(math.Max(score, 0), 1)
}
