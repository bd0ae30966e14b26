package scoring

import (
	"strings"
)

// Seniority ladder. Levels are ordered so alignment can be computed as a
// normalized distance; LevelUnknown participates in scoring with a neutral
// contribution and never excludes a candidate.
const (
	LevelUnknown   = -1
	LevelIntern    = 0
	LevelJunior    = 1
	LevelMid       = 2
	LevelSenior    = 3
	LevelStaff     = 4
	LevelPrincipal = 5
	LevelDirector  = 6
	LevelCLevel    = 7
)

// ladderMax is the widest possible distance on the ladder.
const ladderMax = float64(LevelCLevel - LevelIntern)

// levelNames maps canonical level labels to ladder positions. Enrichment
// emits these labels on profiles; title parsing falls back to titleBands.
var levelNames = map[string]int{
	"intern":     LevelIntern,
	"internship": LevelIntern,
	"trainee":    LevelIntern,
	"junior":     LevelJunior,
	"entry":      LevelJunior,
	"associate":  LevelJunior,
	"graduate":   LevelJunior,
	"mid":        LevelMid,
	"mid-level":  LevelMid,
	"midlevel":   LevelMid,
	"senior":     LevelSenior,
	"staff":      LevelStaff,
	"lead":       LevelStaff,
	"manager":    LevelStaff,
	"principal":  LevelPrincipal,
	"director":   LevelDirector,
	"vp":         LevelDirector,
	"head":       LevelDirector,
	"c-level":    LevelCLevel,
	"clevel":     LevelCLevel,
	"executive":  LevelCLevel,
}

// titleBands are checked in order so the most senior cue in a title wins:
// "senior staff engineer" is staff, not senior.
var titleBands = []struct {
	level    int
	keywords []string
}{
	{LevelCLevel, []string{"chief", "cto", "ceo", "coo", "cio", "ciso", "founder"}},
	{LevelDirector, []string{"vp ", "vp,", "vice president", "director", "head of"}},
	{LevelPrincipal, []string{"principal", "distinguished", "fellow"}},
	{LevelStaff, []string{"staff", "lead", "manager"}},
	{LevelSenior, []string{"senior", "sr.", "sr "}},
	{LevelMid, []string{"mid-level", "midlevel", "intermediate"}},
	{LevelJunior, []string{"junior", "jr.", "jr ", "entry-level", "entry level", "associate", "graduate"}},
	{LevelIntern, []string{"intern", "trainee"}},
}

// LevelName returns the canonical label for a ladder position.
func LevelName(level int) string {
	switch level {
	case LevelIntern:
		return "intern"
	case LevelJunior:
		return "junior"
	case LevelMid:
		return "mid"
	case LevelSenior:
		return "senior"
	case LevelStaff:
		return "staff"
	case LevelPrincipal:
		return "principal"
	case LevelDirector:
		return "director"
	case LevelCLevel:
		return "c-level"
	default:
		return "unknown"
	}
}

// SeniorityLevel resolves a canonical seniority label to its ladder
// position. Unrecognized labels map to LevelUnknown.
func SeniorityLevel(label string) int {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return LevelUnknown
	}
	if level, ok := levelNames[label]; ok {
		return level
	}
	return LevelUnknown
}

// TitleLevel extracts a ladder position from a free-form job title. A title
// with no recognized band cue maps to LevelUnknown.
func TitleLevel(title string) int {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return LevelUnknown
	}
	// Pad so that prefix/suffix keywords like "vp " match at the edges.
	padded := " " + title + " "
	for _, band := range titleBands {
		for _, kw := range band.keywords {
			if strings.Contains(padded, kw) {
				return band.level
			}
		}
	}
	return LevelUnknown
}

// seniorityAlignment scores how close a candidate sits to the target level:
// 1 at the same rung, decaying linearly to 0 across the whole ladder. Either
// side unknown yields the neutral score.
func seniorityAlignment(candidateLevel, targetLevel int) (float64, bool) {
	if candidateLevel == LevelUnknown || targetLevel == LevelUnknown {
		return 0, false
	}
	distance := float64(candidateLevel - targetLevel)
	if distance < 0 {
		distance = -distance
	}
	return 1 - distance/ladderMax, true
}
