package scoring

import (
	"strings"

	"github.com/talentmesh/talentmesh/pkg/models"
)

// directionWindow bounds how many recent transitions drive the direction
// classification; older history says little about where someone is heading.
const directionWindow = 3

// Velocity thresholds in average months per held position.
const (
	fastTenureMonths = 18
	slowTenureMonths = 36
)

// managementKeywords mark a title as people-leadership.
var managementKeywords = []string{
	"manager", "head of", "director", "vp ", "vice president", "chief", "cto", "ceo",
}

// roleFamilies group titles into career families for pivot detection. The
// first family whose keyword appears in the title wins.
var roleFamilies = []struct {
	name     string
	keywords []string
}{
	{"engineering", []string{"engineer", "developer", "programmer", "swe", "sre", "architect", "devops"}},
	{"data", []string{"data scientist", "data analyst", "analytics", "machine learning", "ml "}},
	{"design", []string{"designer", "ux", "ui "}},
	{"product", []string{"product manager", "product owner", "pm "}},
	{"sales", []string{"sales", "account executive", "business development"}},
	{"marketing", []string{"marketing", "growth", "seo"}},
	{"operations", []string{"operations", "support", "success"}},
}

// IsManagementTitle reports whether a title carries a people-leadership cue.
func IsManagementTitle(title string) bool {
	padded := " " + strings.ToLower(title) + " "
	for _, kw := range managementKeywords {
		if strings.Contains(padded, kw) {
			return true
		}
	}
	return false
}

// RoleFamily maps a title to its career family, or "" when unrecognized.
func RoleFamily(title string) string {
	padded := " " + strings.ToLower(title) + " "
	for _, family := range roleFamilies {
		for _, kw := range family.keywords {
			if strings.Contains(padded, kw) {
				return family.name
			}
		}
	}
	return ""
}

// ClassifyTrajectory derives direction, velocity and type from a work
// history ordered oldest first. ok is false when the history has fewer than
// two usable positions, which callers treat as a missing signal.
func ClassifyTrajectory(history []models.WorkHistoryEntry) (models.Trajectory, bool) {
	titles := make([]string, 0, len(history))
	months := make([]int, 0, len(history))
	for _, entry := range history {
		if strings.TrimSpace(entry.Title) == "" {
			continue
		}
		titles = append(titles, entry.Title)
		months = append(months, entry.Months)
	}
	if len(titles) < 2 {
		return models.Trajectory{}, false
	}

	return models.Trajectory{
		Direction: classifyDirection(titles),
		Velocity:  classifyVelocity(months),
		Type:      classifyType(titles),
	}, true
}

// classifyDirection nets the level deltas across the most recent known-level
// transitions. Titles without a recognizable band are skipped rather than
// guessed at.
func classifyDirection(titles []string) string {
	levels := make([]int, 0, len(titles))
	for _, title := range titles {
		if level := TitleLevel(title); level != LevelUnknown {
			levels = append(levels, level)
		}
	}
	if len(levels) < 2 {
		return models.DirectionLateral
	}

	transitions := len(levels) - 1
	if transitions > directionWindow {
		levels = levels[len(levels)-directionWindow-1:]
		transitions = directionWindow
	}

	net := 0
	for i := 1; i < len(levels); i++ {
		switch {
		case levels[i] > levels[i-1]:
			net++
		case levels[i] < levels[i-1]:
			net--
		}
	}

	switch {
	case net > 0:
		return models.DirectionUpward
	case net < 0:
		return models.DirectionDownward
	default:
		return models.DirectionLateral
	}
}

// classifyVelocity averages tenure across positions that report it. No
// tenure data at all falls back to normal.
func classifyVelocity(months []int) string {
	var total, counted int
	for _, m := range months {
		if m > 0 {
			total += m
			counted++
		}
	}
	if counted == 0 {
		return models.VelocityNormal
	}
	return VelocityForTenure(float64(total) / float64(counted))
}

// VelocityForTenure buckets an average tenure in months.
func VelocityForTenure(avgMonths float64) string {
	switch {
	case avgMonths < fastTenureMonths:
		return models.VelocityFast
	case avgMonths > slowTenureMonths:
		return models.VelocitySlow
	default:
		return models.VelocityNormal
	}
}

// classifyType applies keyword heuristics over the title sequence, checked
// from strongest evidence down: a move into management beats everything, a
// change of role family beats level progression.
func classifyType(titles []string) string {
	latest := titles[len(titles)-1]
	previous := titles[:len(titles)-1]

	if IsManagementTitle(latest) {
		return models.TrajectoryLeadershipTrack
	}

	latestFamily := RoleFamily(latest)
	prevFamily := RoleFamily(previous[len(previous)-1])
	if latestFamily != "" && prevFamily != "" && latestFamily != prevFamily {
		return models.TrajectoryCareerPivot
	}

	if classifyDirection(titles) == models.DirectionUpward {
		return models.TrajectoryTechnicalGrowth
	}
	return models.TrajectoryLateralMove
}

// trajectoryFit scores how well a classified trajectory suits the role being
// hired for. Upward motion is the base; velocity nudges it; a track that
// matches the role type (technical growth for ICs, leadership for managers)
// earns the final adjustment.
func trajectoryFit(trajectory models.Trajectory, roleType string) float64 {
	var score float64
	switch trajectory.Direction {
	case models.DirectionUpward:
		score = 0.9
	case models.DirectionLateral:
		score = 0.6
	default:
		score = 0.3
	}

	switch trajectory.Velocity {
	case models.VelocityFast:
		score += 0.1
	case models.VelocitySlow:
		score -= 0.1
	}

	switch {
	case roleType == models.RoleTypeIC && trajectory.Type == models.TrajectoryTechnicalGrowth:
		score += 0.1
	case roleType == models.RoleTypeManager && trajectory.Type == models.TrajectoryLeadershipTrack:
		score += 0.1
	case trajectory.Type == models.TrajectoryCareerPivot:
		score -= 0.1
	}

	return clamp01(score)
}
