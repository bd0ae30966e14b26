package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/pkg/models"
)

func history(entries ...models.WorkHistoryEntry) []models.WorkHistoryEntry {
	return entries
}

func TestClassifyTrajectoryNeedsTwoPositions(t *testing.T) {
	_, ok := ClassifyTrajectory(nil)
	assert.False(t, ok)

	_, ok = ClassifyTrajectory(history(models.WorkHistoryEntry{Title: "Engineer"}))
	assert.False(t, ok)

	// Blank titles are unusable and do not count as positions.
	_, ok = ClassifyTrajectory(history(
		models.WorkHistoryEntry{Title: "Engineer"},
		models.WorkHistoryEntry{Title: "   "},
	))
	assert.False(t, ok)
}

func TestClassifyTrajectoryDirection(t *testing.T) {
	tests := []struct {
		name   string
		titles []string
		want   string
	}{
		{
			"steady promotions",
			[]string{"Junior Engineer", "Senior Engineer", "Staff Engineer"},
			models.DirectionUpward,
		},
		{
			"step down",
			[]string{"Staff Engineer", "Senior Engineer"},
			models.DirectionDownward,
		},
		{
			"same rung",
			[]string{"Senior Engineer", "Senior Developer"},
			models.DirectionLateral,
		},
		{
			// Counting the two early demotions would net out lateral; only
			// the recent window matters.
			"only recent transitions count",
			[]string{"CTO", "VP of Engineering", "Intern", "Junior Engineer", "Mid-Level Engineer"},
			models.DirectionUpward,
		},
		{
			"unknown levels are skipped",
			[]string{"Junior Engineer", "Software Engineer", "Senior Engineer"},
			models.DirectionUpward,
		},
		{
			"all levels unknown",
			[]string{"Software Engineer", "Backend Developer"},
			models.DirectionLateral,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := make([]models.WorkHistoryEntry, len(tt.titles))
			for i, title := range tt.titles {
				entries[i] = models.WorkHistoryEntry{Title: title, Months: 24}
			}
			trajectory, ok := ClassifyTrajectory(entries)
			require.True(t, ok)
			assert.Equal(t, tt.want, trajectory.Direction)
		})
	}
}

func TestClassifyTrajectoryVelocity(t *testing.T) {
	tests := []struct {
		name   string
		months []int
		want   string
	}{
		{"quick hops", []int{12, 10, 14}, models.VelocityFast},
		{"steady tenure", []int{24, 30}, models.VelocityNormal},
		{"long stays", []int{48, 60}, models.VelocitySlow},
		{"no tenure data falls back to normal", []int{0, 0}, models.VelocityNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := make([]models.WorkHistoryEntry, len(tt.months))
			for i, m := range tt.months {
				entries[i] = models.WorkHistoryEntry{Title: "Senior Engineer", Months: m}
			}
			trajectory, ok := ClassifyTrajectory(entries)
			require.True(t, ok)
			assert.Equal(t, tt.want, trajectory.Velocity)
		})
	}
}

func TestClassifyTrajectoryType(t *testing.T) {
	tests := []struct {
		name   string
		titles []string
		want   string
	}{
		{
			"into management",
			[]string{"Senior Engineer", "Engineering Manager"},
			models.TrajectoryLeadershipTrack,
		},
		{
			"family change",
			[]string{"Software Engineer", "Data Scientist"},
			models.TrajectoryCareerPivot,
		},
		{
			"promotion in family",
			[]string{"Junior Engineer", "Senior Engineer"},
			models.TrajectoryTechnicalGrowth,
		},
		{
			"sideways move",
			[]string{"Senior Engineer", "Senior Developer"},
			models.TrajectoryLateralMove,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := make([]models.WorkHistoryEntry, len(tt.titles))
			for i, title := range tt.titles {
				entries[i] = models.WorkHistoryEntry{Title: title, Months: 24}
			}
			trajectory, ok := ClassifyTrajectory(entries)
			require.True(t, ok)
			assert.Equal(t, tt.want, trajectory.Type)
		})
	}
}

func TestTrajectoryFit(t *testing.T) {
	upwardTechnical := models.Trajectory{
		Direction: models.DirectionUpward,
		Velocity:  models.VelocityNormal,
		Type:      models.TrajectoryTechnicalGrowth,
	}
	assert.Equal(t, 1.0, trajectoryFit(upwardTechnical, models.RoleTypeIC))
	assert.Equal(t, 0.9, trajectoryFit(upwardTechnical, models.RoleTypeManager))

	leadership := models.Trajectory{
		Direction: models.DirectionUpward,
		Velocity:  models.VelocityFast,
		Type:      models.TrajectoryLeadershipTrack,
	}
	assert.Equal(t, 1.0, trajectoryFit(leadership, models.RoleTypeManager))

	downwardSlow := models.Trajectory{
		Direction: models.DirectionDownward,
		Velocity:  models.VelocitySlow,
		Type:      models.TrajectoryCareerPivot,
	}
	assert.InDelta(t, 0.1, trajectoryFit(downwardSlow, models.RoleTypeIC), 1e-9)

	// Fit always lands inside the unit interval.
	for _, direction := range []string{models.DirectionUpward, models.DirectionLateral, models.DirectionDownward} {
		for _, velocity := range []string{models.VelocityFast, models.VelocityNormal, models.VelocitySlow} {
			fit := trajectoryFit(models.Trajectory{Direction: direction, Velocity: velocity}, models.RoleTypeIC)
			assert.GreaterOrEqual(t, fit, 0.0)
			assert.LessOrEqual(t, fit, 1.0)
		}
	}
}
