package result

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMatches() []Match {
	return []Match{
		{
			ID: "m1", GroupID: "g1", MatchNumber: 1,
			Teams: []TeamResult{
				{TeamID: "a", TotalPoint: 12, KillNum: 8},
				{TeamID: "b", TotalPoint: 4, KillNum: 2},
			},
			Players: []PlayerResult{
				{InGameName: "ace", TeamName: "A", KillNum: 5, AvgSurvivalTime: 100},
				{InGameName: "bolt", TeamName: "B", KillNum: 2, AvgSurvivalTime: 300},
			},
		},
		{
			ID: "m2", GroupID: "g1", MatchNumber: 2,
			Teams: []TeamResult{
				{TeamID: "b", TotalPoint: 15, KillNum: 9},
				{TeamID: "c", TotalPoint: 1},
			},
			Players: []PlayerResult{
				{InGameName: "bolt", TeamName: "B", KillNum: 6, AvgSurvivalTime: 200},
			},
		},
	}
}

func TestBuildCumulative(t *testing.T) {
	out := BuildCumulative(sampleMatches())
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, "m1", first.Match.ID)
	require.Len(t, first.Teams, 2)
	assert.Equal(t, "a", first.Teams[0].TeamID)
	assert.Equal(t, 12, first.Teams[0].TotalPoint)

	second := out[1]
	assert.Equal(t, "m2", second.Match.ID)
	require.Len(t, second.Teams, 3)
	assert.Equal(t, "b", second.Teams[0].TeamID)
	assert.Equal(t, 19, second.Teams[0].TotalPoint)
	assert.Equal(t, 2, second.Teams[0].MatchesPlayed)
	assert.Equal(t, "a", second.Teams[1].TeamID)
	assert.Equal(t, 1, second.Teams[1].MatchesPlayed)

	require.Len(t, second.Players, 2)
	assert.Equal(t, "bolt", second.Players[0].InGameName)
	assert.Equal(t, 8, second.Players[0].KillNum)
	assert.Equal(t, 250.0, second.Players[0].AvgSurvivalTime)
}

func TestBuildCumulativeKeepsCurrentRowsUntouched(t *testing.T) {
	matches := sampleMatches()
	out := BuildCumulative(matches)

	assert.Equal(t, matches[1].Teams, out[1].Match.Teams)
	assert.Equal(t, 15, out[1].Match.Teams[0].TotalPoint)
}

func TestBuildCumulativeEmpty(t *testing.T) {
	out := BuildCumulative(nil)
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestBuildCumulativeLastStepEqualsFullAggregation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("final after-match standings equal aggregating every match", prop.ForAll(
		func(points [][]int) bool {
			buckets := teamBuckets(points, 5)
			matches := make([]Match, len(buckets))
			for i, b := range buckets {
				matches[i] = Match{MatchNumber: i + 1, Teams: b}
			}

			out := BuildCumulative(matches)
			if len(out) != len(matches) {
				return false
			}
			if len(matches) == 0 {
				return true
			}
			want := AggregateTeams(buckets)
			got := out[len(out)-1].Teams
			if len(want) != len(got) {
				return false
			}
			for i := range want {
				if want[i] != got[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.SliceOf(gen.IntRange(0, 30))),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestBuckets(t *testing.T) {
	teams, players := Buckets(sampleMatches())
	require.Len(t, teams, 2)
	require.Len(t, players, 2)
	assert.Len(t, teams[1], 2)
	assert.Len(t, players[1], 1)
}
