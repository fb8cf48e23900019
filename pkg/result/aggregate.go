package result

import (
	"cmp"
	"slices"
)

// AggregateTeams folds per-match team rows into ranked standings.
// Teams are ranked by total points; equal totals keep first-seen order.
func AggregateTeams(buckets [][]TeamResult) []TeamStanding {
	index := make(map[string]int)
	standings := make([]TeamStanding, 0)

	for _, bucket := range buckets {
		for _, row := range bucket {
			i, ok := index[row.TeamID]
			if !ok {
				i = len(standings)
				index[row.TeamID] = i
				standings = append(standings, TeamStanding{
					TeamResult: TeamResult{TeamID: row.TeamID, TeamName: row.TeamName},
				})
			}

			acc := &standings[i]
			acc.KillNum += row.KillNum
			acc.Damage += row.Damage
			acc.PlacePoint += row.PlacePoint
			acc.TotalPoint += row.TotalPoint
			acc.WWCD += row.WWCD
			acc.MatchesPlayed++
		}
	}

	slices.SortStableFunc(standings, func(a, b TeamStanding) int {
		return cmp.Compare(b.TotalPoint, a.TotalPoint)
	})
	for i := range standings {
		standings[i].CRank = i + 1
	}
	return standings
}

// AggregatePlayers folds per-match player rows into ranked standings.
// Players are keyed by team name and in-game name, and ranked by kills then damage.
func AggregatePlayers(buckets [][]PlayerResult) []PlayerStanding {
	index := make(map[PlayerKey]int)
	standings := make([]PlayerStanding, 0)

	for _, bucket := range buckets {
		for _, row := range bucket {
			key := row.Key()
			i, ok := index[key]
			if !ok {
				i = len(standings)
				index[key] = i
				standings = append(standings, PlayerStanding{
					PlayerResult: PlayerResult{InGameName: row.InGameName, TeamName: row.TeamName},
				})
			}

			acc := &standings[i]
			acc.KillNum += row.KillNum
			acc.Damage += row.Damage
			acc.Assists += row.Assists
			acc.Heal += row.Heal
			acc.MVP += row.MVP

			// running mean over matches seen so far, before the counter moves
			n := float64(acc.MatchesPlayed)
			acc.AvgSurvivalTime = (acc.AvgSurvivalTime*n + row.AvgSurvivalTime) / (n + 1)
			acc.MatchesPlayed++
		}
	}

	slices.SortStableFunc(standings, func(a, b PlayerStanding) int {
		if c := cmp.Compare(b.KillNum, a.KillNum); c != 0 {
			return c
		}
		return cmp.Compare(b.Damage, a.Damage)
	})
	for i := range standings {
		standings[i].CRank = i + 1
	}
	return standings
}

// Rank sets CRank on the match's own rows, ordered the same way standings are.
func (m *Match) Rank() {
	teamRank := make(map[string]int, len(m.Teams))
	for _, s := range AggregateTeams([][]TeamResult{m.Teams}) {
		teamRank[s.TeamID] = s.CRank
	}
	for i := range m.Teams {
		m.Teams[i].CRank = teamRank[m.Teams[i].TeamID]
	}

	playerRank := make(map[PlayerKey]int, len(m.Players))
	for _, s := range AggregatePlayers([][]PlayerResult{m.Players}) {
		playerRank[s.Key()] = s.CRank
	}
	for i := range m.Players {
		m.Players[i].CRank = playerRank[m.Players[i].Key()]
	}
}
