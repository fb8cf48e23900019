package result

// BuildCumulative returns, for every match in order, the match itself and the
// standings over all matches up to and including it.
//
// Matches must already be ordered by match number. Each step re-aggregates
// every bucket seen so far, which is quadratic in the number of matches; groups
// hold a handful of matches so the simple form is kept.
func BuildCumulative(matches []Match) []MatchStandings {
	out := make([]MatchStandings, 0, len(matches))
	teamBuckets := make([][]TeamResult, 0, len(matches))
	playerBuckets := make([][]PlayerResult, 0, len(matches))

	for _, m := range matches {
		teamBuckets = append(teamBuckets, m.Teams)
		playerBuckets = append(playerBuckets, m.Players)

		out = append(out, MatchStandings{
			Match:   m,
			Teams:   AggregateTeams(teamBuckets),
			Players: AggregatePlayers(playerBuckets),
		})
	}
	return out
}

// Buckets splits matches into their team and player row buckets.
func Buckets(matches []Match) ([][]TeamResult, [][]PlayerResult) {
	teams := make([][]TeamResult, 0, len(matches))
	players := make([][]PlayerResult, 0, len(matches))
	for _, m := range matches {
		teams = append(teams, m.Teams)
		players = append(players, m.Players)
	}
	return teams, players
}
