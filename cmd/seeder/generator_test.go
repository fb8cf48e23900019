package main

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standings/internal/standings"
)

func TestGeneratedMatchIsValid(t *testing.T) {
	g := newGenerator(42)
	m := g.Match("ev", "g-a", 3, options{Teams: 16, PlayersPerTeam: 4})

	require.NoError(t, standings.Validate(m))
	assert.Len(t, m.Teams, 16)
	assert.Len(t, m.Players, 64)
	assert.Equal(t, 3, m.MatchNumber)

	winners := 0
	for _, team := range m.Teams {
		winners += team.WWCD
		assert.Equal(t, team.KillNum+team.PlacePoint, team.TotalPoint)
	}
	assert.Equal(t, 1, winners)
}

func TestParseOptions(t *testing.T) {
	assert.Equal(t, options{Teams: 16, PlayersPerTeam: 4}, parseOptions(url.Values{}))
	assert.Equal(t, options{Teams: 8, PlayersPerTeam: 2}, parseOptions(url.Values{"teams": {"8"}, "players": {"2"}}))
	assert.Equal(t, options{Teams: 16, PlayersPerTeam: 4}, parseOptions(url.Values{"teams": {"-1"}, "players": {"x"}}))
}
