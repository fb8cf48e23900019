package main

import (
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"standings/pkg/result"
)

// placePoints is the placement score table, index 0 being first place
var placePoints = []int{10, 6, 5, 4, 3, 2, 1, 1}

type options struct {
	Teams          int
	PlayersPerTeam int
}

func parseOptions(q url.Values) options {
	opts := options{Teams: 16, PlayersPerTeam: 4}
	if n, err := strconv.Atoi(q.Get("teams")); err == nil && n > 0 && n <= 64 {
		opts.Teams = n
	}
	if n, err := strconv.Atoi(q.Get("players")); err == nil && n > 0 && n <= 8 {
		opts.PlayersPerTeam = n
	}
	return opts
}

// generator produces plausible random match results
type generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newGenerator(seed int64) *generator {
	return &generator{rnd: rand.New(rand.NewSource(seed))}
}

// Match builds a result where team i is "team-i" and placement is a random permutation
func (g *generator) Match(eventID, groupID string, number int, opts options) result.Match {
	g.mu.Lock()
	defer g.mu.Unlock()

	m := result.Match{
		ID:          uuid.NewString(),
		EventID:     eventID,
		GroupID:     groupID,
		MatchNumber: number,
	}

	placement := g.rnd.Perm(opts.Teams)
	for i := 0; i < opts.Teams; i++ {
		team := result.TeamResult{
			TeamID:   fmt.Sprintf("team-%d", i+1),
			TeamName: fmt.Sprintf("Team %d", i+1),
		}
		place := placement[i]
		if place < len(placePoints) {
			team.PlacePoint = placePoints[place]
		}
		if place == 0 {
			team.WWCD = 1
		}

		for p := 0; p < opts.PlayersPerTeam; p++ {
			kills := g.rnd.Intn(6)
			player := result.PlayerResult{
				InGameName:      fmt.Sprintf("t%dp%d", i+1, p+1),
				TeamName:        team.TeamName,
				KillNum:         kills,
				Damage:          float64(kills*100 + g.rnd.Intn(250)),
				AvgSurvivalTime: float64(300 + g.rnd.Intn(1500)),
				Assists:         g.rnd.Intn(4),
				Heal:            float64(g.rnd.Intn(800)),
			}
			team.KillNum += player.KillNum
			team.Damage += player.Damage
			m.Players = append(m.Players, player)
		}
		team.TotalPoint = team.KillNum + team.PlacePoint
		m.Teams = append(m.Teams, team)
	}
	return m
}
