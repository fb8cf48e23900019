package result

import (
	"math"
	"time"
)

// TeamResult is one team's row for a single match
type TeamResult struct {
	TeamID     string  `bson:"teamId" json:"teamId"`
	TeamName   string  `bson:"teamName" json:"teamName"`
	KillNum    int     `bson:"killNum" json:"killNum"`
	Damage     float64 `bson:"damage" json:"damage"`
	PlacePoint int     `bson:"placePoint" json:"placePoint"`
	TotalPoint int     `bson:"totalPoint" json:"totalPoint"`
	WWCD       int     `bson:"wwcd" json:"wwcd"`
	CRank      int     `bson:"cRank" json:"cRank"`
}

// PlayerResult is one player's row for a single match
type PlayerResult struct {
	InGameName      string  `bson:"inGameName" json:"inGameName"`
	TeamName        string  `bson:"teamName" json:"teamName"`
	KillNum         int     `bson:"killNum" json:"killNum"`
	Damage          float64 `bson:"damage" json:"damage"`
	AvgSurvivalTime float64 `bson:"avgSurvivalTime" json:"avgSurvivalTime"`
	Assists         int     `bson:"assists" json:"assists"`
	Heal            float64 `bson:"heal" json:"heal"`
	MVP             int     `bson:"mvp" json:"mvp"`
	CRank           int     `bson:"cRank" json:"cRank"`
}

// TeamStanding is a team's totals across one or more matches
type TeamStanding struct {
	TeamResult    `bson:",inline"`
	MatchesPlayed int `bson:"matchesPlayed" json:"matchesPlayed"`
}

// PlayerStanding is a player's totals across one or more matches
type PlayerStanding struct {
	PlayerResult  `bson:",inline"`
	MatchesPlayed int `bson:"matchesPlayed" json:"matchesPlayed"`
}

// Match is a recorded match with its result rows
type Match struct {
	ID          string         `bson:"_id" json:"id"`
	EventID     string         `bson:"eventId" json:"eventId"`
	GroupID     string         `bson:"groupId" json:"groupId"`
	MatchNumber int            `bson:"matchNumber" json:"matchNumber"`
	Teams       []TeamResult   `bson:"teams" json:"teams"`
	Players     []PlayerResult `bson:"players" json:"players"`
	RecordedAt  time.Time      `bson:"recordedAt" json:"recordedAt"`
}

// MatchStandings pairs a match's own rows with the standings after it was played
type MatchStandings struct {
	Match   Match            `json:"current"`
	Teams   []TeamStanding   `json:"teams"`
	Players []PlayerStanding `json:"players"`
}

// PlayerKey identifies a player across matches.
type PlayerKey struct {
	TeamName   string
	InGameName string
}

// Key returns the identity used when aggregating the row.
func (p PlayerResult) Key() PlayerKey {
	return PlayerKey{TeamName: p.TeamName, InGameName: p.InGameName}
}

// Normalize zeroes float fields that are NaN or infinite.
func (t *TeamResult) Normalize() {
	t.Damage = orZero(t.Damage)
}

// Normalize zeroes float fields that are NaN or infinite.
func (p *PlayerResult) Normalize() {
	p.Damage = orZero(p.Damage)
	p.AvgSurvivalTime = orZero(p.AvgSurvivalTime)
	p.Heal = orZero(p.Heal)
}

// Normalize applies row normalization to every row of the match.
func (m *Match) Normalize() {
	for i := range m.Teams {
		m.Teams[i].Normalize()
	}
	for i := range m.Players {
		m.Players[i].Normalize()
	}
}

func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
