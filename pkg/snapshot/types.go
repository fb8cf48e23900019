package snapshot

import (
	"time"

	"github.com/goccy/go-json"

	"standings/pkg/result"
)

const (
	KindTeam   = "team"
	KindPlayer = "player"
)

// Row is one entity's latest standing in a group
type Row struct {
	GroupID       string    `db:"group_id"`
	Kind          string    `db:"kind"`
	EntityKey     string    `db:"entity_key"`
	Rank          int       `db:"rank"`
	MatchesPlayed int       `db:"matches_played"`
	AfterMatch    string    `db:"after_match"`
	Payload       []byte    `db:"payload"`
	ComputedAt    time.Time `db:"computed_at"`
}

// FromStandings flattens the standings after a match into rows. Players are
// keyed by PlayerEntityKey.
func FromStandings(groupID string, s result.MatchStandings, computedAt time.Time) ([]Row, error) {
	rows := make([]Row, 0, len(s.Teams)+len(s.Players))
	for _, t := range s.Teams {
		payload, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			GroupID:       groupID,
			Kind:          KindTeam,
			EntityKey:     t.TeamID,
			Rank:          t.CRank,
			MatchesPlayed: t.MatchesPlayed,
			AfterMatch:    s.Match.ID,
			Payload:       payload,
			ComputedAt:    computedAt,
		})
	}
	for _, p := range s.Players {
		payload, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		key, err := PlayerEntityKey(p.Key())
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			GroupID:       groupID,
			Kind:          KindPlayer,
			EntityKey:     key,
			Rank:          p.CRank,
			MatchesPlayed: p.MatchesPlayed,
			AfterMatch:    s.Match.ID,
			Payload:       payload,
			ComputedAt:    computedAt,
		})
	}
	return rows, nil
}

// PlayerEntityKey encodes a player identity as a JSON pair, so names holding
// any separator still map to distinct keys
func PlayerEntityKey(k result.PlayerKey) (string, error) {
	data, err := json.Marshal([2]string{k.TeamName, k.InGameName})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r Row) values() []any {
	return []any{r.GroupID, r.Kind, r.EntityKey, r.Rank, r.MatchesPlayed, r.AfterMatch, r.Payload, r.ComputedAt}
}

var columns = []string{"group_id", "kind", "entity_key", "rank", "matches_played", "after_match", "payload", "computed_at"}
