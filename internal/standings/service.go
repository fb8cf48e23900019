package standings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"standings/pkg/cache"
	"standings/pkg/logger"
	"standings/pkg/metrics"
	"standings/pkg/result"
	"standings/pkg/store"
)

var (
	// ErrNotFound is returned when an event, group or match does not exist
	ErrNotFound = store.ErrNotFound
	// ErrInvalidResult is returned when a submitted match result is malformed
	ErrInvalidResult = errors.New("invalid match result")
)

// cacheFanout bounds concurrent cache lookups per request
const cacheFanout = 8

// Overall is the aggregate over an arbitrary set of matches
type Overall struct {
	MatchIDs []string                `json:"matchIds"`
	Teams    []result.TeamStanding   `json:"teams"`
	Players  []result.PlayerStanding `json:"players"`
}

// Service reads results through the cache and builds standings from them
type Service struct {
	logger *logger.Logger
	store  store.Store
	cache  *cache.Cache
	Clock  func() time.Time
}

// NewService creates a new standings Service
func NewService(l *logger.Logger, s store.Store, c *cache.Cache) *Service {
	return &Service{
		logger: l.Named("standings"),
		store:  s,
		cache:  c,
		Clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Event returns an event and its groups
func (s *Service) Event(ctx context.Context, eventID string) (store.Event, error) {
	return cache.Remember(ctx, s.cache, cache.ClassEvent, eventID, func(ctx context.Context) (store.Event, error) {
		return s.store.GetEvent(ctx, eventID)
	})
}

// Schedule returns the group's matches ordered by match number
func (s *Service) Schedule(ctx context.Context, groupID string) ([]store.ScheduledMatch, error) {
	return cache.Remember(ctx, s.cache, cache.ClassSchedule, groupID, func(ctx context.Context) ([]store.ScheduledMatch, error) {
		return s.store.ListSchedule(ctx, groupID)
	})
}

// MatchResults returns the requested matches in request order. Duplicate ids
// are collapsed and unknown ids are skipped.
func (s *Service) MatchResults(ctx context.Context, matchIDs []string) ([]result.Match, error) {
	ids := dedupe(matchIDs)
	found := make([]result.Match, len(ids))
	hit := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cacheFanout)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			ok, err := s.cache.Get(gctx, cache.ClassMatch, id, &found[i])
			if err != nil {
				s.logger.Warn("match cache read failed", zap.String("match_id", id), zap.Error(err))
				return nil
			}
			hit[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	var missing []string
	for i, id := range ids {
		if !hit[i] {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		loaded, err := s.store.FindMatches(ctx, missing)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]result.Match, len(loaded))
		for _, m := range loaded {
			byID[m.ID] = m
			if err := s.cache.Set(ctx, cache.ClassMatch, m.ID, m); err != nil {
				s.logger.Warn("match cache write failed", zap.String("match_id", m.ID), zap.Error(err))
			}
		}
		for i, id := range ids {
			if hit[i] {
				continue
			}
			if m, ok := byID[id]; ok {
				found[i] = m
				hit[i] = true
			}
		}
	}

	out := make([]result.Match, 0, len(ids))
	for i := range ids {
		if hit[i] {
			out = append(out, found[i])
		}
	}
	return out, nil
}

// GroupStandings returns, for each match of the group in order, the match and
// the standings after it
func (s *Service) GroupStandings(ctx context.Context, groupID string) ([]result.MatchStandings, error) {
	schedule, err := s.Schedule(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(schedule) == 0 {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}

	ids := make([]string, len(schedule))
	for i, m := range schedule {
		ids[i] = m.ID
	}
	matches, err := s.MatchResults(ctx, ids)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out := result.BuildCumulative(matches)
	metrics.AggregationLatency.WithLabelValues("cumulative").Observe(time.Since(start).Seconds())

	s.logger.Debug("group standings built", zap.String("group_id", groupID), zap.Int("matches", len(matches)))
	return out, nil
}

// Overall aggregates team and player standings across the given matches
func (s *Service) Overall(ctx context.Context, matchIDs []string) (Overall, error) {
	if len(matchIDs) == 0 {
		return Overall{}, fmt.Errorf("%w: at least one match id is required", ErrInvalidResult)
	}
	matches, err := s.MatchResults(ctx, matchIDs)
	if err != nil {
		return Overall{}, err
	}

	start := time.Now()
	teams, players := result.Buckets(matches)
	overall := Overall{
		MatchIDs: make([]string, 0, len(matches)),
		Teams:    result.AggregateTeams(teams),
		Players:  result.AggregatePlayers(players),
	}
	for _, m := range matches {
		overall.MatchIDs = append(overall.MatchIDs, m.ID)
	}
	metrics.AggregationLatency.WithLabelValues("overall").Observe(time.Since(start).Seconds())
	return overall, nil
}

// RecordResult validates, ranks and stores a match result, then drops the
// cache entries that would serve the old result
func (s *Service) RecordResult(ctx context.Context, m result.Match) (result.Match, error) {
	m.Normalize()
	if err := Validate(m); err != nil {
		return result.Match{}, err
	}
	m.Rank()
	if m.RecordedAt.IsZero() {
		m.RecordedAt = s.Clock()
	}

	if err := s.store.UpsertMatch(ctx, m); err != nil {
		return result.Match{}, err
	}
	metrics.ResultsRecordedTotal.Inc()

	s.Invalidate(ctx, m.ID, m.GroupID)
	s.logger.Info("match result recorded",
		zap.String("match_id", m.ID),
		zap.String("group_id", m.GroupID),
		zap.Int("teams", len(m.Teams)),
		zap.Int("players", len(m.Players)))
	return m, nil
}

// Invalidate drops the cached match and its group's schedule
func (s *Service) Invalidate(ctx context.Context, matchID, groupID string) {
	if matchID != "" {
		if err := s.cache.Invalidate(ctx, cache.ClassMatch, matchID); err != nil {
			s.logger.Warn("match cache invalidation failed", zap.String("match_id", matchID), zap.Error(err))
		}
	}
	if groupID != "" {
		if err := s.cache.Invalidate(ctx, cache.ClassSchedule, groupID); err != nil {
			s.logger.Warn("schedule cache invalidation failed", zap.String("group_id", groupID), zap.Error(err))
		}
	}
}

// Validate checks the identity fields of a match result
func Validate(m result.Match) error {
	if m.ID == "" {
		return fmt.Errorf("%w: match id is required", ErrInvalidResult)
	}
	if m.GroupID == "" {
		return fmt.Errorf("%w: group id is required", ErrInvalidResult)
	}
	if m.MatchNumber < 1 {
		return fmt.Errorf("%w: match number must be positive", ErrInvalidResult)
	}

	teams := make(map[string]bool, len(m.Teams))
	for _, t := range m.Teams {
		if t.TeamID == "" {
			return fmt.Errorf("%w: team id is required", ErrInvalidResult)
		}
		if teams[t.TeamID] {
			return fmt.Errorf("%w: team %s listed twice", ErrInvalidResult, t.TeamID)
		}
		teams[t.TeamID] = true
	}

	players := make(map[result.PlayerKey]bool, len(m.Players))
	for _, p := range m.Players {
		if p.InGameName == "" {
			return fmt.Errorf("%w: player in-game name is required", ErrInvalidResult)
		}
		if players[p.Key()] {
			return fmt.Errorf("%w: player %s of %s listed twice", ErrInvalidResult, p.InGameName, p.TeamName)
		}
		players[p.Key()] = true
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
