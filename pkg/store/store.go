package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"standings/pkg/result"
)

const (
	EventsCollection  = "events"
	MatchesCollection = "matches"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("not found")

// Group is a stage bracket inside an event
type Group struct {
	ID   string `bson:"id" json:"id"`
	Name string `bson:"name" json:"name"`
}

// Event is a tournament event and its groups
type Event struct {
	ID     string  `bson:"_id" json:"id"`
	Name   string  `bson:"name" json:"name"`
	Groups []Group `bson:"groups" json:"groups"`
}

// ScheduledMatch is a match header without its result rows
type ScheduledMatch struct {
	ID          string    `bson:"_id" json:"id"`
	EventID     string    `bson:"eventId" json:"eventId"`
	GroupID     string    `bson:"groupId" json:"groupId"`
	MatchNumber int       `bson:"matchNumber" json:"matchNumber"`
	RecordedAt  time.Time `bson:"recordedAt" json:"recordedAt"`
}

// Store is the persistence the standings service reads and writes
type Store interface {
	GetEvent(ctx context.Context, eventID string) (Event, error)
	ListSchedule(ctx context.Context, groupID string) ([]ScheduledMatch, error)
	FindMatches(ctx context.Context, matchIDs []string) ([]result.Match, error)
	UpsertMatch(ctx context.Context, match result.Match) error
}

// MongoStore implements Store on MongoDB
type MongoStore struct {
	events  *mongo.Collection
	matches *mongo.Collection
}

// NewMongoStore uses the events and matches collections of db
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		events:  db.Collection(EventsCollection),
		matches: db.Collection(MatchesCollection),
	}
}

// Matches exposes the matches collection for the change stream watcher
func (s *MongoStore) Matches() *mongo.Collection {
	return s.matches
}

// EnsureIndexes creates the indexes the queries rely on
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.matches.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "groupId", Value: 1}, {Key: "matchNumber", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("group_match_number"),
		},
		{
			Keys:    bson.D{{Key: "eventId", Value: 1}},
			Options: options.Index().SetName("event"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create match indexes: %w", err)
	}
	return nil
}

// EnablePreImages makes the matches collection record pre-images, so a
// change stream can report which group a deleted match belonged to.
// Needs MongoDB 6.0 or later.
func (s *MongoStore) EnablePreImages(ctx context.Context) error {
	err := s.matches.Database().RunCommand(ctx, bson.D{
		{Key: "collMod", Value: s.matches.Name()},
		{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enable pre-images on %s: %w", s.matches.Name(), err)
	}
	return nil
}

func (s *MongoStore) GetEvent(ctx context.Context, eventID string) (Event, error) {
	var ev Event
	err := s.events.FindOne(ctx, bson.M{"_id": eventID}).Decode(&ev)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Event{}, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
		}
		return Event{}, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}
	return ev, nil
}

// ListSchedule returns the group's matches ordered by match number
func (s *MongoStore) ListSchedule(ctx context.Context, groupID string) ([]ScheduledMatch, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "matchNumber", Value: 1}}).
		SetProjection(bson.M{"teams": 0, "players": 0})

	cur, err := s.matches.Find(ctx, bson.M{"groupId": groupID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule for group %s: %w", groupID, err)
	}
	schedule := make([]ScheduledMatch, 0)
	if err := cur.All(ctx, &schedule); err != nil {
		return nil, fmt.Errorf("failed to decode schedule for group %s: %w", groupID, err)
	}
	return schedule, nil
}

// FindMatches returns the requested matches with normalized rows, ordered by
// match number. Unknown ids are skipped.
func (s *MongoStore) FindMatches(ctx context.Context, matchIDs []string) ([]result.Match, error) {
	if len(matchIDs) == 0 {
		return []result.Match{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "matchNumber", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.matches.Find(ctx, bson.M{"_id": bson.M{"$in": matchIDs}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	matches := make([]result.Match, 0, len(matchIDs))
	if err := cur.All(ctx, &matches); err != nil {
		return nil, fmt.Errorf("failed to decode matches: %w", err)
	}
	for i := range matches {
		matches[i].Normalize()
	}
	return matches, nil
}

// UpsertMatch replaces the match document, creating it when missing
func (s *MongoStore) UpsertMatch(ctx context.Context, match result.Match) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.matches.ReplaceOne(ctx, bson.M{"_id": match.ID}, match, opts); err != nil {
		return fmt.Errorf("failed to upsert match %s: %w", match.ID, err)
	}
	return nil
}

// UpsertEvent replaces the event document, creating it when missing
func (s *MongoStore) UpsertEvent(ctx context.Context, ev Event) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.events.ReplaceOne(ctx, bson.M{"_id": ev.ID}, ev, opts); err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", ev.ID, err)
	}
	return nil
}
