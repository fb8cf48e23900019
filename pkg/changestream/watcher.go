package changestream

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Operations the watcher forwards; anything else on the collection is ignored
var Operations = []string{"insert", "update", "replace", "delete"}

// ResultChange is a write to a recorded match
type ResultChange struct {
	ID          string              `json:"id"`
	Operation   string              `json:"operation"`
	MatchID     string              `json:"matchId"`
	EventID     string              `json:"eventId,omitempty"`
	GroupID     string              `json:"groupId,omitempty"`
	ClusterTime primitive.Timestamp `json:"clusterTime"`
	ResumeToken bson.Raw            `json:"-"`
}

// Watcher defines the interface for monitoring match writes
type Watcher interface {
	// Watch starts monitoring from the given resume token, or from now when
	// the token is nil. Both channels close when the stream ends.
	Watch(ctx context.Context, resumeToken bson.Raw) (<-chan ResultChange, <-chan error)

	// Close gracefully shuts down the watcher
	Close() error
}

// MongoWatcher implements Watcher on a MongoDB change stream
type MongoWatcher struct {
	collection *mongo.Collection

	mu     sync.Mutex
	stream *mongo.ChangeStream
}

// NewMongoWatcher creates a new MongoWatcher on the matches collection
func NewMongoWatcher(coll *mongo.Collection) *MongoWatcher {
	return &MongoWatcher{
		collection: coll,
	}
}

// Pipeline restricts the stream to the forwarded operations and the fields
// a ResultChange needs
func Pipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: Operations}}}}}},
		{{Key: "$project", Value: bson.D{
			{Key: "operationType", Value: 1},
			{Key: "clusterTime", Value: 1},
			{Key: "documentKey", Value: 1},
			{Key: "fullDocument._id", Value: 1},
			{Key: "fullDocument.eventId", Value: 1},
			{Key: "fullDocument.groupId", Value: 1},
			{Key: "fullDocumentBeforeChange.eventId", Value: 1},
			{Key: "fullDocumentBeforeChange.groupId", Value: 1},
		}}},
	}
}

// Watch starts monitoring the change stream
func (w *MongoWatcher) Watch(ctx context.Context, resumeToken bson.Raw) (<-chan ResultChange, <-chan error) {
	changes := make(chan ResultChange)
	errChan := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errChan)

		// pre-images give deletes their group; without them the field is absent
		opts := options.ChangeStream().
			SetFullDocument(options.UpdateLookup).
			SetFullDocumentBeforeChange(options.WhenAvailable)
		if resumeToken != nil {
			opts.SetResumeAfter(resumeToken)
		}

		stream, err := w.collection.Watch(ctx, Pipeline(), opts)
		if err != nil {
			errChan <- fmt.Errorf("failed to open change stream: %w", err)
			return
		}
		w.mu.Lock()
		w.stream = stream
		w.mu.Unlock()
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			change, err := parseChange(stream.Current)
			if err != nil {
				select {
				case errChan <- fmt.Errorf("failed to parse change event: %w", err):
				default:
				}
				continue
			}
			change.ResumeToken = stream.ResumeToken()

			select {
			case changes <- change:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			errChan <- fmt.Errorf("change stream error: %w", err)
		}
	}()

	return changes, errChan
}

func parseChange(raw bson.Raw) (ResultChange, error) {
	var event struct {
		ID            bson.Raw            `bson:"_id"`
		OperationType string              `bson:"operationType"`
		ClusterTime   primitive.Timestamp `bson:"clusterTime"`
		DocumentKey   struct {
			ID any `bson:"_id"`
		} `bson:"documentKey"`
		FullDocument             *matchHeader `bson:"fullDocument"`
		FullDocumentBeforeChange *matchHeader `bson:"fullDocumentBeforeChange"`
	}

	if err := bson.Unmarshal(raw, &event); err != nil {
		return ResultChange{}, err
	}

	change := ResultChange{
		ID:          eventID(event.ID),
		Operation:   event.OperationType,
		MatchID:     documentID(event.DocumentKey.ID),
		ClusterTime: event.ClusterTime,
	}
	if change.MatchID == "" {
		return ResultChange{}, fmt.Errorf("%s event without a document key", event.OperationType)
	}
	// deletes and lookups racing a delete carry no document, only a pre-image
	// when the collection records them
	doc := event.FullDocument
	if doc == nil {
		doc = event.FullDocumentBeforeChange
	}
	if doc != nil {
		change.EventID = doc.EventID
		change.GroupID = doc.GroupID
	}
	return change, nil
}

type matchHeader struct {
	EventID string `bson:"eventId"`
	GroupID string `bson:"groupId"`
}

// eventID renders the resume token's _data string, or its raw form
func eventID(raw bson.Raw) string {
	if raw == nil {
		return ""
	}
	if v, err := raw.LookupErr("_data"); err == nil {
		if s, ok := v.StringValueOK(); ok {
			return s
		}
	}
	return raw.String()
}

func documentID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprintf("%v", id)
	}
}

// Close gracefully shuts down the watcher
func (w *MongoWatcher) Close() error {
	w.mu.Lock()
	stream := w.stream
	w.mu.Unlock()

	if stream != nil {
		return stream.Close(context.Background())
	}
	return nil
}
