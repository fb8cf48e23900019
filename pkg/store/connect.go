package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"standings/pkg/logger"
	"standings/pkg/retry"
)

// Connect opens a MongoDB client and waits until the primary answers a ping,
// retrying with backoff while the server is unreachable.
func Connect(ctx context.Context, uri string, timeout time.Duration, l *logger.Logger) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongodb client: %w", err)
	}

	attempt := 0
	err = retry.Do(ctx, retry.DefaultOptions(), func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
			l.Warn("mongodb not reachable yet", zap.Int("attempt", attempt), zap.Error(err))
			// a ping timeout is worth another attempt here
			if ctx.Err() == nil {
				return fmt.Errorf("ping: %s", err.Error())
			}
			return err
		}
		return nil
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to reach mongodb: %w", err)
	}
	return client, nil
}
