package watcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"standings/pkg/changestream"
	"standings/pkg/checkpoint"
	"standings/pkg/logger"
	"standings/pkg/metrics"
	"standings/pkg/producer"
	"standings/pkg/retry"
)

// Service forwards match changes from the change stream to Kafka
type Service struct {
	logger     *logger.Logger
	checkpoint checkpoint.Store
	producer   producer.Producer
	watcher    changestream.Watcher
	retryOpts  retry.Options
}

// NewService creates a new Watcher service instance
func NewService(
	l *logger.Logger,
	cp checkpoint.Store,
	p producer.Producer,
	w changestream.Watcher,
) *Service {
	return &Service{
		logger:     l.Named("watcher"),
		checkpoint: cp,
		producer:   p,
		watcher:    w,
		retryOpts:  retry.DefaultOptions(),
	}
}

// Stop closes the change stream and the producer
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("stopping watcher service")

	var errs []error
	if err := s.watcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close watcher: %w", err))
	}
	if err := s.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	return errors.Join(errs...)
}

// Start resumes the stream from the last checkpoint and forwards changes until
// ctx ends or the stream fails
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting watcher service")

	resumeToken, err := s.checkpoint.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load resume token: %w", err)
	}
	if resumeToken == nil {
		s.logger.Info("no checkpoint found, watching from now")
	}

	changes, errChan := s.watcher.Watch(ctx, resumeToken)

	var streamErr error
	for {
		select {
		case change, ok := <-changes:
			if !ok {
				// the stream goroutine reports why it ended before closing
				if errChan != nil {
					for err := range errChan {
						streamErr = err
					}
				}
				if streamErr != nil {
					return fmt.Errorf("watcher error: %w", streamErr)
				}
				return ctx.Err()
			}
			if err := s.processChange(ctx, change); err != nil {
				s.logger.Error("failed to process change", err,
					zap.String("event_id", change.ID),
					zap.String("match_id", change.MatchID))
				return err
			}
			streamErr = nil
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			// undecodable events are reported without ending the stream
			s.logger.Warn("change stream reported an error", zap.Error(err))
			streamErr = err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// processChange publishes a change, then checkpoints its resume token. A
// change is never checkpointed before Kafka has acknowledged it.
func (s *Service) processChange(ctx context.Context, change changestream.ResultChange) error {
	err := retry.Do(ctx, s.retryOpts, func(ctx context.Context) error {
		res := <-s.producer.PublishAsync(ctx, change)
		return res.Error
	})
	if err != nil {
		metrics.WatcherPublishErrorsTotal.Inc()
		return fmt.Errorf("failed to publish change to kafka after retries: %w", err)
	}
	metrics.WatcherChangesCapturedTotal.Inc()

	if change.ResumeToken == nil {
		return nil
	}
	err = retry.Do(ctx, s.retryOpts, func(ctx context.Context) error {
		return s.checkpoint.Save(ctx, change.ResumeToken)
	})
	if err != nil {
		return fmt.Errorf("failed to save resume token after retries: %w", err)
	}
	metrics.WatcherCheckpointSavesTotal.Inc()

	s.logger.Debug("change forwarded",
		zap.String("event_id", change.ID),
		zap.String("operation", change.Operation),
		zap.String("match_id", change.MatchID),
		zap.String("group_id", change.GroupID))
	return nil
}
