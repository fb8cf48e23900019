package projector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"standings/internal/standings"
	"standings/pkg/consumer"
	"standings/pkg/logger"
	"standings/pkg/parser"
	"standings/pkg/result"
	"standings/pkg/snapshot"
	"standings/pkg/worker"
)

// Service turns result change messages into cache invalidations and
// rebuilt standings snapshots
type Service struct {
	logger     *logger.Logger
	consumer   consumer.Consumer
	workerPool *worker.WorkerPool
	standings  *standings.Service
}

// NewService creates a new projector Service instance
func NewService(
	l *logger.Logger,
	c consumer.Consumer,
	p *worker.WorkerPool,
	s *standings.Service,
) *Service {
	return &Service{
		logger:     l.Named("projector"),
		consumer:   c,
		workerPool: p,
		standings:  s,
	}
}

// Start begins the message consumption and processing loop
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting projector service")

	s.workerPool.Start(ctx)
	msgChan, errChan := s.consumer.Consume(ctx)

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				return s.Shutdown(context.Background())
			}
			if err := s.handleMessage(ctx, msg); err != nil {
				s.logger.Error("failed to handle message", err, zap.Int64("offset", msg.Offset))
			}

		case err := <-errChan:
			if err != nil {
				_ = s.Shutdown(context.Background())
				return fmt.Errorf("consumer error: %w", err)
			}

		case <-ctx.Done():
			return s.Shutdown(context.Background())
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, msg consumer.Message) error {
	change, err := parser.ParseResultChange(msg.Value)
	if err != nil {
		s.logger.Warn("skipping malformed message",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("payload", msg.Value))
		// committed by the pool so it cannot overtake earlier offsets
		return s.workerPool.Submit(ctx, worker.Job{Message: msg})
	}

	// other API nodes and a shared Redis cache may still hold the old entries
	s.standings.Invalidate(ctx, change.MatchID, change.GroupID)

	if change.GroupID == "" {
		s.logger.Debug("change without group, nothing to rebuild",
			zap.String("match_id", change.MatchID),
			zap.String("operation", change.Operation))
	}
	return s.workerPool.Submit(ctx, worker.Job{
		GroupID: change.GroupID,
		Message: msg,
	})
}

// Shutdown stops the service gracefully
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down projector service")

	errPool := s.workerPool.Shutdown(ctx)
	errCons := s.consumer.Close()
	return errors.Join(errPool, errCons)
}

// Rebuilder recomputes group standings and writes them as snapshots. It is
// the worker pool's Flusher.
type Rebuilder struct {
	standings *standings.Service
	writer    snapshot.Writer
	logger    *logger.Logger
	Clock     func() time.Time
}

// NewRebuilder creates a Rebuilder
func NewRebuilder(s *standings.Service, w snapshot.Writer, l *logger.Logger) *Rebuilder {
	return &Rebuilder{
		standings: s,
		writer:    w,
		logger:    l.Named("rebuilder"),
		Clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Flush rebuilds every group and replaces their snapshots in one write. A
// group without matches loses its snapshot.
func (r *Rebuilder) Flush(ctx context.Context, groupIDs []string) error {
	now := r.Clock()
	var rows []snapshot.Row

	for _, groupID := range groupIDs {
		steps, err := r.standings.GroupStandings(ctx, groupID)
		if errors.Is(err, standings.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to build standings for group %s: %w", groupID, err)
		}
		if len(steps) == 0 {
			continue
		}

		groupRows, err := snapshot.FromStandings(groupID, latest(steps), now)
		if err != nil {
			return fmt.Errorf("failed to encode standings for group %s: %w", groupID, err)
		}
		rows = append(rows, groupRows...)
	}

	if err := r.writer.Write(ctx, groupIDs, rows); err != nil {
		return err
	}
	r.logger.Debug("group snapshots rebuilt", zap.Strings("groups", groupIDs), zap.Int("rows", len(rows)))
	return nil
}

func latest(steps []result.MatchStandings) result.MatchStandings {
	return steps[len(steps)-1]
}
