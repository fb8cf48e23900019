package worker

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"standings/pkg/consumer"
	"standings/pkg/logger"
	"standings/pkg/metrics"
	"standings/pkg/retry"
	"standings/pkg/snapshot"
)

// Job is a group whose standings must be rebuilt, and the message to commit
// once they are
type Job struct {
	GroupID string
	Message consumer.Message
	seq     uint64
}

// Flusher rebuilds the standings of a set of groups
type Flusher interface {
	Flush(ctx context.Context, groupIDs []string) error
}

// Config sizes the pool
type Config struct {
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	Retry         retry.Options
}

// WorkerPool batches jobs per worker and flushes distinct groups together.
// A batch that fails to flush stays buffered and is retried with the next
// one; offsets are committed per partition only up to the oldest message not
// yet flushed.
type WorkerPool struct {
	logger   *logger.Logger
	flusher  Flusher
	consumer consumer.Consumer
	cfg      Config
	inputs   []chan Job
	offsets  *offsetTracker
	commitMu sync.Mutex
	wg       sync.WaitGroup
	closed   bool
	mu       sync.Mutex
}

// NewWorkerPool creates a new WorkerPool instance
func NewWorkerPool(l *logger.Logger, f Flusher, c consumer.Consumer, cfg Config) *WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = retry.DefaultOptions()
	}

	inputs := make([]chan Job, cfg.Workers)
	for i := range inputs {
		inputs[i] = make(chan Job, cfg.BatchSize)
	}
	return &WorkerPool{
		logger:   l.Named("worker"),
		flusher:  f,
		consumer: c,
		cfg:      cfg,
		inputs:   inputs,
		offsets:  newOffsetTracker(),
	}
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	for i := range p.inputs {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Submit hands a job to the worker owning its group. Jobs must be submitted
// in the order their messages were consumed.
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	job.seq = p.offsets.track(job.Message)
	select {
	case p.inputs[p.route(job)] <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) route(job Job) int {
	key := job.GroupID
	if key == "" {
		key = string(job.Message.Key)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.inputs)))
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", zap.Int("worker_id", id))

	buffer := snapshot.NewBuffer(p.cfg.BatchSize)
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	input := p.inputs[id]
	for {
		select {
		case job, ok := <-input:
			if !ok {
				p.flush(context.Background(), buffer)
				return
			}
			metrics.ProjectorMessagesConsumedTotal.Inc()
			if buffer.Add(snapshot.Pending{GroupID: job.GroupID, Message: job.Message, Seq: job.seq}) {
				p.flush(ctx, buffer)
			}

		case <-ticker.C:
			if buffer.ShouldFlush(p.cfg.FlushInterval) {
				p.flush(ctx, buffer)
			}

		case <-ctx.Done():
			// drain what was already handed over, then give up
			p.flush(context.Background(), buffer)
			return
		}
	}
}

func (p *WorkerPool) flush(ctx context.Context, buffer *snapshot.Buffer) {
	batch := buffer.Flush()
	if len(batch) == 0 {
		return
	}

	if groups := snapshot.Groups(batch); len(groups) > 0 {
		start := time.Now()
		err := retry.Do(ctx, p.cfg.Retry, func(ctx context.Context) error {
			return p.flusher.Flush(ctx, groups)
		})
		if err != nil {
			// kept for the next flush; its offsets hold back the partition until then
			buffer.Requeue(batch)
			p.logger.Error("failed to rebuild standings", err,
				zap.Strings("groups", groups),
				zap.Int("buffered", buffer.Size()))
			metrics.ProjectorWriteErrorsTotal.Inc()
			return
		}
		metrics.ProjectorUpsertLatency.Observe(time.Since(start).Seconds())
		metrics.ProjectorSnapshotWritesTotal.Inc()
	}

	seqs := make([]uint64, len(batch))
	for i, item := range batch {
		seqs[i] = item.Seq
	}

	// commits from different workers must not go out of order
	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	msgs := p.offsets.done(seqs...)
	if len(msgs) == 0 {
		p.logger.Debug("commit held back by an earlier batch", zap.Int("pending", p.offsets.pending()))
		return
	}
	if err := p.consumer.Commit(ctx, msgs...); err != nil {
		p.logger.Error("failed to commit offsets", err, zap.Int64("last_offset", msgs[len(msgs)-1].Offset))
	}
}

// Shutdown stops accepting jobs, flushes what is buffered and waits for the workers
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for _, in := range p.inputs {
			close(in)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
