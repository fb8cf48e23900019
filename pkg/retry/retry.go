package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrorClassifier reports whether an error is worth another attempt
type ErrorClassifier func(error) bool

// Options configures Do
type Options struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Classifier      ErrorClassifier
}

// DefaultOptions suits connecting to MongoDB, Redis and Kafka at startup and
// publishing changes from the watcher
func DefaultOptions() Options {
	return Options{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
		Multiplier:      2.0,
		Classifier:      Transient,
	}
}

// Transient treats everything except context cancellation and deadline
// expiry as retryable.
func Transient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// permanentError is returned by Do without further attempts
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, the classifier rejects its error, attempts run
// out or ctx ends. The last error is returned.
func Do(ctx context.Context, opts Options, fn func(context.Context) error) error {
	var lastErr error
	interval := opts.InitialInterval

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if opts.Classifier != nil && !opts.Classifier(err) {
			return err
		}
		if attempt == opts.MaxAttempts {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			interval = next(interval, opts)
		}
	}

	return lastErr
}

func next(interval time.Duration, opts Options) time.Duration {
	n := float64(interval) * opts.Multiplier
	if opts.MaxInterval > 0 && n > float64(opts.MaxInterval) {
		return opts.MaxInterval
	}
	return time.Duration(n)
}

// Backoff returns the wait before the given attempt number
func Backoff(attempt int, opts Options) time.Duration {
	if attempt <= 1 {
		return opts.InitialInterval
	}

	interval := float64(opts.InitialInterval) * math.Pow(opts.Multiplier, float64(attempt-1))
	if opts.MaxInterval > 0 && interval > float64(opts.MaxInterval) {
		return opts.MaxInterval
	}
	return time.Duration(interval)
}
