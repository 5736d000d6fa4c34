package calllog

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const defaultQueueCapacity = 1024

// Store persists one call record. Implementations should be fast;
// Logger itself provides the fire-and-forget boundary and retry.
type Store interface {
	PersistCallLog(ctx context.Context, rec Record) error
}

// Logger queues records and persists them on a background worker,
// never blocking or erroring the request path (spec.md §7:
// "the call logger must never raise into the response path").
type Logger struct {
	store Store
	queue chan Record
	log   zerolog.Logger
}

// New starts a Logger with its background worker. ctx controls the
// worker's lifetime; cancelling it stops the worker, and records still
// queued at that point are not persisted.
func New(ctx context.Context, store Store, log zerolog.Logger) *Logger {
	l := &Logger{
		store: store,
		queue: make(chan Record, defaultQueueCapacity),
		log:   log,
	}
	go l.run(ctx)
	return l
}

// Log enqueues rec without blocking. If the queue is full the record
// is dropped and logged — backpressure never propagates to the
// caller.
func (l *Logger) Log(rec Record) {
	rec.Truncate()
	select {
	case l.queue <- rec:
	default:
		l.log.Warn().Str("appId", rec.AppID).Str("function", rec.FunctionName).
			Msg("call log queue full, dropping record")
	}
}

func (l *Logger) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-l.queue:
			l.persistWithRetry(ctx, rec)
		}
	}
}

func (l *Logger) persistWithRetry(ctx context.Context, rec Record) {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	b = backoff.WithContext(b, ctx)

	err := backoff.Retry(func() error {
		return l.store.PersistCallLog(ctx, rec)
	}, b)
	if err != nil {
		l.log.Warn().Err(err).Str("appId", rec.AppID).Str("function", rec.FunctionName).
			Msg("best-effort call log persist failed after retries")
	}
}
