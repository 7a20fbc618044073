package worker

// notify_worker.go
// Delivers queued notifications through the direct notifier. Transient
// failures are retried with exponential backoff, then parked in the DLQ;
// a chat that refused the bot is dropped.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kasabot/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// MaxDeliveryAttempts bounds the in-worker retries of one job.
const MaxDeliveryAttempts = 3

// retryBaseDelay is the first backoff step; it doubles per attempt.
var retryBaseDelay = time.Second

// Target is where queued jobs are finally delivered.
type Target interface {
	NotifyText(ctx context.Context, userID, text string) error
	NotifyDocument(ctx context.Context, userID string, doc []byte, filename, caption string) error
}

// NotifyWorker processes jobs popped from a notification shard.
type NotifyWorker struct {
	rdb    *redis.Client
	target Target
}

func NewNotifyWorker(rdb *redis.Client, target Target) *NotifyWorker {
	return &NotifyWorker{rdb: rdb, target: target}
}

// Process delivers one raw job popped from queue.
func (w *NotifyWorker) Process(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("notify_worker: failed to unmarshal job")
		return
	}
	logger := log.With().Str("queue", queue).Str("type", job.Type).Str("user_id", job.UserID).Logger()

	attempts := 0
	err := withRetry(ctx, MaxDeliveryAttempts, func(attempt int) error {
		attempts = attempt + 1
		err := w.deliver(ctx, job)
		if errors.Is(err, infra.ErrChatUnreachable) {
			return permanent{err}
		}
		return err
	})

	var perm permanent
	switch {
	case err == nil:
		logger.Debug().Int("attempts", attempts).Msg("notify_worker: delivered")
	case errors.As(err, &perm):
		logger.Warn().Err(perm.err).Msg("notify_worker: undeliverable job dropped")
	case ctx.Err() != nil:
		// shutting down mid-retry: put the job back for the next run
		if pushErr := w.rdb.RPush(context.Background(), queue, raw).Err(); pushErr != nil {
			logger.Error().Err(pushErr).Msg("notify_worker: failed to requeue on shutdown")
		}
	default:
		SendToDLQ(ctx, w.rdb, queue, job, err.Error(), attempts)
	}
}

func (w *NotifyWorker) deliver(ctx context.Context, job Job) error {
	switch job.Type {
	case JobText:
		return w.target.NotifyText(ctx, job.UserID, job.Text)
	case JobDocument:
		return w.target.NotifyDocument(ctx, job.UserID, job.Document, job.Filename, job.Caption)
	default:
		return permanent{fmt.Errorf("unknown job type %q", job.Type)}
	}
}

// permanent marks an error that retrying cannot fix.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// withRetry runs fn up to maxAttempts times with exponential backoff
// (base, 2*base, ...). A permanent error stops it immediately.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := retryBaseDelay * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		err := fn(i)
		if err == nil {
			return nil
		}
		lastErr = err
		var perm permanent
		if errors.As(err, &perm) {
			return err
		}
	}
	return lastErr
}
