package worker

// retry_cron.go
// Background goroutine that periodically moves dead-lettered notifications
// back onto their shard. It is gated by the Telegram circuit breaker so a
// Telegram outage does not bounce jobs between the queue and the DLQ.

import (
	"context"
	"encoding/json"
	"time"

	"kasabot/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redeliveryTickInterval = time.Minute
	redeliveryBatchSize    = 50
	// DLQMaxAge is how long a dead-lettered notification stays eligible.
	DLQMaxAge = 24 * time.Hour
)

type breakerState interface {
	BreakerState() infra.CBState
}

// RedeliveryConfig holds all dependencies for the redelivery goroutine.
type RedeliveryConfig struct {
	RDB     *redis.Client
	Shards  int
	Breaker breakerState
	MaxAge  time.Duration
}

// StartRedeliveryCron launches the redelivery goroutine; it stops with ctx.
func StartRedeliveryCron(ctx context.Context, cfg RedeliveryConfig) {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DLQMaxAge
	}
	go func() {
		ticker := time.NewTicker(redeliveryTickInterval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRedeliveries(ctx, cfg, time.Now())
			}
		}
	}()
}

// processRedeliveries requeues up to a batch of DLQ entries per shard and
// returns how many were requeued. Jobs enqueued more than MaxAge ago are
// discarded.
func processRedeliveries(ctx context.Context, cfg RedeliveryConfig, now time.Time) int {
	// If the breaker is open, skip entirely
	if cfg.Breaker != nil && cfg.Breaker.BreakerState() == infra.CBOpen {
		log.Debug().Msg("retry_cron: telegram circuit breaker is open, skipping tick")
		return 0
	}

	requeued := 0
	for shard := 0; shard < cfg.Shards; shard++ {
		queue := QueueName(shard)
		for i := 0; i < redeliveryBatchSize; i++ {
			// Check before each entry: the breaker may trip mid-batch
			if cfg.Breaker != nil && cfg.Breaker.BreakerState() == infra.CBOpen {
				return requeued
			}
			raw, err := cfg.RDB.RPop(ctx, DLQPrefix+queue).Result()
			if err == redis.Nil {
				break
			}
			if err != nil {
				log.Error().Err(err).Str("queue", queue).Msg("retry_cron: failed to read DLQ")
				break
			}

			var entry DLQEntry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				log.Error().Err(err).Str("queue", queue).Msg("retry_cron: dropping malformed DLQ entry")
				continue
			}
			if now.Sub(entry.Job.EnqueuedAt) > cfg.MaxAge {
				log.Warn().
					Str("user_id", entry.Job.UserID).
					Str("job_type", entry.Job.Type).
					Time("enqueued_at", entry.Job.EnqueuedAt).
					Int("redeliveries", entry.Redeliveries).
					Msg("retry_cron: notification expired, discarded")
				continue
			}

			encoded, err := json.Marshal(entry.Job)
			if err != nil {
				continue
			}
			if err := cfg.RDB.LPush(ctx, entry.OriginalQueue, encoded).Err(); err != nil {
				log.Error().Err(err).Str("queue", entry.OriginalQueue).Msg("retry_cron: requeue failed, entry kept")
				entry.Redeliveries++
				pushDLQ(ctx, cfg.RDB, entry)
				return requeued
			}
			requeued++
		}
	}
	if requeued > 0 {
		log.Info().Int("count", requeued).Msg("retry_cron: dead-lettered notifications requeued")
	}
	return requeued
}
