package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// QueuePrefix is the Redis list prefix of the notification shards.
const QueuePrefix = "jobs:notify:"

const (
	JobText     = "text"
	JobDocument = "document"
)

// Job is one queued notification.
type Job struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Text       string    `json:"text,omitempty"`
	Document   []byte    `json:"document,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Caption    string    `json:"caption,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueName returns the list key of one shard.
func QueueName(shard int) string {
	return fmt.Sprintf("%s%d", QueuePrefix, shard)
}

// shardFor pins every user to one shard so a single worker delivers the
// user's messages in enqueue order.
func shardFor(userID string, shards int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(shards))
}

// Dispatcher enqueues notifications into Redis lists. It satisfies the
// poller's notifier: a successful LPUSH counts as accepted for delivery.
type Dispatcher struct {
	rdb    *redis.Client
	shards int
	now    func() time.Time
}

func NewDispatcher(rdb *redis.Client, shards int) *Dispatcher {
	if shards < 1 {
		shards = 1
	}
	return &Dispatcher{rdb: rdb, shards: shards, now: time.Now}
}

func (d *Dispatcher) NotifyText(ctx context.Context, userID, text string) error {
	return d.enqueue(ctx, Job{Type: JobText, UserID: userID, Text: text})
}

func (d *Dispatcher) NotifyDocument(ctx context.Context, userID string, doc []byte, filename, caption string) error {
	return d.enqueue(ctx, Job{Type: JobDocument, UserID: userID, Document: doc, Filename: filename, Caption: caption})
}

func (d *Dispatcher) enqueue(ctx context.Context, job Job) error {
	job.EnqueuedAt = d.now().UTC()
	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	queue := QueueName(shardFor(job.UserID, d.shards))
	if err := d.rdb.LPush(ctx, queue, encoded).Err(); err != nil {
		return fmt.Errorf("queue: push %s: %w", queue, err)
	}
	return nil
}

// ── Worker pool ──────────────────────────────────────────────────────────────

// Pool runs one BRPOP consumer per shard.
type Pool struct {
	rdb    *redis.Client
	shards int
	worker *NotifyWorker
	wg     sync.WaitGroup
}

func NewPool(rdb *redis.Client, shards int, worker *NotifyWorker) *Pool {
	if shards < 1 {
		shards = 1
	}
	return &Pool{rdb: rdb, shards: shards, worker: worker}
}

// Start launches the consumers; they exit when ctx is cancelled.
// Each goroutine blocks on BRPOP, so an idle pool costs nothing.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.shards; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
	log.Info().Msgf("worker pool started with %d workers", p.shards)
}

// Wait blocks until every consumer has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, shard int) {
	defer p.wg.Done()
	queue := QueueName(shard)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", shard)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := p.rdb.BRPop(ctx, 5*time.Second, queue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					log.Warn().Err(err).Str("queue", queue).Msg("worker: pop failed")
					time.Sleep(time.Second)
				}
				continue
			}
			if len(result) < 2 {
				continue
			}
			p.worker.Process(ctx, result[0], result[1])
		}
	}
}
