// Package notify turns stored notifications into emails. Every dispatch is
// recorded in the mail outbox so failures stay visible and retryable, and
// nothing here can fail the write that created the notification.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/infrastructure/redis"
)

// ErrQueueFull is returned by Push when the queue cannot take more jobs.
var ErrQueueFull = errors.New("dispatch queue full")

// Job asks a worker to email one notification.
type Job struct {
	NotificationID string    `json:"notificationId"`
	TenantID       string    `json:"tenantId"`
	QueuedAt       time.Time `json:"queuedAt"`
}

// Queue carries jobs from Enqueue to the workers. Push never blocks.
type Queue interface {
	Push(ctx context.Context, job Job) error
	// Pop waits for a job until ctx is done.
	Pop(ctx context.Context) (Job, error)
	Len(ctx context.Context) (int, error)
}

// ChannelQueue is an in-process bounded queue.
type ChannelQueue struct {
	jobs chan Job
}

// NewChannelQueue creates a queue holding at most size jobs.
func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 1
	}
	return &ChannelQueue{jobs: make(chan Job, size)}
}

func (q *ChannelQueue) Push(_ context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *ChannelQueue) Pop(ctx context.Context) (Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (q *ChannelQueue) Len(context.Context) (int, error) {
	return len(q.jobs), nil
}

// DefaultRedisQueueKey is the list the Redis queue uses.
const DefaultRedisQueueKey = "stratahub:dispatch"

// RedisQueue keeps jobs in a Redis list so they survive restarts and can be
// shared by several server processes.
type RedisQueue struct {
	client  *redis.Client
	key     string
	maxLen  int
	pollFor time.Duration
}

// NewRedisQueue creates a queue on key. maxLen bounds the list; zero means
// unbounded.
func NewRedisQueue(client *redis.Client, key string, maxLen int) *RedisQueue {
	if key == "" {
		key = DefaultRedisQueueKey
	}
	return &RedisQueue{client: client, key: key, maxLen: maxLen, pollFor: 2 * time.Second}
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	if q.maxLen > 0 {
		n, err := q.client.LLen(ctx, q.key)
		if err != nil {
			return fmt.Errorf("queue length: %w", err)
		}
		if int(n) >= q.maxLen {
			return ErrQueueFull
		}
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, raw); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		raw, err := q.client.BRPop(ctx, q.pollFor, q.key)
		if errors.Is(err, redis.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("pop job: %w", err)
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return Job{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key)
	return int(n), err
}
