// Package queue carries background jobs from the API to the worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job kinds understood by the worker.
const (
	KindRegenerateQR = "qr.regenerate"
)

// Job is one unit of background work. PreviousCode names an artifact that
// went stale when the subject's code changed.
type Job struct {
	Kind         string    `json:"kind"`
	SubjectID    string    `json:"subject_id"`
	PreviousCode string    `json:"previous_code,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, job Job) error
	Consume(ctx context.Context) (<-chan Job, error)
}

// ErrUnknownKind is returned when publishing a job nobody consumes.
var ErrUnknownKind = errors.New("queue: unknown job kind")

func check(job Job) error {
	if job.Kind != KindRegenerateQR {
		return fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
	}
	if job.SubjectID == "" {
		return errors.New("queue: job has no subject")
	}
	return nil
}

// InMemory is a channel-backed queue for single-process deployments and tests.
type InMemory struct {
	ch chan Job
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Job, size)}
}

// Publish enqueues a job, blocking while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, job Job) error {
	if err := check(job); err != nil {
		return err
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel that is closed when ctx ends.
func (q *InMemory) Consume(ctx context.Context) (<-chan Job, error) {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case job := <-q.ch:
				select {
				case out <- job:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list-backed queue shared by API and worker processes.
type RedisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "internattend:jobs"
	}
	return &RedisQueue{client: client, key: key, timeout: 5 * time.Second}
}

// Publish enqueues a job.
func (q *RedisQueue) Publish(ctx context.Context, job Job) error {
	if err := check(job); err != nil {
		return err
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

// Consume streams jobs using BRPOP. Undecodable entries are dropped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Job, error) {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					// back off on connection errors
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			job, err := decode(res[1])
			if err != nil {
				continue
			}
			select {
			case out <- job:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decode(s string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(s), &job); err != nil {
		return Job{}, err
	}
	return job, check(job)
}
