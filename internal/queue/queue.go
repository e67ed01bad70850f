// Package queue defines the episode-request work contract from spec
// §6: a JSON message ferried from the front-end service to the
// episode builder, idempotent on episode_id. Per spec §1 the queue
// transport itself is an external collaborator (the front-end's
// broker is out of scope), so this package only provides the
// Producer/Consumer interface pair plus an in-process channel-backed
// reference implementation for tests and single-process deployments.
// The blocking-dequeue/recover-and-continue worker loop shape is
// grounded on redis_worker.py's start_worker, adapted from a blocking
// BRPOP poll to a buffered Go channel.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// EpisodeRequest is the front-end → builder JSON contract (spec §6).
type EpisodeRequest struct {
	EpisodeID       string   `json:"episode_id"`
	Subcategories   []string `json:"subcategories"`
	DurationMinutes int      `json:"duration_minutes"`
	CustomTags      []string `json:"custom_tags"`
}

// Validate rejects a request missing its idempotency key or a usable
// duration.
func (r EpisodeRequest) Validate() error {
	if r.EpisodeID == "" {
		return fmt.Errorf("queue: episode_id is required")
	}
	if r.DurationMinutes <= 0 {
		return fmt.Errorf("queue: duration_minutes must be positive")
	}
	return nil
}

// Producer enqueues episode-generation requests.
type Producer interface {
	Enqueue(ctx context.Context, req EpisodeRequest) error
}

// Consumer dequeues episode-generation requests, one at a time.
type Consumer interface {
	// Dequeue blocks until a request is available or ctx is cancelled.
	Dequeue(ctx context.Context) (EpisodeRequest, error)
}

// Channel is an in-process Producer/Consumer backed by a buffered Go
// channel. It has no delivery guarantees beyond the process lifetime —
// a real deployment fronts the builder with a durable broker (Redis,
// SQS, etc.), which per spec §1 is the front-end service's concern,
// not the core's.
type Channel struct {
	reqs chan EpisodeRequest
}

// NewChannel builds a Channel with the given buffer size.
func NewChannel(bufferSize int) *Channel {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Channel{reqs: make(chan EpisodeRequest, bufferSize)}
}

// Enqueue implements Producer.
func (c *Channel) Enqueue(ctx context.Context, req EpisodeRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	select {
	case c.reqs <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue implements Consumer.
func (c *Channel) Dequeue(ctx context.Context) (EpisodeRequest, error) {
	select {
	case req := <-c.reqs:
		return req, nil
	case <-ctx.Done():
		return EpisodeRequest{}, ctx.Err()
	}
}

// Marshal/Unmarshal round-trip an EpisodeRequest across a
// transport that only moves bytes (e.g. a future broker-backed
// Producer/Consumer pair).
func Marshal(req EpisodeRequest) ([]byte, error) {
	return json.Marshal(req)
}

func Unmarshal(b []byte) (EpisodeRequest, error) {
	var req EpisodeRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return EpisodeRequest{}, fmt.Errorf("queue: unmarshal request: %w", err)
	}
	return req, nil
}
