package dispatch

import (
	"context"
	"fmt"
	"time"
)

// Queue is the bounded, single-producer hand-off to the downstream proof
// generation pipeline. Send blocks for at most sendTimeout before
// failing, so a stalled consumer cannot wedge submit_request calls
// indefinitely.
type Queue struct {
	ch          chan Job
	sendTimeout time.Duration
}

// NewQueue builds a queue with the given capacity and per-send timeout.
// A non-positive capacity is treated as 1.
func NewQueue(capacity int, sendTimeout time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Job, capacity), sendTimeout: sendTimeout}
}

// Send enqueues job, failing if the queue stays full for longer than the
// configured send timeout or ctx is canceled first.
func (q *Queue) Send(ctx context.Context, job Job) error {
	timer := time.NewTimer(q.sendTimeout)
	defer timer.Stop()

	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("queue send timed out after %s", q.sendTimeout)
	}
}

// Jobs exposes the receive side for the downstream consumer.
func (q *Queue) Jobs() <-chan Job {
	return q.ch
}

// Len returns the number of jobs currently buffered.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue's buffer capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
