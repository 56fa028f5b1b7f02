// Package queue carries run ids from the request path to background workers.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned by Enqueue when a bounded queue has no room
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed is returned once the queue is closed
	ErrQueueClosed = errors.New("job queue is closed")
	// ErrPoolNotRunning is returned when stopping a pool that was never started
	ErrPoolNotRunning = errors.New("worker pool is not running")
)

// Job asks a worker to execute one run. It carries no tenant; the worker resolves the
// owning tenant from the run itself.
type Job struct {
	ID         uuid.UUID `json:"id"`
	RunID      uint64    `json:"run_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob creates the first attempt of a job for runID
func NewJob(runID uint64) Job {
	return Job{
		ID:         uuid.New(),
		RunID:      runID,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue is a FIFO of jobs shared by producers and the worker pool
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available, ctx is done, or the queue is closed
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}
