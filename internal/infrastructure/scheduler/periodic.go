// Package scheduler runs system jobs on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSchedulerNotRunning is returned when triggering a stopped task
var ErrSchedulerNotRunning = errors.New("scheduler is not running")

// TaskFunc is one run of a periodic task
type TaskFunc func(ctx context.Context) error

// PeriodicTask calls a TaskFunc every Interval, each run bounded by Timeout. Runs never
// overlap.
type PeriodicTask struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fn       TaskFunc
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	trigger   chan struct{}
	wg        sync.WaitGroup
}

// NewPeriodicTask creates a task; a zero timeout defaults to the interval
func NewPeriodicTask(name string, interval, timeout time.Duration, fn TaskFunc, log *zap.Logger) *PeriodicTask {
	if timeout <= 0 {
		timeout = interval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PeriodicTask{
		name:     name,
		interval: interval,
		timeout:  timeout,
		fn:       fn,
		logger:   log.Named("scheduler").With(zap.String("task", name)),
		trigger:  make(chan struct{}, 1),
	}
}

// Start begins the loop. A non-positive interval leaves the task disabled.
func (t *PeriodicTask) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return
	}
	if t.interval <= 0 {
		t.logger.Info("Periodic task disabled")
		return
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.wg.Add(1)
	go t.loop(ctx)

	t.logger.Info("Periodic task started", zap.Duration("interval", t.interval))
}

// Stop ends the loop and waits for a run in progress until ctx is done
func (t *PeriodicTask) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.cancel()
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Periodic task stopped")
		return nil
	case <-ctx.Done():
		t.logger.Warn("Periodic task stop timed out")
		return ctx.Err()
	}
}

// Trigger requests an immediate run; it is coalesced with one already pending
func (t *PeriodicTask) Trigger() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isRunning {
		return ErrSchedulerNotRunning
	}
	select {
	case t.trigger <- struct{}{}:
	default:
	}
	return nil
}

func (t *PeriodicTask) loop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runOnce(ctx)
		case <-t.trigger:
			t.runOnce(ctx)
		}
	}
}

func (t *PeriodicTask) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	if err := t.fn(runCtx); err != nil {
		t.logger.Error("Periodic task failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	t.logger.Debug("Periodic task completed", zap.Duration("duration", time.Since(start)))
}
