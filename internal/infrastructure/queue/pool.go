package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/promptlab/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Handler processes one job. A returned error marks the attempt failed.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// PoolConfig configures a WorkerPool
type PoolConfig struct {
	Concurrency int
	JobTimeout  time.Duration
	// MaxAttempts bounds re-enqueues of failed jobs; 1 disables retry
	MaxAttempts int
	// ErrorBackoff is the pause after a failed dequeue
	ErrorBackoff time.Duration
}

// DefaultPoolConfig returns the defaults used when fields are zero
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency:  4,
		JobTimeout:   2 * time.Minute,
		MaxAttempts:  3,
		ErrorBackoff: time.Second,
	}
}

// WorkerPool runs Concurrency goroutines that dequeue and handle jobs. Every job gets a
// fresh context derived from the pool's root context, so nothing a job stores in its
// context is visible to the next job on the same goroutine.
type WorkerPool struct {
	queue   Queue
	handler Handler
	cfg     PoolConfig
	logger  *zap.Logger

	mu         sync.Mutex
	running    bool
	stopListen context.CancelFunc
	cancelJobs context.CancelFunc
	wg         sync.WaitGroup
}

// NewWorkerPool creates a pool; zero config fields take DefaultPoolConfig values
func NewWorkerPool(q Queue, h Handler, cfg PoolConfig, log *zap.Logger) *WorkerPool {
	def := DefaultPoolConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{queue: q, handler: h, cfg: cfg, logger: log.Named("worker")}
}

// Start launches the workers. Jobs keep ctx's values but not its cancellation; Stop ends
// them.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	listenCtx, stopListen := context.WithCancel(ctx)
	root, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	p.stopListen = stopListen
	p.cancelJobs = cancelJobs

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.work(listenCtx, root, i)
	}
	p.logger.Info("Worker pool started",
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Duration("job_timeout", p.cfg.JobTimeout),
	)
}

// Stop stops dequeuing and waits for in-flight jobs until ctx is done, then cancels them
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPoolNotRunning
	}
	p.running = false
	p.stopListen()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelJobs()
		p.logger.Info("Worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.cancelJobs()
		p.logger.Warn("Worker pool stop timed out, in-flight jobs cancelled")
		return ctx.Err()
	}
}

func (p *WorkerPool) work(listenCtx, root context.Context, workerID int) {
	defer p.wg.Done()

	for {
		job, err := p.queue.Dequeue(listenCtx)
		switch {
		case err == nil:
			p.process(root, job, workerID)
		case errors.Is(err, ErrQueueClosed), listenCtx.Err() != nil:
			return
		default:
			p.logger.Error("Failed to dequeue job", zap.Int("worker_id", workerID), zap.Error(err))
			select {
			case <-listenCtx.Done():
				return
			case <-time.After(p.cfg.ErrorBackoff):
			}
		}
	}
}

func (p *WorkerPool) process(root context.Context, job Job, workerID int) {
	log := p.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.Uint64("run_id", job.RunID),
		zap.Int("attempt", job.Attempt),
	)

	ctx, cancel := context.WithTimeout(root, p.cfg.JobTimeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	start := time.Now()
	err := p.safeHandle(ctx, job)
	if err == nil {
		log.Debug("Job completed", zap.Duration("duration", time.Since(start)))
		return
	}

	if job.Attempt >= p.cfg.MaxAttempts {
		log.Error("Job failed, giving up", zap.Error(err))
		return
	}
	log.Warn("Job failed, re-enqueueing", zap.Error(err))
	retry := job
	retry.Attempt++
	if err := p.queue.Enqueue(root, retry); err != nil {
		log.Error("Failed to re-enqueue job", zap.Error(err))
	}
}

func (p *WorkerPool) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return p.handler.Handle(ctx, job)
}
