// Package queue runs renders on a fixed pool of workers fed by a bounded queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/leeforge/mediaedit/errors"
	"github.com/leeforge/mediaedit/logging"
	"github.com/leeforge/mediaedit/media/pipeline"
)

var (
	ErrQueueFull = apperrors.New(apperrors.ErrorTypeExternal, "render queue is full").
			WithHTTPStatus(http.StatusServiceUnavailable)
	ErrStopped = apperrors.New(apperrors.ErrorTypeInternal, "render queue is shutting down").
			WithHTTPStatus(http.StatusServiceUnavailable)
)

// RenderFunc produces a bitmap. It must honor ctx.
type RenderFunc func(ctx context.Context) (*pipeline.Result, error)

// Job is one render. Jobs are never retried.
type Job struct {
	MediaID    string
	Generation uint64
	Render     RenderFunc
	Callback   func(result JobResult)

	ctx context.Context
}

type JobResult struct {
	MediaID    string
	Generation uint64
	Result     *pipeline.Result
	Error      error
	Duration   time.Duration
}

type Options struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single render. Zero means no limit beyond the caller's ctx.
	Timeout time.Duration
}

type AsyncProcessor struct {
	workerCount int
	timeout     time.Duration
	jobQueue    chan Job
	logger      logging.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	processed atomic.Int64
	failed    atomic.Int64
}

func NewAsyncProcessor(opts Options, logger logging.Logger) *AsyncProcessor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &AsyncProcessor{
		workerCount: opts.Workers,
		timeout:     opts.Timeout,
		jobQueue:    make(chan Job, opts.QueueSize),
		logger:      logger.Named("queue"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (p *AsyncProcessor) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *AsyncProcessor) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		p.processJob(id, job)
	}
}

func (p *AsyncProcessor) processJob(workerID int, job Job) {
	start := time.Now()
	result := JobResult{MediaID: job.MediaID, Generation: job.Generation}

	ctx, cancel := p.jobContext(job)
	defer cancel()

	result.Result, result.Error = p.run(ctx, job)
	result.Duration = time.Since(start)

	if result.Error != nil {
		p.failed.Add(1)
		p.logger.Warn("render failed",
			zap.Int("worker", workerID),
			logging.MediaID(job.MediaID),
			logging.Generation(job.Generation),
			zap.Duration("duration", result.Duration),
			zap.Error(result.Error),
		)
	} else {
		p.processed.Add(1)
		p.logger.Debug("render done",
			zap.Int("worker", workerID),
			logging.MediaID(job.MediaID),
			logging.Generation(job.Generation),
			zap.Duration("duration", result.Duration),
		)
	}

	if job.Callback != nil {
		job.Callback(result)
	}
}

// jobContext joins the caller's ctx, the per-render timeout and shutdown.
func (p *AsyncProcessor) jobContext(job Job) (context.Context, context.CancelFunc) {
	parent := job.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(p.ctx, cancel)

	if p.timeout > 0 {
		tctx, tcancel := context.WithTimeout(ctx, p.timeout)
		return tctx, func() {
			tcancel()
			stop()
			cancel()
		}
	}
	return ctx, func() {
		stop()
		cancel()
	}
}

func (p *AsyncProcessor) run(ctx context.Context, job Job) (res *pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewInternal(fmt.Sprintf("render panicked: %v", r))
		}
	}()

	if job.Render == nil {
		return nil, apperrors.NewInternal("job has no render function")
	}
	res, err = job.Render(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, apperrors.NewTimeout("render timed out").WithInnerError(err)
	}
	return res, err
}

// Submit enqueues job without blocking.
func (p *AsyncProcessor) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrStopped
	}
	select {
	case p.jobQueue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Do submits job and waits for its result or for ctx to end. The render
// itself sees ctx, so cancelling the caller cancels the render.
func (p *AsyncProcessor) Do(ctx context.Context, job Job) (*pipeline.Result, error) {
	done := make(chan JobResult, 1)
	job.ctx = ctx
	job.Callback = func(r JobResult) { done <- r }

	if err := p.Submit(job); err != nil {
		return nil, err
	}

	select {
	case r := <-done:
		return r.Result, r.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop rejects new jobs and lets queued jobs finish. After timeout the
// remaining renders are cancelled.
func (p *AsyncProcessor) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	defer p.cancel()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for renders to complete")
	}
}

func (p *AsyncProcessor) Pending() int {
	return len(p.jobQueue)
}

// Stats returns the number of successful and failed renders so far.
func (p *AsyncProcessor) Stats() (processed, failed int64) {
	return p.processed.Load(), p.failed.Load()
}
