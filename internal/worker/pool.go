// Package worker drains the dispatch queue with a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oggyb/sms-gateway/internal/logging"
	"github.com/oggyb/sms-gateway/internal/queue"
)

// Claimer hands out ready tasks under a lease.
type Claimer interface {
	Claim(ctx context.Context) (*queue.Task, error)
	Ack(ctx context.Context, t queue.Task) error
	RequeueExpired(ctx context.Context) (int, error)
}

// Handler processes one claimed task.
type Handler func(ctx context.Context, t queue.Task) error

// Options configures a Pool.
type Options struct {
	Workers      int
	PollInterval time.Duration
	TaskTimeout  time.Duration
	// LeaseCheckInterval is how often expired leases are requeued.
	LeaseCheckInterval time.Duration
}

// Pool claims tasks and runs them on Workers goroutines.
type Pool struct {
	claimer Claimer
	handle  Handler
	opts    Options
	logger  *slog.Logger
}

func NewPool(claimer Claimer, handle Handler, opts Options, logger *slog.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Second
	}
	if opts.LeaseCheckInterval <= 0 {
		opts.LeaseCheckInterval = 15 * time.Second
	}
	return &Pool{
		claimer: claimer,
		handle:  handle,
		opts:    opts,
		logger:  logger.With("component", "worker_pool"),
	}
}

// Run blocks until ctx is cancelled. A task already claimed when ctx is
// cancelled is still finished, bounded by TaskTimeout.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "worker pool started", "workers", p.opts.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		id := fmt.Sprintf("worker-%d", i+1)
		g.Go(func() error {
			p.work(logging.WithWorkerID(gctx, id))
			return nil
		})
	}
	g.Go(func() error {
		p.requeueExpired(gctx)
		return nil
	})

	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := p.claimer.Claim(ctx)
		switch {
		case errors.Is(err, queue.ErrEmpty):
			if !sleep(ctx, p.opts.PollInterval) {
				return
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			p.logger.ErrorContext(ctx, "claim failed", "error", err)
			if !sleep(ctx, p.opts.PollInterval) {
				return
			}
			continue
		}

		p.run(ctx, *task)
	}
}

func (p *Pool) run(ctx context.Context, t queue.Task) {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.TaskTimeout)
	defer cancel()
	taskCtx = logging.WithMessageID(taskCtx, t.MessageID.String())

	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(taskCtx, "task panicked", "panic", r, "attempt", t.Attempt)
		}
	}()

	// An unacked task is requeued once its lease runs out.
	if err := p.handle(taskCtx, t); err != nil {
		p.logger.ErrorContext(taskCtx, "task failed, left for redelivery", "attempt", t.Attempt, "error", err)
		return
	}
	if err := p.claimer.Ack(taskCtx, t); err != nil {
		p.logger.ErrorContext(taskCtx, "ack failed", "attempt", t.Attempt, "error", err)
	}
}

func (p *Pool) requeueExpired(ctx context.Context) {
	ticker := time.NewTicker(p.opts.LeaseCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := p.claimer.RequeueExpired(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.ErrorContext(ctx, "requeue expired tasks failed", "error", err)
			continue
		}
		if n > 0 {
			p.logger.WarnContext(ctx, "requeued tasks with expired lease", "count", n)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
