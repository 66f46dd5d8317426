// Package worker implements the crawl pool that drains stage queues.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"campuscrawl/internal/academic"
	"campuscrawl/internal/metrics"
	"campuscrawl/internal/queue"
	"campuscrawl/internal/store"
)

// Unit is one item of crawl work, such as a department-year or an offering.
type Unit interface {
	Label() string
}

// Handler crawls and reconciles one unit using the controller it is handed.
// The controller is fresh for every attempt, so a failed attempt leaves no
// session state behind.
type Handler[T Unit] func(ctx context.Context, ctl *store.Controller, unit T) error

// UnitFailure records one unit that exhausted its retries.
type UnitFailure struct {
	Label string
	Err   error
}

// Result summarizes one drained queue.
type Result struct {
	Processed int
	Succeeded int
	Failed    []UnitFailure
}

// Pool fans a queue out over a fixed number of workers. Every worker owns
// its own store sessions; a unit that keeps failing is marked failed and the
// pool keeps draining.
type Pool[T Unit] struct {
	st      *store.Store
	stage   string
	workers int
	policy  *RetryPolicy
	logger  *zap.Logger
}

// NewPool constructs a pool for one named stage; the name labels the unit
// metrics. A nil policy gets the default retry policy.
func NewPool[T Unit](st *store.Store, stage string, workers int, policy *RetryPolicy, logger *zap.Logger) *Pool[T] {
	if workers < 1 {
		workers = 1
	}
	if policy == nil {
		policy = NewRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool[T]{st: st, stage: stage, workers: workers, policy: policy, logger: logger}
}

// Run drains the queue and blocks until every unit is resolved or the
// context ends. The returned error only reflects context cancellation; unit
// failures land in the result.
func (p *Pool[T]) Run(ctx context.Context, q *queue.FIFO[T], handle Handler[T]) (Result, error) {
	var (
		mu     sync.Mutex
		result Result
	)
	workers := p.workers
	if size := q.Size(); size < workers {
		workers = size
	}
	if workers == 0 {
		return result, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			log := p.logger.With(zap.Int("worker", worker))
			for {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				unit, ok := q.TryDequeue()
				if !ok {
					return nil
				}
				err := p.processUnit(ctx, log, unit, handle)
				status := "succeeded"
				if err != nil {
					status = "failed"
				}
				metrics.ObserveUnit(p.stage, status)
				mu.Lock()
				result.Processed++
				if err == nil {
					result.Succeeded++
				} else {
					result.Failed = append(result.Failed, UnitFailure{Label: unit.Label(), Err: err})
				}
				mu.Unlock()
				if err != nil && errors.Is(err, ctx.Err()) && ctx.Err() != nil {
					return ctx.Err()
				}
			}
		})
	}
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return result, err
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

func (p *Pool[T]) processUnit(ctx context.Context, log *zap.Logger, unit T, handle Handler[T]) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = p.attempt(ctx, unit, handle)
		if lastErr == nil {
			log.Debug("unit done", zap.String("unit", unit.Label()), zap.Int("attempt", attempt+1))
			return nil
		}
		if !p.policy.ShouldRetry(lastErr, attempt+1) {
			break
		}
		metrics.ObserveUnitRetry(p.stage)
		delay := p.policy.Backoff(attempt)
		log.Warn("unit attempt failed, backing off",
			zap.String("unit", unit.Label()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(lastErr))
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	log.Error("unit abandoned", zap.String("unit", unit.Label()), zap.Error(lastErr))
	return lastErr
}

// attempt runs the handler on a fresh controller so that retries never see a
// half-reconciled session.
func (p *Pool[T]) attempt(ctx context.Context, unit T, handle Handler[T]) error {
	ctl, err := p.st.Controller(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ctl.Close() }()
	if err := handle(ctx, ctl, unit); err != nil {
		if errors.Is(err, academic.ErrNoData) {
			return nil
		}
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
