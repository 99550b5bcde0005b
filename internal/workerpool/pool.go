package workerpool

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is a unit of CPU- or I/O-bound work executed on the pool.
type Task func(ctx context.Context) (any, error)

// Outcome is one settled task result; exactly one of Value/Err is
// meaningful.
type Outcome struct {
	Value any
	Err   error
}

// Future resolves to a task's outcome once it has settled.
type Future struct {
	done    chan struct{}
	outcome Outcome
}

// Wait blocks until the task settles or the context is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.outcome.Value, f.outcome.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pool bounds concurrent task execution with a semaphore and applies a
// per-task timeout. It is an explicitly owned dependency: construct it in
// main and inject it where needed. A nil *Pool is a valid "pool
// unavailable" value; callers degrade to their non-pooled path.
type Pool struct {
	sem         chan struct{}
	taskTimeout time.Duration
	log         *logrus.Entry
}

func New(size int, taskTimeout time.Duration, log *logrus.Entry) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", size)
	}
	return &Pool{
		sem:         make(chan struct{}, size),
		taskTimeout: taskTimeout,
		log:         log,
	}, nil
}

// Submit schedules the task and returns immediately. The task runs once a
// worker slot frees up; if the submission context ends first the future
// settles with that error without running the task.
func (p *Pool) Submit(ctx context.Context, name string, task Task) *Future {
	f := &Future{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-ctx.Done():
			f.outcome = Outcome{Err: fmt.Errorf("task %s not started: %w", name, ctx.Err())}
			return
		}

		taskCtx := ctx
		if p.taskTimeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(ctx, p.taskTimeout)
			defer cancel()
		}

		start := time.Now()
		v, err := task(taskCtx)
		if err != nil {
			p.log.WithFields(logrus.Fields{
				"task":        name,
				"duration_ms": time.Since(start).Milliseconds(),
				"error":       err.Error(),
			}).Warn("pool task failed")
		}
		f.outcome = Outcome{Value: v, Err: err}
	}()

	return f
}

// WaitAll waits for every future to settle and returns their outcomes in
// submission order. No outcome blocks or cancels the others.
func WaitAll(ctx context.Context, futures []*Future) []Outcome {
	outcomes := make([]Outcome, len(futures))
	for i, f := range futures {
		v, err := f.Wait(ctx)
		outcomes[i] = Outcome{Value: v, Err: err}
	}
	return outcomes
}
