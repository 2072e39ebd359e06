// Package queue schedules one task per route with bounded concurrency.
// Running tasks may discover further routes; those are scheduled on the
// same queue and Wait does not return until they are done too.
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/3-lines-studio/ssg/internal/core"
)

// Task renders one route and returns any routes it discovered.
type Task func(ctx context.Context, route string) ([]string, error)

type Option func(*Queue)

func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

type Queue struct {
	ctx    context.Context
	task   Task
	sem    *semaphore.Weighted
	logger *zap.Logger

	wg sync.WaitGroup

	mu     sync.Mutex
	seen   map[string]struct{}
	routes []string
	err    error
}

// New returns an empty queue. A concurrency below one means
// core.DefaultConcurrency.
func New(ctx context.Context, concurrency int, task Task, opts ...Option) *Queue {
	if concurrency < 1 {
		concurrency = core.DefaultConcurrency
	}

	q := &Queue{
		ctx:    ctx,
		task:   task,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: zap.NewNop(),
		seen:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add schedules the routes that were never seen before and reports how
// many that was. It is safe to call from running tasks.
func (q *Queue) Add(routes ...string) int {
	q.mu.Lock()
	var added []string
	for _, route := range routes {
		if _, ok := q.seen[route]; ok {
			continue
		}
		q.seen[route] = struct{}{}
		q.routes = append(q.routes, route)
		added = append(added, route)
	}
	q.wg.Add(len(added))
	q.mu.Unlock()

	for _, route := range added {
		go q.run(route)
	}
	return len(added)
}

func (q *Queue) run(route string) {
	defer q.wg.Done()

	if err := q.sem.Acquire(q.ctx, 1); err != nil {
		q.fail(route, err)
		return
	}

	start := time.Now()
	discovered, err := q.task(q.ctx, route)
	q.sem.Release(1)

	if err != nil {
		q.fail(route, err)
		return
	}

	q.logger.Debug("route done", zap.String("route", route), zap.Duration("duration", time.Since(start)))

	// Discovered routes join the wait group before this task leaves it.
	if n := q.Add(discovered...); n > 0 {
		q.logger.Debug("routes discovered", zap.String("route", route), zap.Int("count", n))
	}
}

func (q *Queue) fail(route string, err error) {
	q.logger.Debug("route failed", zap.String("route", route), zap.Error(err))

	q.mu.Lock()
	q.err = multierr.Append(q.err, &core.RouteError{Route: route, Err: err})
	q.mu.Unlock()
}

// Wait blocks until nothing is pending or running, then returns every task
// failure combined, in completion order.
func (q *Queue) Wait() error {
	q.wg.Wait()

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Routes returns every route ever added, in insertion order.
func (q *Queue) Routes() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.routes...)
}
