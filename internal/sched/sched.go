// Package sched bounds the concurrency of mirror/sync work, per spec
// §4.7. Registry work and git work run in separate pools so a slow git
// clone can never starve registry downloads (or vice versa); each pool
// wraps a fixed-size token bucket and gathers every task's error
// instead of aborting siblings on the first failure, per spec §9's
// "gather-then-report, not first-error abort" design note — one bad
// crate must not cancel the rest of the batch.
package sched

import (
	"context"
	"sync"
	"time"
)

// Class identifies a work pool.
type Class int

const (
	// Registry is the work class for index and crate-tarball fetches.
	Registry Class = iota
	// Git is the work class for repository clones and checkouts.
	Git
)

// Pool bounds concurrent execution of one work class with a token
// bucket sized at construction. Every scheduled task runs to
// completion regardless of sibling failures; Wait collects all errors.
type Pool struct {
	tokens chan struct{}
	ctx    context.Context
	wg     sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// NewPool returns a Pool that runs at most size tasks concurrently.
// ctx bounds every task (e.g. on process-wide cancellation); it is not
// cancelled by a sibling task's error.
func NewPool(ctx context.Context, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{tokens: make(chan struct{}, size), ctx: ctx}
}

// Go schedules fn to run once a token is available. fn's error, if
// any, is recorded but never cancels other scheduled tasks.
func (p *Pool) Go(fn func(ctx context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.tokens <- struct{}{}:
		case <-p.ctx.Done():
			p.record(p.ctx.Err())
			return
		}
		defer func() { <-p.tokens }()

		if err := fn(p.ctx); err != nil {
			p.record(err)
		}
	}()
}

func (p *Pool) record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

// Wait blocks until every scheduled task has returned, and returns
// every error recorded, in no particular order. A nil or empty slice
// means every task succeeded.
func (p *Pool) Wait() []error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs
}

// Scheduler owns the Registry and Git pools and the per-task timeout
// applied to individual tasks.
type Scheduler struct {
	registry *Pool
	git      *Pool
	timeout  time.Duration
}

// New builds a Scheduler with independent pool sizes per work class
// and a per-task timeout; 0 disables the timeout.
func New(parent context.Context, registrySize, gitSize int, perTaskTimeout time.Duration) *Scheduler {
	return &Scheduler{
		registry: NewPool(parent, registrySize),
		git:      NewPool(parent, gitSize),
		timeout:  perTaskTimeout,
	}
}

// Submit schedules fn on the pool for class, wrapping fn's context
// with the scheduler's per-task timeout when one is configured.
func (s *Scheduler) Submit(class Class, fn func(ctx context.Context) error) {
	pool := s.pool(class)
	pool.Go(func(ctx context.Context) error {
		if s.timeout <= 0 {
			return fn(ctx)
		}
		taskCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return fn(taskCtx)
	})
}

func (s *Scheduler) pool(class Class) *Pool {
	if class == Git {
		return s.git
	}
	return s.registry
}

// Wait blocks until every submitted task across both pools completes,
// returning every error observed on either, gathered rather than
// short-circuited on the first failure.
func (s *Scheduler) Wait() []error {
	errs := s.registry.Wait()
	return append(errs, s.git.Wait()...)
}
