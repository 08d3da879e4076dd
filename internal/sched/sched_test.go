package sched_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-forge/cargo-fetcher/internal/sched"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := sched.NewPool(context.Background(), 2)

	var active, maxActive int32
	for i := 0; i < 10; i++ {
		pool.Go(func(ctx context.Context) error {
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		})
	}

	assert.Empty(t, pool.Wait())
	assert.LessOrEqual(t, int(maxActive), 2)
}

func TestPool_GathersAllErrorsWithoutCancellingSiblings(t *testing.T) {
	pool := sched.NewPool(context.Background(), 4)
	sentinel := errors.New("boom")

	var secondRan atomic.Bool
	pool.Go(func(ctx context.Context) error { return sentinel })
	pool.Go(func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		secondRan.Store(true)
		return nil
	})

	errs := pool.Wait()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], sentinel)
	assert.True(t, secondRan.Load(), "a sibling's error must not cancel other tasks")
}

func TestScheduler_SeparatesWorkClasses(t *testing.T) {
	s := sched.New(context.Background(), 1, 1, 0)

	var registryRan, gitRan bool
	s.Submit(sched.Registry, func(ctx context.Context) error {
		registryRan = true
		return nil
	})
	s.Submit(sched.Git, func(ctx context.Context) error {
		gitRan = true
		return nil
	})

	assert.Empty(t, s.Wait())
	assert.True(t, registryRan)
	assert.True(t, gitRan)
}

func TestScheduler_AppliesPerTaskTimeout(t *testing.T) {
	s := sched.New(context.Background(), 1, 1, 10*time.Millisecond)

	s.Submit(sched.Registry, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	errs := s.Wait()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
}
