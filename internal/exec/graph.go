// Package exec provides the bounded task-graph abstraction the tiler uses
// to fan work out across an octree. A task waits for its dependencies
// before taking a pool slot, so chains of dependent tasks cannot deadlock
// a small pool; a task body that blocks waiting on a task it spawned
// still holds its slot while it waits. golang.org/x/sync/errgroup
// drives cancellation-propagating concurrent execution, and golang.org/x/
// sync/semaphore bounds how many tasks run at once.
package exec

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task is a handle to a unit of work scheduled on a Graph. Callers use it
// only to express dependencies via SpawnAfter's deps argument.
type Task struct {
	done chan struct{}
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Wait blocks until t completes and returns its error, or returns early if
// ctx is canceled first.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Graph runs a bounded pool of concurrent tasks with explicit
// dependencies between them. The pool bound is enforced by a weighted
// semaphore acquired only immediately before a task's function actually
// runs: a task blocked on SpawnAfter dependencies never occupies a pool
// slot while it waits, so a deep chain of dependent spawns cannot starve
// the pool the way it would if the semaphore were held across the wait.
type Graph struct {
	group *errgroup.Group
	ctx   context.Context
	sem   *semaphore.Weighted
}

// New returns a Graph bounded to maxConcurrency simultaneously running
// task bodies, derived from ctx for cancellation propagation: if any task
// returns an error, the group's context is canceled and Wait returns that
// error once every task has unwound.
func New(ctx context.Context, maxConcurrency int64) (*Graph, context.Context) {
	group, gctx := errgroup.WithContext(ctx)
	return &Graph{
		group: group,
		ctx:   gctx,
		sem:   semaphore.NewWeighted(maxConcurrency),
	}, gctx
}

// Spawn schedules fn to run once a pool slot is free. It returns
// immediately with a Task representing the scheduled work.
func (g *Graph) Spawn(fn func(ctx context.Context) error) *Task {
	return g.SpawnAfter(nil, fn)
}

// SpawnAfter schedules fn to run once every task in deps has completed
// successfully and a pool slot is free. If any dependency fails, fn is
// skipped and the returned Task fails with that dependency's error.
func (g *Graph) SpawnAfter(deps []*Task, fn func(ctx context.Context) error) *Task {
	t := newTask()
	g.group.Go(func() error {
		defer close(t.done)

		for _, d := range deps {
			if err := d.Wait(g.ctx); err != nil {
				t.err = fmt.Errorf("exec: dependency failed: %w", err)
				return t.err
			}
		}

		if err := g.sem.Acquire(g.ctx, 1); err != nil {
			t.err = err
			return err
		}
		defer g.sem.Release(1)

		if err := fn(g.ctx); err != nil {
			t.err = err
			return err
		}
		return nil
	})
	return t
}

// Wait blocks until every scheduled task has completed, returning the
// first error encountered, if any.
func (g *Graph) Wait() error {
	return g.group.Wait()
}
