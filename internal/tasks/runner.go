// Package tasks runs slow operations off the request goroutine on a bounded
// pool and hands back futures for their results.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/arencloud/bucketgw/internal/logging"
	"golang.org/x/sync/semaphore"
)

// ErrRunnerClosed resolves every future submitted after Close.
var ErrRunnerClosed = errors.New("tasks: runner closed")

// Observer is notified around every task execution.
type Observer interface {
	Started(name string)
	Finished(name string, took time.Duration, err error)
}

type Option func(*Runner)

func WithObserver(o Observer) Option { return func(r *Runner) { r.obs = o } }

// Runner executes at most workers tasks at a time. Submissions beyond that
// wait for a slot (or for their context to end).
type Runner struct {
	sem *semaphore.Weighted
	log logging.Logger
	obs Observer

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewRunner(workers int, log logging.Logger, opts ...Option) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	r := &Runner{sem: semaphore.NewWeighted(int64(workers)), log: log.With("component", "tasks")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Submit schedules fn and returns immediately. fn receives ctx; a task
// still waiting for a slot when ctx ends resolves with ctx's error.
func Submit[T any](r *Runner, ctx context.Context, name string, fn func(context.Context) (T, error)) *Future[T] {
	return submit(r, ctx, name, fn, false)
}

// SubmitDetached is Submit for work that must not stop halfway. ctx only
// bounds the wait for a slot; once started, fn runs on a context that keeps
// ctx's values but ignores its cancellation.
func SubmitDetached[T any](r *Runner, ctx context.Context, name string, fn func(context.Context) (T, error)) *Future[T] {
	return submit(r, ctx, name, fn, true)
}

func submit[T any](r *Runner, ctx context.Context, name string, fn func(context.Context) (T, error), detach bool) *Future[T] {
	f := newFuture[T]()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		var zero T
		f.resolve(zero, ErrRunnerClosed)
		return f
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		var zero T
		if err := r.sem.Acquire(ctx, 1); err != nil {
			f.resolve(zero, err)
			return
		}
		defer r.sem.Release(1)
		runCtx := ctx
		if detach {
			runCtx = context.WithoutCancel(ctx)
		}
		v, err := run(r, runCtx, name, fn)
		f.resolve(v, err)
	}()
	return f
}

func run[T any](r *Runner, ctx context.Context, name string, fn func(context.Context) (T, error)) (v T, err error) {
	start := time.Now()
	if r.obs != nil {
		r.obs.Started(name)
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("task panicked", "task", name, "panic", p, "stack", string(debug.Stack()))
			var zero T
			v, err = zero, fmt.Errorf("tasks: %s panicked: %v", name, p)
		}
		if r.obs != nil {
			r.obs.Finished(name, time.Since(start), err)
		}
		r.log.Debug("task finished", "task", name, "took", time.Since(start), "err", err)
	}()
	return fn(ctx)
}

// Close stops accepting tasks and waits for the running ones, or for ctx.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	val       T
	err       error
	resolved  bool
	callbacks []func(T, error)
}

func newFuture[T any]() *Future[T] { return &Future[T]{done: make(chan struct{})} }

func (f *Future[T]) resolve(v T, err error) {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return
	}
	f.val, f.err, f.resolved = v, err, true
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(v, err)
	}
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks for the result. If ctx ends first it returns ctx's error; the
// task itself keeps running.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers cb to run once with the result, right away if the
// future is already resolved.
func (f *Future[T]) OnComplete(cb func(T, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	cb(v, err)
}
