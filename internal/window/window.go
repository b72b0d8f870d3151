// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package window provides a bounded, FIFO-drained set of in-flight tasks.
//
// A Window caps how many tasks run at once and hands results back in the
// order the tasks were submitted, not the order they finished. A task that
// completes early waits behind slower, older tasks. Callers that need both
// a concurrency limit and stable output ordering submit work here and
// drain with Oldest once the window is full.
//
// A Window is owned by a single driving goroutine. Submit, Oldest and Wait
// must not be called concurrently with each other; the tasks themselves run
// on their own goroutines and never touch the window.
package window

import (
	"context"
	"errors"
)

var (
	// ErrFull is returned by Submit when the window already holds Max tasks.
	ErrFull = errors.New("window: full")
	// ErrEmpty is returned by Oldest when no task is in flight.
	ErrEmpty = errors.New("window: empty")
)

type result[T any] struct {
	value T
	err   error
}

type task[T any] struct {
	done chan result[T]
}

// Window is a FIFO queue of in-flight task handles bounded by Max.
type Window[T any] struct {
	max   int
	tasks []*task[T]
}

// New returns a window admitting at most max concurrent tasks.
// A max below 1 is treated as 1.
func New[T any](max int) *Window[T] {
	if max < 1 {
		max = 1
	}
	return &Window[T]{
		max:   max,
		tasks: make([]*task[T], 0, max),
	}
}

// Max is the configured bound.
func (w *Window[T]) Max() int { return w.max }

// Len is the number of tasks currently held, finished or not.
func (w *Window[T]) Len() int { return len(w.tasks) }

// Full reports whether a new task would exceed the bound.
func (w *Window[T]) Full() bool { return len(w.tasks) >= w.max }

// Submit starts fn on its own goroutine and appends its handle to the tail.
// It never blocks; when the window is full it returns ErrFull and fn is not run.
func (w *Window[T]) Submit(fn func() (T, error)) error {
	if w.Full() {
		return ErrFull
	}
	t := &task[T]{done: make(chan result[T], 1)}
	go func() {
		v, err := fn()
		t.done <- result[T]{value: v, err: err}
	}()
	w.tasks = append(w.tasks, t)
	return nil
}

// Oldest waits for the head task and removes it from the window.
// If ctx ends first the head remains in place and ctx.Err() is returned.
func (w *Window[T]) Oldest(ctx context.Context) (T, error) {
	var zero T
	if len(w.tasks) == 0 {
		return zero, ErrEmpty
	}
	head := w.tasks[0]
	select {
	case r := <-head.done:
		w.tasks[0] = nil
		w.tasks = w.tasks[1:]
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Wait blocks until every in-flight task has finished and empties the
// window, discarding results. It returns the errors the tasks produced in
// submit order.
func (w *Window[T]) Wait() []error {
	var errs []error
	for _, t := range w.tasks {
		r := <-t.done
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	clear(w.tasks)
	w.tasks = w.tasks[:0]
	return errs
}
