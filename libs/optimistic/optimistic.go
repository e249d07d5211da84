// Package optimistic applies a local change to a list before the remote
// request that makes it durable, and restores the previous state when that
// request fails.
package optimistic

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// RollbackError is returned by Apply when the remote request failed and the
// local list was restored.
type RollbackError struct {
	Err error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("optimistic update rolled back: %v", e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

type op[T any] struct {
	mutate func([]T) []T
	done   bool
}

// List is a locally held copy of a remote collection. Mutations may overlap:
// a failed one is taken out and the others still in flight are replayed on
// top of the last confirmed state, so they are not lost with it.
type List[T any] struct {
	mu      sync.Mutex
	base    []T
	pending []*op[T]
	items   []T
}

func NewList[T any](items []T) *List[T] {
	return &List[T]{base: slices.Clone(items), items: slices.Clone(items)}
}

// Items returns a copy of the current contents.
func (l *List[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items)
}

func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Replace swaps in a freshly fetched list. Mutations still in flight are
// forgotten; the fetched list already reflects whatever reached the server.
func (l *List[T]) Replace(items []T) {
	l.mu.Lock()
	l.base = slices.Clone(items)
	l.items = slices.Clone(items)
	l.pending = nil
	l.mu.Unlock()
}

// Apply applies mutate locally and then issues request. When request fails
// the mutation is withdrawn and a *RollbackError wrapping the cause is
// returned. Nothing is retried. mutate may run more than once and must depend
// only on the slice it is given.
func (l *List[T]) Apply(ctx context.Context, mutate func([]T) []T, request func(context.Context) error) error {
	o := &op[T]{mutate: mutate}
	l.mu.Lock()
	l.pending = append(l.pending, o)
	l.items = mutate(slices.Clone(l.items))
	l.mu.Unlock()

	err := request(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	idx := slices.Index(l.pending, o)
	if err != nil {
		if idx >= 0 {
			l.pending = slices.Delete(l.pending, idx, idx+1)
			l.items = l.replay()
		}
		l.settle()
		return &RollbackError{Err: err}
	}
	o.done = true
	l.settle()
	return nil
}

// settle folds confirmed mutations at the head of the queue into base.
func (l *List[T]) settle() {
	for len(l.pending) > 0 && l.pending[0].done {
		l.base = l.pending[0].mutate(slices.Clone(l.base))
		l.pending = l.pending[1:]
	}
}

func (l *List[T]) replay() []T {
	items := slices.Clone(l.base)
	for _, o := range l.pending {
		items = o.mutate(items)
	}
	return items
}

// Remove returns a mutation that drops every item matching del.
func Remove[T any](del func(T) bool) func([]T) []T {
	return func(items []T) []T {
		return slices.DeleteFunc(items, del)
	}
}

// Update returns a mutation that rewrites every item matching match.
func Update[T any](match func(T) bool, change func(T) T) func([]T) []T {
	return func(items []T) []T {
		for i := range items {
			if match(items[i]) {
				items[i] = change(items[i])
			}
		}
		return items
	}
}

// Prepend returns a mutation that inserts item at the head of the list.
func Prepend[T any](item T) func([]T) []T {
	return func(items []T) []T {
		return append([]T{item}, items...)
	}
}
