// Package dispatch holds ordered handler lists that are safe to mutate from
// inside a handler invocation.
package dispatch

import (
	"errors"
	"fmt"
	"sync"
)

// ID identifies a registered handler. Zero is never issued.
type ID uint64

// Handler receives one value of type E. Returned errors are collected by
// Dispatch and never stop the remaining handlers from running.
type Handler[E any] func(E) error

type entry[E any] struct {
	id ID
	fn Handler[E]
}

// Registry keeps handlers in registration order. Dispatch iterates over a
// snapshot, so handlers may add or remove entries (themselves included)
// while being invoked.
type Registry[E any] struct {
	mu      sync.Mutex
	nextID  ID
	entries []entry[E]
}

func (r *Registry[E]) Add(h Handler[E]) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.entries = append(r.entries, entry[E]{id: r.nextID, fn: h})

	return r.nextID
}

// Remove drops the handler with the given id and reports whether it existed.
func (r *Registry[E]) Remove(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id != id {
			continue
		}
		next := make([]entry[E], 0, len(r.entries)-1)
		next = append(next, r.entries[:i]...)
		next = append(next, r.entries[i+1:]...)
		r.entries = next

		return true
	}

	return false
}

func (r *Registry[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Dispatch invokes every handler registered at call time, in order. Errors and
// panics raised by handlers are joined into the returned error.
func (r *Registry[E]) Dispatch(v E) error {
	r.mu.Lock()
	snapshot := r.entries
	r.mu.Unlock()

	var errs []error
	for _, e := range snapshot {
		if err := invoke(e, v); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func invoke[E any](e entry[E], v E) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %d panicked: %v", e.id, r)
		}
	}()

	if err := e.fn(v); err != nil {
		return fmt.Errorf("handler %d: %w", e.id, err)
	}

	return nil
}
