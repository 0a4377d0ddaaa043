package events

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Handler receives one drained event. Returned errors are aggregated by Dispatch.
type Handler[T any] func(event T) error

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id   string
	kind string
	stop func()
}

func (s *Subscription) ID() string   { return s.id }
func (s *Subscription) Kind() string { return s.kind }

// Cancel removes the handler. Multiple calls are safe.
func (s *Subscription) Cancel() {
	if s != nil && s.stop != nil {
		s.stop()
	}
}

type subscriber[T any] struct {
	id      string
	kind    string
	handler Handler[T]
}

// Dispatcher fans drained events out to gameplay and AI subscribers after the
// simulation phases finished. Handlers therefore never observe a half-updated tick.
type Dispatcher[T any] struct {
	mu     sync.RWMutex
	kindOf func(T) string
	subs   []subscriber[T]
}

// NewDispatcher creates a dispatcher routing by kindOf(event).
func NewDispatcher[T any](kindOf func(T) string) *Dispatcher[T] {
	return &Dispatcher[T]{kindOf: kindOf}
}

// Subscribe registers handler for events of kind. An empty kind receives every event.
// Handlers run in subscription order.
func (d *Dispatcher[T]) Subscribe(kind string, handler Handler[T]) *Subscription {
	id := uuid.NewString()
	d.mu.Lock()
	d.subs = append(d.subs, subscriber[T]{id: id, kind: kind, handler: handler})
	d.mu.Unlock()
	return &Subscription{id: id, kind: kind, stop: func() { d.remove(id) }}
}

func (d *Dispatcher[T]) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.id == id {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (d *Dispatcher[T]) Subscribers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Dispatch delivers events in order. A failing handler does not stop delivery to
// the others; all failures are joined into the returned error.
func (d *Dispatcher[T]) Dispatch(events []T) error {
	if len(events) == 0 {
		return nil
	}
	d.mu.RLock()
	subs := make([]subscriber[T], len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	var all error
	for _, ev := range events {
		kind := d.kindOf(ev)
		for _, s := range subs {
			if s.kind != "" && s.kind != kind {
				continue
			}
			if err := s.handler(ev); err != nil {
				all = errors.Join(all, fmt.Errorf("subscriber %s (%s): %w", s.id, kind, err))
			}
		}
	}
	return all
}
