package events

// Queue collects events emitted during a tick. Producers Push while their system
// runs; consumers Drain once per tick. It is not safe for concurrent use: a queue
// has exactly one writer, the system that owns it.
type Queue[T any] struct {
	items []T
	total uint64
}

// NewQueue creates a queue with room for capacity events before growing.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{items: make([]T, 0, capacity)}
}

// Push appends events in emission order.
func (q *Queue[T]) Push(events ...T) {
	q.items = append(q.items, events...)
	q.total += uint64(len(events))
}

// Len returns the number of undrained events.
func (q *Queue[T]) Len() int { return len(q.items) }

// Total returns how many events were ever pushed.
func (q *Queue[T]) Total() uint64 { return q.total }

// Peek returns the undrained events without removing them. The slice is only
// valid until the next Push or Drain.
func (q *Queue[T]) Peek() []T { return q.items }

// Drain returns the pending events in emission order and empties the queue.
func (q *Queue[T]) Drain() []T {
	if len(q.items) == 0 {
		return nil
	}
	out := make([]T, len(q.items))
	copy(out, q.items)
	clear(q.items)
	q.items = q.items[:0]
	return out
}
