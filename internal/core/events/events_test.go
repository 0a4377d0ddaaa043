package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	kind string
	n    int
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue[int](4)
	q.Push(1, 2)
	q.Push(3)
	require.Equal(t, 3, q.Len())
	assert.Equal(t, []int{1, 2, 3}, q.Peek())

	assert.Equal(t, []int{1, 2, 3}, q.Drain())
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Drain())
	assert.Equal(t, uint64(3), q.Total())

	// drained slices stay valid after reuse
	q.Push(4)
	first := q.Drain()
	q.Push(5)
	assert.Equal(t, []int{4}, first)
}

func TestDispatcherRouting(t *testing.T) {
	d := NewDispatcher(func(e testEvent) string { return e.kind })

	var enters, all []int
	d.Subscribe("enter", func(e testEvent) error { enters = append(enters, e.n); return nil })
	sub := d.Subscribe("", func(e testEvent) error { all = append(all, e.n); return nil })
	require.Equal(t, 2, d.Subscribers())
	assert.NotEmpty(t, sub.ID())

	err := d.Dispatch([]testEvent{{"enter", 1}, {"exit", 2}, {"enter", 3}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, enters)
	assert.Equal(t, []int{1, 2, 3}, all)

	sub.Cancel()
	sub.Cancel()
	assert.Equal(t, 1, d.Subscribers())
	require.NoError(t, d.Dispatch([]testEvent{{"exit", 4}}))
	assert.Equal(t, []int{1, 2, 3}, all)
}

func TestDispatcherJoinsErrors(t *testing.T) {
	d := NewDispatcher(func(e testEvent) string { return e.kind })
	boom := errors.New("boom")
	calls := 0
	d.Subscribe("", func(testEvent) error { return boom })
	d.Subscribe("", func(testEvent) error { calls++; return nil })

	err := d.Dispatch([]testEvent{{"a", 1}, {"b", 2}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls, "a failing handler must not block the others")
}
