package batch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNestedRunDrainsOnce(t *testing.T) {
	e := New()
	var q Set[string]
	var fired []string
	e.Register("notify", SetPhase(&q, func(s string) { fired = append(fired, s) }))

	err := e.Run(func() error {
		q.Add("a")
		return e.Run(func() error {
			q.Add("a")
			q.Add("b")
			assert.Equal(t, 2, e.Depth())
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 0, e.Depth())
}

func TestDrainPhaseOrderAndLoop(t *testing.T) {
	e := New()
	var first, second Set[int]
	var log []string
	e.Register("first", SetPhase(&first, func(n int) {
		log = append(log, "first")
		// вторая фаза уже забрана в этом проходе, эффект уйдёт в следующий
		second.Add(n)
	}))
	e.Register("second", SetPhase(&second, func(n int) {
		log = append(log, "second")
		assert.True(t, e.Batching(), "drain must run with depth raised")
		if n < 2 {
			first.Add(n + 1)
		}
	}))

	require.NoError(t, e.Run(func() error {
		first.Add(0)
		return nil
	}))
	assert.Equal(t, []string{"first", "second", "first", "second", "first", "second"}, log)
	assert.Equal(t, 6, e.Passes())
}

func TestRunInsideDrainDoesNotDrainEarly(t *testing.T) {
	e := New()
	var q List[func()]
	var order []string
	e.Register("ready", ListPhase(&q, func(f func()) { f() }))

	require.NoError(t, e.Run(func() error {
		q.Push(func() {
			order = append(order, "outer")
			_ = e.Run(func() error {
				q.Push(func() { order = append(order, "inner") })
				return nil
			})
			order = append(order, "after inner run")
		})
		return nil
	}))
	assert.Equal(t, []string{"outer", "after inner run", "inner"}, order)
}

func TestRunReturnsErrorAndStillDrains(t *testing.T) {
	e := New()
	var q Set[int]
	drained := 0
	e.Register("x", SetPhase(&q, func(int) { drained++ }))
	boom := errors.New("boom")

	err := e.Run(func() error {
		q.Add(1)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, drained)
}

func TestSetDeduplicatesUntilTake(t *testing.T) {
	var s Set[int]
	assert.True(t, s.Add(1))
	assert.False(t, s.Add(1))
	assert.Equal(t, []int{1}, s.Take())
	assert.Nil(t, s.Take())
	assert.True(t, s.Add(1))
}
