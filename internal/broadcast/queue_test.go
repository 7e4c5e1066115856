package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int](4, 0)

	for i := 0; i < 100; i++ {
		require.True(t, q.Push(i), "Push(%d)", i)
	}

	stats := q.Stats()
	assert.Equal(t, 100, stats.Count)
	assert.GreaterOrEqual(t, stats.ResizeCount, 3, "expected at least 3 resizes")

	for i := 0; i < 100; i++ {
		val, ok := q.TryPop()
		require.True(t, ok, "TryPop() for item %d", i)
		assert.Equal(t, i, val)
	}

	_, ok := q.TryPop()
	assert.False(t, ok, "TryPop() on empty queue")
}

func TestQueue_WrapAroundThenGrow(t *testing.T) {
	q := NewQueue[int](10, 0)

	// Advance head so the next fill wraps.
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	for i := 0; i < 5; i++ {
		q.TryPop()
	}

	for i := 0; i < 20; i++ {
		q.Push(i)
	}
	for i := 0; i < 20; i++ {
		val, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, i, val)
	}
}

func TestQueue_MaxLen(t *testing.T) {
	q := NewQueue[int](2, 3)

	for i := 0; i < 3; i++ {
		require.True(t, q.Push(i), "Push(%d) before limit", i)
	}
	assert.False(t, q.Push(3), "Push beyond maxLen")

	q.TryPop()
	assert.True(t, q.Push(3), "Push after pop")
}

func TestQueue_BlockingPop(t *testing.T) {
	q := NewQueue[int](4, 0)
	received := make(chan int, 1)

	go func() {
		if val, ok := q.Pop(); ok {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case val := <-received:
		assert.Equal(t, 42, val)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Pop")
	}
}

func TestQueue_CloseWakesPop(t *testing.T) {
	q := NewQueue[int](4, 0)
	q.Push(1)
	q.Close()

	assert.False(t, q.Push(2), "Push after Close")

	// Pending item still drains.
	val, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, val)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	select {
	case ok := <-done:
		assert.False(t, ok, "Pop() on closed empty queue")
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
}
