package broadcast

import "sync"

// Queue is a thread-safe FIFO that doubles its capacity when it reaches
// 70% full. Pop blocks until an item arrives or the queue is closed.
type Queue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	maxLen   int // 0 = unbounded
	closed   bool

	// Stats
	totalPushed int64
	totalPopped int64
	resizeCount int
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Count       int
	Capacity    int
	TotalPushed int64
	TotalPopped int64
	ResizeCount int
}

// NewQueue creates a queue with the given initial capacity.
// Push fails once maxLen items are pending; maxLen <= 0 disables the limit.
func NewQueue[T any](initialCapacity, maxLen int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &Queue[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		maxLen:   maxLen,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. It returns false if the queue is closed or full.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.maxLen > 0 && q.count >= q.maxLen {
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalPushed++

	q.cond.Signal()
	return true
}

// Pop removes the oldest item, blocking while the queue is empty.
// It returns false once the queue is closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Close stops accepting items. Pending items can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:       q.count,
		Capacity:    q.capacity,
		TotalPushed: q.totalPushed,
		TotalPopped: q.totalPopped,
		ResizeCount: q.resizeCount,
	}
}

// popLocked must be called with the lock held and count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.totalPopped++
	return item
}

// grow doubles the capacity. Must be called with lock held.
func (q *Queue[T]) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
	q.resizeCount++
}
