package txgraph

// Queue implements a generic FIFO queue with amortized O(1) Enqueue and
// Dequeue operations. The zero value is ready to use.
type Queue[T any] struct {
	items []T
	head  int
}

// NewQueue creates a new empty queue with optional initial capacity.
func NewQueue[T any](capacity ...int) *Queue[T] {
	size := 0
	if len(capacity) > 0 {
		size = capacity[0]
	}
	return &Queue[T]{
		items: make([]T, 0, size),
	}
}

// Enqueue adds an item to the back of the queue.
func (q *Queue[T]) Enqueue(item T) {
	q.items = append(q.items, item)
}

// Dequeue removes and returns the item at the front of the queue.
// Returns false if the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if q.head == len(q.items) {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	// Reclaim the consumed prefix once the queue drains.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return item, true
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	return len(q.items) - q.head
}
