package ringbuffer

import "sync"

// Ring is a fixed-capacity, drop-oldest buffer that is safe for concurrent use.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
}

func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Ring[T]{
		items: make([]T, capacity),
	}
}

// Push appends item, evicting the oldest element when full. It reports
// whether an element was evicted.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.items)
	idx := (r.head + r.size) % capacity
	r.items[idx] = item

	if r.size < capacity {
		r.size++
		return false
	}

	r.head = (r.head + 1) % capacity
	return true
}

// Latest returns up to n of the most recent items, oldest first.
func (r *Ring[T]) Latest(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || r.size == 0 {
		return []T{}
	}

	if n > r.size {
		n = r.size
	}

	out := make([]T, n)
	capacity := len(r.items)
	start := r.head + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%capacity]
	}

	return out
}

// All returns every buffered item, oldest first.
func (r *Ring[T]) All() []T {
	return r.Latest(r.Len())
}

// Last returns the newest item.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	return r.items[(r.head+r.size-1)%len(r.items)], true
}

func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.size
}

func (r *Ring[T]) Cap() int {
	return len(r.items)
}

func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}
