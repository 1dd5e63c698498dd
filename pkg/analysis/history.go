package analysis

import "fmt"

// Ring is a fixed-capacity ring buffer. Push evicts the oldest element
// once full. Not safe for concurrent use.
type Ring[T any] struct {
	buf   []T
	start int // index of the oldest element
	n     int
}

// NewRing creates a ring holding at most capacity elements.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Full reports whether Len() == Cap().
func (r *Ring[T]) Full() bool { return r.n == len(r.buf) }

// At returns the i-th element, 0 being the oldest.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.n {
		panic(fmt.Sprintf("analysis: ring index %d out of range [0,%d)", i, r.n))
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Last returns the newest element and false when empty.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	return r.At(r.n - 1), true
}

// Each calls fn for every element from oldest to newest.
func (r *Ring[T]) Each(fn func(i int, v T)) {
	for i := 0; i < r.n; i++ {
		fn(i, r.buf[(r.start+i)%len(r.buf)])
	}
}

// Reset empties the ring without releasing storage.
func (r *Ring[T]) Reset() {
	clear(r.buf)
	r.start = 0
	r.n = 0
}

// FeatureHistory is the classifier's rolling window of feature vectors.
type FeatureHistory = Ring[FeatureVector]

// NewFeatureHistory creates a history of capacity frames.
func NewFeatureHistory(capacity int) *FeatureHistory {
	return NewRing[FeatureVector](capacity)
}

// checkInvariant returns ErrHistoryOverflow if the ring is corrupt.
func (r *Ring[T]) checkInvariant() error {
	if r.n > len(r.buf) || r.start >= len(r.buf) {
		return fmt.Errorf("%w: len %d cap %d start %d", ErrHistoryOverflow, r.n, len(r.buf), r.start)
	}
	return nil
}
