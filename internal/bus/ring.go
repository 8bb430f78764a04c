package bus

// ring is a bounded FIFO buffer. Appending past capacity evicts the oldest
// entry. Callers synchronize access through the bus mutex.
type ring[T any] struct {
	buf []T
	max int
}

func newRing[T any](max int) *ring[T] {
	return &ring[T]{max: max}
}

func (r *ring[T]) push(v T) {
	if len(r.buf) == r.max {
		copy(r.buf, r.buf[1:])
		r.buf[len(r.buf)-1] = v
		return
	}
	r.buf = append(r.buf, v)
}

func (r *ring[T]) len() int {
	return len(r.buf)
}

func (r *ring[T]) items() []T {
	out := make([]T, len(r.buf))
	copy(out, r.buf)
	return out
}

func (r *ring[T]) clear() {
	r.buf = r.buf[:0]
}
