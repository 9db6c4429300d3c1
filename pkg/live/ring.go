package live

// ring is a fixed-capacity append-only log. Once full, each append evicts
// the oldest entry. Appends are O(1) regardless of how many events a
// long-running simulation produces.
type ring[T any] struct {
	buf   []T
	start int
	n     int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) append(v T) {
	if len(r.buf) == 0 {
		return
	}

	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}

	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) len() int { return r.n }

// snapshot returns the surviving entries, oldest first, in a fresh slice.
func (r *ring[T]) snapshot() []T {
	out := make([]T, r.n)
	for i := range r.n {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) reset() {
	r.start, r.n = 0, 0
	clear(r.buf)
}
