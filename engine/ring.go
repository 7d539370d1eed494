package engine

import (
	"sync/atomic"
)

type (
	// Ring is a bounded lock-free queue with any number of producers and
	// consumers. Every accepted element gets a position: positions start at 0
	// and increase by one per push, and elements are popped in position
	// order. Neither TryPush nor TryPop ever blocks or allocates, so both can
	// be used from the real-time thread.
	//
	// The algorithm is Dmitry Vyukov's bounded MPMC queue: each cell carries
	// a sequence number telling whether it is ready for the producer of
	// position pos (seq == pos) or for the consumer of position pos (seq ==
	// pos+1).
	Ring[T any] struct {
		_       [64]byte
		enqueue atomic.Uint64
		_       [56]byte
		dequeue atomic.Uint64
		_       [56]byte
		mask    uint64
		cells   []cell[T]
	}

	cell[T any] struct {
		seq atomic.Uint64
		val T
	}
)

// NewRing returns a ring holding at least capacity elements. The capacity is
// rounded up to a power of two.
func NewRing[T any](capacity int) *Ring[T] {
	size := uint64(2)
	for size < uint64(capacity) {
		size <<= 1
	}
	r := &Ring[T]{mask: size - 1, cells: make([]cell[T], size)}
	for i := range r.cells {
		r.cells[i].seq.Store(uint64(i))
	}
	return r
}

// TryPush adds v to the ring. ok is false if the ring is full.
func (r *Ring[T]) TryPush(v T) (pos uint64, ok bool) {
	pos = r.enqueue.Load()
	for {
		c := &r.cells[pos&r.mask]
		seq := c.seq.Load()
		switch dif := int64(seq - pos); {
		case dif == 0:
			if r.enqueue.CompareAndSwap(pos, pos+1) {
				c.val = v
				c.seq.Store(pos + 1)
				return pos, true
			}
		case dif < 0:
			return 0, false
		}
		pos = r.enqueue.Load()
	}
}

// TryPop removes the oldest element. ok is false if the ring is empty.
func (r *Ring[T]) TryPop() (v T, ok bool) {
	pos := r.dequeue.Load()
	for {
		c := &r.cells[pos&r.mask]
		seq := c.seq.Load()
		switch dif := int64(seq - (pos + 1)); {
		case dif == 0:
			if r.dequeue.CompareAndSwap(pos, pos+1) {
				v = c.val
				var zero T
				c.val = zero // drop the reference for the garbage collector
				c.seq.Store(pos + r.mask + 1)
				return v, true
			}
		case dif < 0:
			return v, false
		}
		pos = r.dequeue.Load()
	}
}

// Len is the number of elements in the ring. It is exact only when no
// push or pop is in progress.
func (r *Ring[T]) Len() int {
	n := int64(r.enqueue.Load() - r.dequeue.Load())
	if n < 0 {
		return 0
	}
	return int(n)
}

// Cap is the number of elements the ring can hold.
func (r *Ring[T]) Cap() int {
	return len(r.cells)
}
