package pool

// RingPool is the fixed-capacity ring buffer used for the trade tape
// (spec §3.1 Trade, §4.1 "writer wraps on overflow and overwrites the
// oldest slot; readers track a monotone sequence"). Unlike Pool, slots
// are never individually freed — the writer simply advances and, once
// full, overwrites the oldest entry.
type RingPool[T any] struct {
	slots []T
	seq   uint64 // next write sequence number (monotone, never resets)
	cap   uint64
}

// NewRing creates a ring buffer with a fixed capacity.
func NewRing[T any](capacity int) *RingPool[T] {
	return &RingPool[T]{
		slots: make([]T, capacity),
		cap:   uint64(capacity),
	}
}

// Push writes v into the next slot (wrapping on overflow) and returns the
// monotone sequence number assigned to it.
func (r *RingPool[T]) Push(v T) uint64 {
	seq := r.seq
	r.slots[seq%r.cap] = v
	r.seq++
	return seq
}

// Seq returns the next sequence number that will be assigned.
func (r *RingPool[T]) Seq() uint64 { return r.seq }

// At returns the entry written at seq and whether it is still retained
// (it may have been overwritten if the ring has wrapped past it since).
func (r *RingPool[T]) At(seq uint64) (T, bool) {
	var zero T
	if seq >= r.seq {
		return zero, false
	}
	if r.seq > r.cap && seq < r.seq-r.cap {
		return zero, false // overwritten
	}
	return r.slots[seq%r.cap], true
}

// Cap returns the ring's fixed capacity.
func (r *RingPool[T]) Cap() int { return int(r.cap) }

// RingSnapshot is the serializable form of a RingPool, used by
// internal/slab/persist.go.
type RingSnapshot[T any] struct {
	Slots []T
	Seq   uint64
}

// Dump captures the ring's full internal state for persistence.
func (r *RingPool[T]) Dump() RingSnapshot[T] {
	slots := make([]T, len(r.slots))
	copy(slots, r.slots)
	return RingSnapshot[T]{Slots: slots, Seq: r.seq}
}

// Restore replaces the ring's contents with a previously captured
// RingSnapshot.
func (r *RingPool[T]) Restore(s RingSnapshot[T]) {
	copy(r.slots, s.Slots)
	r.seq = s.Seq
}
