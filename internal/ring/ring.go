// Package ring implements the fixed-capacity circular buffer the kernel
// uses both for the serial input/output byte streams and for the FIFO
// queues of thread slot indices waiting on I/O. It is a direct,
// generalized port of the reference kernel's ring_init/ring_read/
// ring_write/ring_peek/ring_flush (lib/buffer.c): the original stores
// everything as a byte buffer and reinterprets it for uint32 queues by
// pointer-casting; Go's type parameters let the same algorithm serve both
// element types without that cast.
package ring

// Ring is a fixed-capacity circular buffer of T.
type Ring[T any] struct {
	buf []T
	cap int
	len int
	r   int // read cursor
}

// New returns a Ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, capacity), cap: capacity}
}

// Len reports how many elements are currently buffered.
func (rb *Ring[T]) Len() int { return rb.len }

// Cap reports the ring's fixed capacity.
func (rb *Ring[T]) Cap() int { return rb.cap }

// IsEmpty reports whether the ring holds no elements.
func (rb *Ring[T]) IsEmpty() bool { return rb.len == 0 }

// IsFull reports whether the ring has no free space.
func (rb *Ring[T]) IsFull() bool { return rb.len == rb.cap }

// Peek copies up to len(target) elements into target without removing
// them, returning the number copied.
func (rb *Ring[T]) Peek(target []T) int {
	size := len(target)
	if rb.len < size {
		size = rb.len
	}
	for i := 0; i < size; i++ {
		target[i] = rb.buf[(rb.r+i)%rb.cap]
	}
	return size
}

// Read copies up to len(target) elements into target and removes them
// from the ring, returning the number read.
func (rb *Ring[T]) Read(target []T) int {
	size := rb.Peek(target)
	rb.len -= size
	rb.r = (rb.r + size) % rb.cap
	return size
}

// Write appends up to len(source) elements from source, stopping early if
// the ring fills up, and returns the number written.
func (rb *Ring[T]) Write(source []T) int {
	size := len(source)
	space := rb.cap - rb.len
	if size > space {
		size = space
	}
	for i := 0; i < size; i++ {
		rb.buf[(rb.r+rb.len+i)%rb.cap] = source[i]
	}
	rb.len += size
	return size
}

// PushOne is a convenience wrapper around Write for a single element. It
// reports whether there was room.
func (rb *Ring[T]) PushOne(v T) bool {
	var one [1]T
	one[0] = v
	return rb.Write(one[:]) == 1
}

// PopOne is a convenience wrapper around Read for a single element.
func (rb *Ring[T]) PopOne() (v T, ok bool) {
	var one [1]T
	if rb.Read(one[:]) == 0 {
		return v, false
	}
	return one[0], true
}

// Flush empties the ring without touching its backing storage.
func (rb *Ring[T]) Flush() {
	rb.len = 0
	rb.r = 0
}
