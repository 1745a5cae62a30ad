// Buffer sample data between the bus engine and its clients.
//
// A Ring decouples the cadence of the DMA engine, which moves one chunk at
// a time, from the cadence of the process reading or writing samples.
// One ring is used per direction: the engine pushes received chunks into
// the receive ring and pops chunks for transmission from the transmit ring.
//
// Every operation copies in bulk while holding the ring's own lock; the
// lock is never held while waiting for data or space.
package buffer

import (
	"fmt"
	"sync"

	"github.com/cariboulabs/smistream/pkg"
)

// Ring depth limits, in chunks.
const (
	MIN_CHUNK_MULT = 2
	MAX_CHUNK_MULT = 32
)

// Ring is a fixed-capacity byte FIFO.  0 <= Len() <= Cap() always holds.
type Ring struct {
	mu   sync.Mutex
	buf  []byte // storage; capacity never changes
	head int    // location of the oldest byte
	n    int    // bytes stored
}

// New returns an empty ring holding up to capacity bytes.
func New(capacity int) *Ring {
	if capacity < 0 {
		capacity = 0
	}
	return &Ring{buf: make([]byte, capacity)}
}

// NewChunked returns a ring holding exactly multiplier chunks of chunkSize
// bytes.  The multiplier must be in MIN_CHUNK_MULT...MAX_CHUNK_MULT.
func NewChunked(multiplier, chunkSize int) (*Ring, error) {
	if multiplier < MIN_CHUNK_MULT || multiplier > MAX_CHUNK_MULT {
		return nil, fmt.Errorf("buffer: chunk multiplier %d not in %d...%d: %w",
			multiplier, MIN_CHUNK_MULT, MAX_CHUNK_MULT, pkg.ErrInvalidArgument)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("buffer: chunk size %d: %w", chunkSize, pkg.ErrInvalidArgument)
	}
	return New(multiplier * chunkSize), nil
}

// Push copies as much of p as fits, with wraparound, and returns the
// number of bytes copied.  It never blocks and never grows the ring.
func (r *Ring) Push(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := len(r.buf)
	n := size - r.n
	if n > len(p) {
		n = len(p)
	}
	if n == 0 {
		return 0
	}
	tail := (r.head + r.n) % size
	c := copy(r.buf[tail:], p[:n])
	copy(r.buf, p[c:n])
	r.n += n
	return n
}

// Pop copies up to len(p) of the oldest bytes into p and returns the
// number of bytes copied.  It never blocks.
func (r *Ring) Pop(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.n
	if n > len(p) {
		n = len(p)
	}
	if n == 0 {
		return 0
	}
	c := copy(p[:n], r.buf[r.head:])
	copy(p[c:n], r.buf)
	r.head = (r.head + n) % len(r.buf)
	r.n -= n
	if r.n == 0 {
		r.head = 0
	}
	return n
}

// Len returns the number of bytes stored.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the fixed capacity in bytes.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// AvailableSpace returns the number of bytes Push can accept.
func (r *Ring) AvailableSpace() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.n
}

// IsEmpty reports whether Len() == 0.
func (r *Ring) IsEmpty() bool {
	return r.Len() == 0
}

// IsFull reports whether Len() == Cap().
func (r *Ring) IsFull() bool {
	return r.AvailableSpace() == 0
}

// Reset drops all buffered content.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.n = 0
}
