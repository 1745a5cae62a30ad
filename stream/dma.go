package stream

// Bounce is the cyclic staging buffer shared with the transfer engine: a
// fixed number of equally sized slots, each holding one chunk.
type Bounce struct {
	buf   []byte
	chunk int
}

// NewBounce allocates BOUNCE_SLOTS slots of chunk bytes.
func NewBounce(chunk int) *Bounce {
	return &Bounce{buf: make([]byte, BOUNCE_SLOTS*chunk), chunk: chunk}
}

// Slot returns the chunk-sized view of slot i mod BOUNCE_SLOTS.
func (b *Bounce) Slot(i int) []byte {
	off := (i % BOUNCE_SLOTS) * b.chunk
	return b.buf[off : off+b.chunk : off+b.chunk]
}

// Slots returns the number of slots.
func (b *Bounce) Slots() int { return BOUNCE_SLOTS }

// ChunkSize returns the size of one slot in bytes.
func (b *Bounce) ChunkSize() int { return b.chunk }

// Controller is a slot-completion source.  It moves data between the bus
// engine and the slots of a Bounce, one slot after the other, wrapping
// around, and calls complete once for every slot it finishes.  complete
// is never called concurrently with itself.
//
// A Controller may fire completions from a DMA callback or from its own
// polling goroutine; the engine does not care which.
type Controller interface {
	// StartCyclic begins a cyclic transfer over all slots of b, starting
	// at slot 0.
	StartCyclic(dir Direction, b *Bounce, complete func()) error

	// TerminateSync stops the transfer.  When it returns, no call to
	// complete is in progress and none will follow.
	TerminateSync() error
}

// pender is implemented by controllers that can report how many slot
// completions are queued but not yet handed to the engine.
type pender interface {
	Pending() int
}
