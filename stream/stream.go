// Package stream moves fixed-size sample chunks between the SMI bus engine
// and a pair of ring buffers.
//
// An Instance owns a receive ring, a transmit ring and a four-slot bounce
// buffer.  A Controller reports each slot as complete; the engine then
// drains the slot into the receive ring or fills it from the transmit
// ring.  Which of the two happens, and on which channel, is decided by the
// Instance state: idle, rx_a, rx_b or tx.  Every change of state passes
// through idle so the bus engine is never reprogrammed mid-transfer.
//
// Readers and writers use Read, Write and their context and non-blocking
// variants.  Poll and WaitReady report readiness edges.
package stream

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cariboulabs/smistream/buffer"
	"github.com/cariboulabs/smistream/pkg"
	"github.com/cariboulabs/smistream/smi"
)

// Instance is one streaming device.  Its methods are safe for concurrent
// use.
type Instance struct {
	cfg    Config
	bus    *smi.Bus
	engine *engine
	bounce *Bounce

	mu     sync.Mutex // state transition lock
	state  State
	closed bool

	rx, tx atomic.Pointer[buffer.Ring]

	chunkIndex    atomic.Uint32
	dropped       atomic.Uint64
	readable      atomic.Bool
	writable      atomic.Bool
	discontinuity atomic.Bool

	ready *notifier
	done  chan struct{}
}

// Open validates cfg, allocates the rings and bounce buffer, and drives the
// selector lines to idle.  ctl supplies slot completions once a transfer
// is started.
func Open(bus *smi.Bus, ctl Controller, cfg Config) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bus == nil || ctl == nil {
		return nil, fmt.Errorf("stream: open: nil bus or controller: %w", pkg.ErrInvalidArgument)
	}
	bus.Iterations = cfg.BusyWaitIterations

	s := &Instance{
		cfg:    cfg,
		bus:    bus,
		bounce: NewBounce(cfg.ChunkSize),
		ready:  newNotifier(),
		done:   make(chan struct{}),
	}
	if err := s.allocRings(cfg.ChunkMultiplier); err != nil {
		return nil, err
	}
	s.engine = &engine{s: s, bus: bus, ctl: ctl, bounce: s.bounce}

	bus.SetAddress(cfg.address(Idle))
	s.writable.Store(true)

	pkg.LogInfo(pkg.ComponentStream, "opened",
		"chunk_size", cfg.ChunkSize,
		"chunk_multiplier", cfg.ChunkMultiplier,
		"addr_dir_offset", cfg.AddrDirOffset,
		"addr_ch_offset", cfg.AddrChOffset)
	return s, nil
}

func (s *Instance) allocRings(multiplier int) error {
	rx, err := buffer.NewChunked(multiplier, s.cfg.ChunkSize)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	tx, err := buffer.NewChunked(multiplier, s.cfg.ChunkSize)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	s.rx.Store(rx)
	s.tx.Store(tx)
	return nil
}

// Close forces the instance back to idle and wakes every blocked reader
// and writer with ErrInterrupted.  A bus timeout during the forced stop
// is logged and does not keep Close from completing.
func (s *Instance) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.setStateLocked(Idle); err != nil {
		pkg.LogWarn(pkg.ComponentStream, "close: forcing idle", "err", err)
		s.engine.stop()
		s.bus.SetAddress(s.cfg.address(Idle))
		s.state = Idle
	}
	s.closed = true
	close(s.done)
	s.ready.signal()
	pkg.LogInfo(pkg.ComponentStream, "closed", "dropped", s.dropped.Load())
	return nil
}

// State returns the current streaming state.
func (s *Instance) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState moves the instance to state next, passing through idle.
//
// If the bus engine is still active after the running transfer is
// stopped, SetState fails with ErrInvalidTransition and the state is left
// as it was; the caller may retry.  If the new transfer cannot be started
// the instance is left idle and the engine error is returned.
func (s *Instance) SetState(next State) error {
	if !next.valid() {
		return fmt.Errorf("stream: set state %d: %w", int(next), pkg.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return pkg.ErrClosed
	}
	return s.setStateLocked(next)
}

func (s *Instance) setStateLocked(next State) error {
	prev := s.state
	if next == prev {
		return nil
	}

	if prev != Idle {
		s.engine.stop()
		if s.bus.IsActive() {
			pkg.LogWarn(pkg.ComponentStream, "transfer still active after stop", "state", prev, "next", next)
			return fmt.Errorf("stream: %s -> %s: %w", prev, next, pkg.ErrInvalidTransition)
		}
	}

	s.bus.SetAddress(s.cfg.address(Idle))
	s.state = Idle
	if next == Idle {
		pkg.LogInfo(pkg.ComponentStream, "state", "from", prev, "to", next)
		return nil
	}

	s.bus.SetAddress(s.cfg.address(next))
	if err := s.engine.start(next.Direction()); err != nil {
		s.bus.SetAddress(s.cfg.address(Idle))
		pkg.LogError(pkg.ComponentStream, "start transfer", "state", next, "err", err)
		return err
	}
	s.state = next
	pkg.LogInfo(pkg.ComponentStream, "state", "from", prev, "to", next)
	return nil
}

// Settings returns the static bus timing configuration.
func (s *Instance) Settings() smi.Settings {
	return s.bus.Settings()
}

// SetSettings replaces the static bus timing configuration.  It is only
// allowed while idle.
func (s *Instance) SetSettings(settings smi.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return fmt.Errorf("stream: set settings in state %s: %w", s.state, pkg.ErrInvalidTransition)
	}
	return s.bus.SetSettings(settings)
}

// NativeChunkSize returns the number of bytes in one chunk.
func (s *Instance) NativeChunkSize() int {
	return s.cfg.ChunkSize
}

// ChunkMultiplier returns the ring depth in chunks.
func (s *Instance) ChunkMultiplier() int {
	return s.rx.Load().Cap() / s.cfg.ChunkSize
}

// SetChunkMultiplier reallocates both rings with room for n chunks.
// Buffered data is discarded.  It is only allowed while idle.
func (s *Instance) SetChunkMultiplier(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return fmt.Errorf("stream: set chunk multiplier in state %s: %w", s.state, pkg.ErrInvalidTransition)
	}
	if err := s.allocRings(n); err != nil {
		return err
	}
	s.cfg.ChunkMultiplier = n
	s.discontinuity.Store(true)
	s.ready.signal()
	return nil
}

// AddrDirOffset returns the address line carrying the direction, or -1.
func (s *Instance) AddrDirOffset() int { return s.cfg.AddrDirOffset }

// AddrChOffset returns the address line carrying the channel, or -1.
func (s *Instance) AddrChOffset() int { return s.cfg.AddrChOffset }

// Config returns the construction parameters in effect.
func (s *Instance) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Flush discards everything in the receive ring and marks a
// discontinuity.
func (s *Instance) Flush() {
	s.rx.Load().Reset()
	s.discontinuity.Store(true)
}

// Discontinuity reports whether received data was discarded since the last
// call, and clears the mark.
func (s *Instance) Discontinuity() bool {
	return s.discontinuity.Swap(false)
}

// Dropped returns the number of chunks dropped since the last reset.
func (s *Instance) Dropped() uint64 {
	return s.dropped.Load()
}

// ResetDropped zeroes the dropped-chunk counter.
func (s *Instance) ResetDropped() {
	s.dropped.Store(0)
}

// ChunkIndex returns the number of slots completed in the current
// transfer.
func (s *Instance) ChunkIndex() uint32 {
	return s.chunkIndex.Load()
}

// Queued returns the number of bytes waiting in the transmit ring.
func (s *Instance) Queued() int {
	return s.tx.Load().Len()
}

// Buffered returns the number of received bytes not yet read.
func (s *Instance) Buffered() int {
	return s.rx.Load().Len()
}
