package stream

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cariboulabs/smistream/pkg"
	"github.com/cariboulabs/smistream/smi"
)

// engine keeps the bus engine fed or drained through the cyclic bounce
// buffer.  It refers back to the Instance that owns it for the rings and
// counters; the Instance stops it before releasing them.
type engine struct {
	s      *Instance
	bus    *smi.Bus
	ctl    Controller
	bounce *Bounce

	mu      sync.Mutex // transaction lock: start and stop
	running atomic.Bool

	// set before running is raised; read-only on the completion path
	dir   Direction
	units uint32

	sinceRefresh int // completion path only
}

// start quiesces the bus engine, programs it for one chunk per transfer
// in direction dir, and starts the cyclic transfer.
func (e *engine) start(dir Direction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.bus.DisableAndWait(); err != nil {
		return fmt.Errorf("stream: start %s: %w: %w", dir, pkg.ErrInitFailed, err)
	}
	units := e.bus.Settings().TransferUnits(e.bounce.ChunkSize())
	if err := e.bus.Program(dir == MemToDev, units); err != nil {
		e.quiesce()
		return fmt.Errorf("stream: start %s: %w: %w", dir, pkg.ErrInitFailed, err)
	}

	e.dir = dir
	e.units = units
	e.sinceRefresh = 0
	e.s.chunkIndex.Store(0)
	e.running.Store(true)

	if err := e.ctl.StartCyclic(dir, e.bounce, e.complete); err != nil {
		e.running.Store(false)
		e.quiesce()
		return fmt.Errorf("stream: start %s: cyclic transfer: %w: %w", dir, pkg.ErrInitFailed, err)
	}

	e.bus.Refresh(units)
	if !e.bus.WaitActive(e.s.cfg.ActiveWaitIterations) {
		pkg.LogWarn(pkg.ComponentEngine, "engine did not report active after start", "dir", dir)
	}
	return nil
}

// stop terminates the cyclic transfer, disables the bus engine and puts
// back its static configuration.  Timeouts are logged, never returned:
// stop runs during teardown.
func (e *engine) stop() {
	e.mu.Lock()
	wasRunning := e.running.Swap(false)
	e.mu.Unlock()

	// TerminateSync waits for an in-flight completion, which may refresh
	// the bus; the transaction lock is not held across it.
	if wasRunning {
		if err := e.ctl.TerminateSync(); err != nil {
			pkg.LogWarn(pkg.ComponentEngine, "terminate cyclic transfer", "err", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.quiesce()
}

// quiesce disables the engine and restores the static configuration.
func (e *engine) quiesce() {
	if err := e.bus.DisableAndWait(); err != nil {
		pkg.LogWarn(pkg.ComponentEngine, "bus engine did not disable", "err", err)
	}
	e.bus.RestoreSettings()
}

// complete handles one finished slot.  It is the only writer of the
// receive ring and the only reader of the transmit ring.
func (e *engine) complete() {
	if !e.running.Load() {
		return
	}
	s := e.s
	idx := s.chunkIndex.Load()
	slot := e.bounce.Slot(int(idx % BOUNCE_SLOTS))
	chunk := len(slot)
	period := s.cfg.RxReportPeriod

	if e.dir == DevToMem {
		rx := s.rx.Load()
		if rx.AvailableSpace() >= chunk {
			rx.Push(slot)
		} else {
			s.dropped.Add(1)
		}
		e.sinceRefresh++
		if e.sinceRefresh >= s.cfg.RxRefreshInterval {
			e.bus.Refresh(e.units)
			e.sinceRefresh = 0
		}
		s.readable.Store(true)
	} else {
		tx := s.tx.Load()
		if tx.Len() >= chunk {
			tx.Pop(slot)
		} else {
			// the stale slot goes out again
			s.dropped.Add(1)
		}
		e.sinceRefresh++
		if e.sinceRefresh >= s.cfg.TxRefreshInterval || !e.bus.IsActive() {
			e.bus.Refresh(e.units)
			e.sinceRefresh = 0
		}
		s.writable.Store(true)
		period = s.cfg.TxReportPeriod
	}
	s.ready.signal()

	if period > 0 && idx%uint32(period) == 0 {
		pending := 0
		if p, ok := e.ctl.(pender); ok {
			pending = p.Pending()
		}
		pkg.LogDebug(pkg.ComponentEngine, "slot",
			"dir", e.dir,
			"chunk_index", idx,
			"slot", idx%BOUNCE_SLOTS,
			"dropped", s.dropped.Load(),
			"data", hex.EncodeToString(slot[:min(8, chunk)]),
			"pending", pending)
	}
	s.chunkIndex.Add(1)
}
