package stream

import (
	"errors"
	"testing"

	"github.com/cariboulabs/smistream/pkg"
	"github.com/cariboulabs/smistream/smi"
)

type harness struct {
	s   *Instance
	bus *smi.Bus
	sim *smi.Sim
	ctl *SimController
}

func testConfig() Config {
	c := DefaultConfig()
	c.BusyWaitIterations = 1000
	c.ActiveWaitIterations = 100
	return c
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	sim := smi.NewSim()
	bus := smi.New(sim)
	ctl := NewSimController()
	s, err := Open(bus, ctl, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &harness{s: s, bus: bus, sim: sim, ctl: ctl}
}

func (h *harness) setState(t *testing.T, st State) {
	t.Helper()
	if err := h.s.SetState(st); err != nil {
		t.Fatalf("SetState(%v): %v", st, err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ChunkMultiplier = 40
	if _, err := Open(smi.New(smi.NewSim()), NewSimController(), cfg); !errors.Is(err, pkg.ErrInvalidArgument) {
		t.Fatalf("Open() = %v, want ErrInvalidArgument", err)
	}
	if _, err := Open(nil, NewSimController(), testConfig()); !errors.Is(err, pkg.ErrInvalidArgument) {
		t.Fatalf("Open(nil bus) = %v, want ErrInvalidArgument", err)
	}
}

func TestReceiveFillsRing(t *testing.T) {
	// ten chunks fit in a sixteen-chunk ring
	cfg := testConfig()
	cfg.ChunkMultiplier = 16
	h := newHarness(t, cfg)
	h.setState(t, RxA)

	if n := h.ctl.Fire(10); n != 10 {
		t.Fatalf("Fire(10) delivered %d", n)
	}
	if got, want := h.s.rx.Load().Len(), 10*NATIVE_CHUNK_SIZE; got != want {
		t.Errorf("rx len = %d, want %d", got, want)
	}
	if d := h.s.Dropped(); d != 0 {
		t.Errorf("dropped = %d, want 0", d)
	}
	if ci := h.s.ChunkIndex(); ci != 10 {
		t.Errorf("chunk index = %d, want 10", ci)
	}

	buf := make([]byte, 3*NATIVE_CHUNK_SIZE)
	n, err := h.s.TryRead(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("TryRead = %d, %v", n, err)
	}
	for i, b := range buf {
		if b != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, b, byte(i))
		}
	}
}

func TestReceiveExactCapacity(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setState(t, RxA)
	h.ctl.Fire(6)
	if got, want := h.s.rx.Load().Len(), 6*NATIVE_CHUNK_SIZE; got != want {
		t.Errorf("rx len = %d, want %d", got, want)
	}
	if d := h.s.Dropped(); d != 0 {
		t.Errorf("dropped = %d, want 0", d)
	}
}

func TestReceiveOverrunDropsChunks(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setState(t, RxA)

	h.ctl.Fire(100)
	if d := h.s.Dropped(); d != 94 {
		t.Errorf("dropped = %d, want 94", d)
	}
	if got, want := h.s.rx.Load().Len(), 6*NATIVE_CHUNK_SIZE; got != want {
		t.Errorf("rx len = %d, want %d", got, want)
	}

	h.s.ResetDropped()
	if d := h.s.Dropped(); d != 0 {
		t.Errorf("dropped after reset = %d", d)
	}
}

func TestReceiveDrainedKeepsUp(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setState(t, RxB)
	buf := make([]byte, NATIVE_CHUNK_SIZE)
	for i := 0; i < 50; i++ {
		h.ctl.Fire(1)
		if n, err := h.s.TryRead(buf); err != nil || n != len(buf) {
			t.Fatalf("TryRead #%d = %d, %v", i, n, err)
		}
	}
	if d := h.s.Dropped(); d != 0 {
		t.Errorf("dropped = %d, want 0", d)
	}
}

func TestTransitionPassesThroughIdle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sim.Trace(true)

	h.setState(t, RxA)
	h.setState(t, Tx)
	if st := h.s.State(); st != Tx {
		t.Fatalf("state = %v, want tx", st)
	}

	idle := h.s.cfg.address(Idle)
	rxA := h.s.cfg.address(RxA)
	tx := h.s.cfg.address(Tx)
	want := []smi.Event{
		{Op: smi.OpAddress, Value: idle},
		{Op: smi.OpAddress, Value: rxA},
		{Op: smi.OpEnableRead},
		{Op: smi.OpDisable},
		{Op: smi.OpAddress, Value: idle},
		{Op: smi.OpAddress, Value: tx},
		{Op: smi.OpEnableWrite},
	}
	var got []smi.Event
	for _, ev := range h.sim.Events() {
		switch ev.Op {
		case smi.OpAddress:
			got = append(got, ev)
		case smi.OpEnableRead, smi.OpEnableWrite, smi.OpDisable:
			got = append(got, smi.Event{Op: ev.Op})
		}
	}
	if len(got) != len(want) {
		t.Fatalf("programming sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("programming sequence = %v, want %v", got, want)
		}
	}
	if h.ctl.Starts() != 2 || h.ctl.Stops() != 1 {
		t.Errorf("starts=%d stops=%d, want 2 and 1", h.ctl.Starts(), h.ctl.Stops())
	}
}

func TestSetStateIdempotent(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setState(t, RxA)
	h.setState(t, RxA)
	if n := h.ctl.Starts(); n != 1 {
		t.Errorf("engine started %d times, want 1", n)
	}
	h.setState(t, Idle)
	h.setState(t, Idle)
	if st := h.s.State(); st != Idle {
		t.Errorf("state = %v, want idle", st)
	}
	if h.ctl.Running() {
		t.Error("controller still running in idle")
	}
	if h.bus.IsEnabled() {
		t.Error("bus engine still enabled in idle")
	}
}

func TestSetStateInvalid(t *testing.T) {
	h := newHarness(t, testConfig())
	if err := h.s.SetState(State(9)); !errors.Is(err, pkg.ErrInvalidArgument) {
		t.Errorf("SetState(9) = %v, want ErrInvalidArgument", err)
	}
}

func TestSetStateStillActive(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setState(t, RxA)

	h.sim.SetStuckActive(true)
	err := h.s.SetState(Tx)
	if !errors.Is(err, pkg.ErrInvalidTransition) {
		t.Fatalf("SetState(tx) = %v, want ErrInvalidTransition", err)
	}
	if st := h.s.State(); st != RxA {
		t.Errorf("state = %v, want rx_a unchanged", st)
	}

	h.sim.SetStuckActive(false)
	h.sim.SetIdle()
	h.setState(t, Tx)
}

func TestSetStateBusRejectsEnable(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sim.SetRejectEnable(true)

	err := h.s.SetState(RxB)
	if !errors.Is(err, pkg.ErrInitFailed) || !errors.Is(err, pkg.ErrBusTimeout) {
		t.Fatalf("SetState(rx_b) = %v, want ErrInitFailed wrapping ErrBusTimeout", err)
	}
	if st := h.s.State(); st != Idle {
		t.Errorf("state = %v, want idle", st)
	}
	if a := h.bus.Address(); a != h.s.cfg.address(Idle) {
		t.Errorf("address = %#x, want idle selector", a)
	}
	if h.ctl.Starts() != 0 {
		t.Error("controller started although the bus rejected the configuration")
	}

	h.sim.SetRejectEnable(false)
	h.setState(t, RxB)
}

func TestSetStateControllerRejects(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ctl.Reject(true)
	if err := h.s.SetState(Tx); !errors.Is(err, pkg.ErrInitFailed) {
		t.Fatalf("SetState(tx) = %v, want ErrInitFailed", err)
	}
	if st := h.s.State(); st != Idle {
		t.Errorf("state = %v, want idle", st)
	}
	if h.bus.IsEnabled() {
		t.Error("bus engine left enabled after failed start")
	}
	h.ctl.Reject(false)
	h.setState(t, Tx)
}

func TestTransmitRefreshBatching(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setState(t, Tx)
	h.sim.Trace(true)

	lengths := func() int {
		n := 0
		for _, ev := range h.sim.Events() {
			if ev.Op == smi.OpLength {
				n++
			}
		}
		h.sim.ResetEvents()
		return n
	}

	h.ctl.Fire(SMI_TRANSFER_MULTIPLIER - 1)
	if n := lengths(); n != 0 {
		t.Errorf("%d length refreshes before the batch boundary, want 0", n)
	}
	h.ctl.Fire(1)
	if n := lengths(); n != 1 {
		t.Errorf("%d length refreshes at the batch boundary, want 1", n)
	}

	h.sim.SetIdle()
	h.ctl.Fire(1)
	if n := lengths(); n != 1 {
		t.Errorf("%d length refreshes with the engine idle, want 1", n)
	}
	if !h.bus.IsActive() {
		t.Error("refresh did not restart the engine")
	}
}

func TestReceiveRefreshEverySlot(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setState(t, RxA)
	h.sim.Trace(true)
	h.ctl.Fire(5)
	n := 0
	for _, ev := range h.sim.Events() {
		if ev.Op == smi.OpLength {
			if ev.Value != NATIVE_CHUNK_SIZE {
				t.Errorf("length refresh = %d, want %d", ev.Value, NATIVE_CHUNK_SIZE)
			}
			n++
		}
	}
	if n != 5 {
		t.Errorf("%d length refreshes for 5 slots, want 5", n)
	}
}

func TestTransmitDrainsRing(t *testing.T) {
	h := newHarness(t, testConfig())
	chunk := make([]byte, NATIVE_CHUNK_SIZE)
	for i := range chunk {
		chunk[i] = 0xa5
	}
	for i := 0; i < 2; i++ {
		if n, err := h.s.TryWrite(chunk); err != nil || n != len(chunk) {
			t.Fatalf("TryWrite = %d, %v", n, err)
		}
	}
	h.setState(t, Tx)
	h.ctl.Fire(3)
	if l := h.s.tx.Load().Len(); l != 0 {
		t.Errorf("tx len = %d, want 0", l)
	}
	if d := h.s.Dropped(); d != 1 {
		t.Errorf("dropped = %d, want 1 for the underrun slot", d)
	}
	if slot := h.s.bounce.Slot(1); slot[0] != 0xa5 {
		t.Errorf("slot 1 not filled from the ring")
	}
	if sent := h.ctl.Sent(); sent != 3*NATIVE_CHUNK_SIZE {
		t.Errorf("sent = %d, want %d", sent, 3*NATIVE_CHUNK_SIZE)
	}
}

func TestFlushMarksDiscontinuity(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setState(t, RxA)
	h.ctl.Fire(2)

	if h.s.Discontinuity() {
		t.Fatal("discontinuity before flush")
	}
	if n, err := h.s.TryRead(nil); n != 0 || err != nil {
		t.Fatalf("flush read = %d, %v", n, err)
	}
	if !h.s.rx.Load().IsEmpty() {
		t.Error("rx ring not empty after flush")
	}
	if !h.s.Discontinuity() {
		t.Error("flush did not mark a discontinuity")
	}
	if h.s.Discontinuity() {
		t.Error("discontinuity not cleared by reading it")
	}
}

func TestSetChunkMultiplier(t *testing.T) {
	h := newHarness(t, testConfig())
	if err := h.s.SetChunkMultiplier(1); !errors.Is(err, pkg.ErrInvalidArgument) {
		t.Errorf("SetChunkMultiplier(1) = %v, want ErrInvalidArgument", err)
	}
	if err := h.s.SetChunkMultiplier(33); !errors.Is(err, pkg.ErrInvalidArgument) {
		t.Errorf("SetChunkMultiplier(33) = %v, want ErrInvalidArgument", err)
	}
	if err := h.s.SetChunkMultiplier(8); err != nil {
		t.Fatalf("SetChunkMultiplier(8): %v", err)
	}
	if m := h.s.ChunkMultiplier(); m != 8 {
		t.Errorf("ChunkMultiplier() = %d, want 8", m)
	}
	if c := h.s.rx.Load().Cap(); c != 8*NATIVE_CHUNK_SIZE {
		t.Errorf("rx capacity = %d", c)
	}

	h.setState(t, RxA)
	if err := h.s.SetChunkMultiplier(4); !errors.Is(err, pkg.ErrInvalidTransition) {
		t.Errorf("SetChunkMultiplier while streaming = %v, want ErrInvalidTransition", err)
	}
}

func TestSettingsControl(t *testing.T) {
	h := newHarness(t, testConfig())
	s := smi.DefaultSettings()
	s.DataWidth = smi.WIDTH_16BIT
	if err := h.s.SetSettings(s); err != nil {
		t.Fatalf("SetSettings: %v", err)
	}
	if got := h.s.Settings(); got != s {
		t.Errorf("Settings() = %+v, want %+v", got, s)
	}

	// 16-bit transfers halve the programmed length
	h.sim.Trace(true)
	h.setState(t, RxA)
	for _, ev := range h.sim.Events() {
		if ev.Op == smi.OpLength && ev.Value != NATIVE_CHUNK_SIZE/2 {
			t.Errorf("programmed length %d, want %d", ev.Value, NATIVE_CHUNK_SIZE/2)
		}
	}
	if err := h.s.SetSettings(smi.DefaultSettings()); !errors.Is(err, pkg.ErrInvalidTransition) {
		t.Errorf("SetSettings while streaming = %v, want ErrInvalidTransition", err)
	}
	h.setState(t, Idle)
	if got := h.s.Settings(); got != s {
		t.Errorf("settings not restored after stop: %+v", got)
	}
}

func TestControlSurface(t *testing.T) {
	h := newHarness(t, testConfig())
	if h.s.NativeChunkSize() != NATIVE_CHUNK_SIZE {
		t.Errorf("NativeChunkSize() = %d", h.s.NativeChunkSize())
	}
	if h.s.AddrDirOffset() != 2 || h.s.AddrChOffset() != 3 {
		t.Errorf("offsets = %d, %d", h.s.AddrDirOffset(), h.s.AddrChOffset())
	}
	if h.s.Config().ChunkMultiplier != 6 {
		t.Errorf("Config().ChunkMultiplier = %d", h.s.Config().ChunkMultiplier)
	}
}

func TestCloseForcesIdle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setState(t, Tx)
	if err := h.s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.ctl.Running() || h.bus.IsEnabled() {
		t.Error("transfer still running after Close")
	}
	if err := h.s.SetState(RxA); !errors.Is(err, pkg.ErrClosed) {
		t.Errorf("SetState after Close = %v, want ErrClosed", err)
	}
	if _, err := h.s.TryRead(make([]byte, 4)); !errors.Is(err, pkg.ErrClosed) {
		t.Errorf("TryRead after Close = %v, want ErrClosed", err)
	}
	if err := h.s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestCloseWithStuckEngine(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setState(t, RxA)
	h.sim.SetStuckActive(true)
	if err := h.s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := h.s.State(); st != Idle {
		t.Errorf("state after Close = %v, want idle", st)
	}
}
