package smi

import (
	"fmt"
	"sync"
)

// Op is a programming event observed by Sim.
type Op int

const (
	OpAddress     Op = iota // SMI_A written
	OpLength                // SMI_L written
	OpEnableRead            // ENABLE raised for a read from the device
	OpEnableWrite           // ENABLE raised for a write to the device
	OpDisable               // ENABLE cleared
	OpStart                 // START set while enabled
)

func (op Op) String() string {
	switch op {
	case OpAddress:
		return "address"
	case OpLength:
		return "length"
	case OpEnableRead:
		return "enable-read"
	case OpEnableWrite:
		return "enable-write"
	case OpDisable:
		return "disable"
	case OpStart:
		return "start"
	default:
		return "unknown"
	}
}

// Event is one traced programming event.
type Event struct {
	Op    Op
	Value uint32
}

func (e Event) String() string {
	return fmt.Sprintf("%s(0x%x)", e.Op, e.Value)
}

// Sim is a software model of the SMI bus engine.  It implements Regs and
// models the ENABLE / ACTIVE handshake, a data FIFO that always has data
// (reads) or room (writes) while a transfer is active, and a few faults
// for exercising the timeout paths.
type Sim struct {
	mu        sync.Mutex
	regs      [SMI_REGLEN / 4]uint32
	enabled   bool
	active    bool
	disableIn int // CS reads left before a requested disable takes effect

	disableLag   int
	stuckEnabled bool
	stuckActive  bool
	rejectEnable bool

	word    uint32 // next word returned from SMI_D
	written int    // words written to SMI_D
	fifo    uint32 // value reported in SMI_FD while reading

	tracing bool
	events  []Event
}

// NewSim returns a disabled, idle engine.
func NewSim() *Sim {
	return &Sim{fifo: 8}
}

// SetDisableLag makes ENABLE stay set for n CS reads after being cleared.
func (s *Sim) SetDisableLag(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disableLag = n
}

// SetStuckEnabled makes ENABLE ignore requests to clear it.
func (s *Sim) SetStuckEnabled(stuck bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuckEnabled = stuck
}

// SetStuckActive makes ACTIVE stay set across a disable.
func (s *Sim) SetStuckActive(stuck bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuckActive = stuck
	if stuck {
		s.active = true
	}
}

// SetRejectEnable makes ENABLE never assert.
func (s *Sim) SetRejectEnable(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectEnable = reject
}

// SetIdle drops ACTIVE as if the programmed length had run out.
func (s *Sim) SetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stuckActive {
		s.active = false
	}
}

// Trace turns event recording on or off.  Recorded events are kept.
func (s *Sim) Trace(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracing = on
}

// Events returns a copy of the recorded events.
func (s *Sim) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// ResetEvents discards the recorded events.
func (s *Sim) ResetEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// Written returns the number of words written to the data FIFO.
func (s *Sim) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *Sim) record(op Op, v uint32) {
	if s.tracing {
		s.events = append(s.events, Event{op, v})
	}
}

// Read implements Regs.
func (s *Sim) Read(offset uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch offset {
	case SMI_CS:
		if s.disableIn > 0 {
			s.disableIn--
			if s.disableIn == 0 {
				s.enabled = false
			}
		}
		cs := s.regs[SMI_CS/4] &^ (SMICS_ENABLE | SMICS_ACTIVE | SMICS_RXD | SMICS_TXD)
		if s.enabled {
			cs |= SMICS_ENABLE
		}
		if s.active {
			cs |= SMICS_ACTIVE
			if cs&SMICS_WRITE != 0 {
				cs |= SMICS_TXD
			} else {
				cs |= SMICS_RXD
			}
		}
		return cs
	case SMI_D:
		if !s.active || s.regs[SMI_CS/4]&SMICS_WRITE != 0 {
			return 0
		}
		w := s.word
		s.word++
		return w
	case SMI_FD:
		if s.active && s.regs[SMI_CS/4]&SMICS_WRITE == 0 {
			return s.fifo
		}
		return 0
	}
	if offset >= SMI_REGLEN {
		return 0
	}
	return s.regs[offset/4]
}

// Write implements Regs.
func (s *Sim) Write(offset uint32, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch offset {
	case SMI_CS:
		s.writeCS(value)
		return
	case SMI_D:
		if s.active && s.regs[SMI_CS/4]&SMICS_WRITE != 0 {
			s.written++
		}
		return
	case SMI_A:
		s.record(OpAddress, value&SMIA_ADDR_MASK)
	case SMI_L:
		s.record(OpLength, value)
	case SMI_FD:
		return
	}
	if offset < SMI_REGLEN {
		s.regs[offset/4] = value
	}
}

func (s *Sim) writeCS(v uint32) {
	prev := s.regs[SMI_CS/4]
	switch {
	case v&SMICS_ENABLE != 0 && prev&SMICS_ENABLE == 0:
		if v&SMICS_WRITE != 0 {
			s.record(OpEnableWrite, v)
		} else {
			s.record(OpEnableRead, v)
		}
		if !s.rejectEnable {
			s.enabled = true
			s.disableIn = 0
		}
	case v&SMICS_ENABLE == 0 && prev&SMICS_ENABLE != 0:
		s.record(OpDisable, v)
		if !s.stuckEnabled {
			if s.disableLag > 0 {
				s.disableIn = s.disableLag
			} else {
				s.enabled = false
			}
		}
		if !s.stuckActive {
			s.active = false
		}
	}
	if v&SMICS_START != 0 && s.enabled {
		s.record(OpStart, v)
		s.active = true
	}
	s.regs[SMI_CS/4] = v &^ (SMICS_START | SMICS_CLEAR | SMICS_ACTIVE)
}
