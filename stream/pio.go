package stream

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cariboulabs/smistream/smi"
)

// PIOController is a polling slot-completion source for platforms where
// the DMA controller is not reachable.  A dedicated goroutine moves 32-bit
// words between the SMI data FIFO and the current slot by programmed I/O,
// and reports the slot complete once it is full (receive) or fully sent
// (transmit).  When the FIFO has nothing to move it sleeps for Interval.
type PIOController struct {
	bus      *smi.Bus
	Interval time.Duration

	mu     sync.Mutex
	done   chan struct{}
	exited chan struct{}
}

// NewPIOController returns a polling controller on bus.
func NewPIOController(bus *smi.Bus) *PIOController {
	return &PIOController{bus: bus, Interval: 100 * time.Microsecond}
}

// StartCyclic implements Controller.
func (c *PIOController) StartCyclic(dir Direction, b *Bounce, complete func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return errors.New("pio: transfer already running")
	}
	c.done = make(chan struct{})
	c.exited = make(chan struct{})
	go c.loop(dir, b, complete, c.done, c.exited)
	return nil
}

// TerminateSync implements Controller.
func (c *PIOController) TerminateSync() error {
	c.mu.Lock()
	done, exited := c.done, c.exited
	c.done, c.exited = nil, nil
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	close(done)
	<-exited
	return nil
}

// Pending implements pender; it reports the data FIFO fill level.
func (c *PIOController) Pending() int {
	return c.bus.FIFOCount()
}

func (c *PIOController) loop(dir Direction, b *Bounce, complete func(), done, exited chan struct{}) {
	defer close(exited)
	slot, pos := 0, 0
	for {
		select {
		case <-done:
			return
		default:
		}
		buf := b.Slot(slot)
		if dir == DevToMem {
			for pos < len(buf) && c.bus.ReadReg(smi.SMI_CS)&smi.SMICS_RXD != 0 {
				binary.LittleEndian.PutUint32(buf[pos:], c.bus.ReadReg(smi.SMI_D))
				pos += 4
			}
		} else {
			for pos < len(buf) && c.bus.ReadReg(smi.SMI_CS)&smi.SMICS_TXD != 0 {
				c.bus.WriteReg(smi.SMI_D, binary.LittleEndian.Uint32(buf[pos:]))
				pos += 4
			}
		}
		if pos < len(buf) {
			select {
			case <-done:
				return
			case <-time.After(c.Interval):
			}
			continue
		}
		complete()
		slot = (slot + 1) % b.Slots()
		pos = 0
	}
}
