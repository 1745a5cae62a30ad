// Interface to the Broadcom Secondary Memory Interface (SMI) bus engine.
//
// The SMI is a parallel-bus peripheral on the Raspberry Pi SoC.  It moves
// 8, 9, 16 or 18 bit words between its data FIFO and an external device
// (here, the radio FPGA), either by programmed I/O through the data
// register or by DMA requests raised on DREQ 4.
//
// The registers are reached through a Regs backend: on Linux the
// register window is mmap()ed from /dev/mem (see OpenMem); tests and the
// --simulate mode of the smistream tool use Sim, a software model of the
// engine's enable / active handshake.
//
// A transaction is started by writing the transfer length to SMI_L and
// setting ENABLE then START in SMI_CS.  The engine raises ACTIVE while the
// transfer runs.  Direction and channel selection on the external device
// are encoded on the SMI address lines (SMI_A), which must not change
// while ACTIVE is set.
package smi

import (
	"fmt"
	"sync"

	"github.com/cariboulabs/smistream/pkg"
)

const (
	PERI_BASE_PI1    = 0x20000000 // peripheral base on BCM2835 (Pi 1, Zero)
	PERI_BASE_PI3    = 0x3F000000 // peripheral base on BCM2836/7 (Pi 2, 3)
	PERI_BASE_PI4    = 0xFE000000 // peripheral base on BCM2711 (Pi 4)
	SMI_BASE_OFFSET  = 0x600000   // offset of the SMI block from the peripheral base
	SMI_REGLEN       = 0x44       // size of the SMI register block in bytes
	DEFAULT_ITER     = 1000000    // default busy-wait bound, in register polls
	DEFAULT_ACT_ITER = 10000      // default bound when waiting for ACTIVE after START
)

// SMI register offsets
const (
	SMI_CS   = 0x00 // control & status
	SMI_L    = 0x04 // transfer length, in bus transfers
	SMI_A    = 0x08 // address lines [5:0] and device number [9:8]
	SMI_D    = 0x0c // data FIFO
	SMI_DSR0 = 0x10 // read settings, device 0
	SMI_DSW0 = 0x14 // write settings, device 0
	SMI_DSR1 = 0x18 // read settings, device 1
	SMI_DSW1 = 0x1c // write settings, device 1
	SMI_DSR2 = 0x20 // read settings, device 2
	SMI_DSW2 = 0x24 // write settings, device 2
	SMI_DSR3 = 0x28 // read settings, device 3
	SMI_DSW3 = 0x2c // write settings, device 3
	SMI_DMC  = 0x30 // DMA control
	SMI_DCS  = 0x34 // direct-mode control & status
	SMI_DCA  = 0x38 // direct-mode address
	SMI_DCD  = 0x3c // direct-mode data
	SMI_FD   = 0x40 // FIFO debug: fill count [5:0], peak level [13:8]
)

// SMI_CS bits
const (
	SMICS_ENABLE = 1 << 0  // engine enabled
	SMICS_DONE   = 1 << 1  // transfer complete
	SMICS_ACTIVE = 1 << 2  // transfer in progress (read only)
	SMICS_START  = 1 << 3  // start a transfer (self clearing)
	SMICS_CLEAR  = 1 << 4  // clear the data FIFO (self clearing)
	SMICS_WRITE  = 1 << 5  // 1: write to device, 0: read from device
	SMICS_TEEN   = 1 << 8  // tear effect mode enable
	SMICS_INTD   = 1 << 9  // interrupt on DONE
	SMICS_INTT   = 1 << 10 // interrupt on tear
	SMICS_INTR   = 1 << 11 // interrupt on RX
	SMICS_PVMODE = 1 << 12 // pixel valve mode
	SMICS_SETERR = 1 << 13 // settings changed while active
	SMICS_PXLDAT = 1 << 14 // pack data into 32-bit FIFO words
	SMICS_EDREQ  = 1 << 15 // external DREQ received
	SMICS_AFERR  = 1 << 25 // AXI FIFO error
	SMICS_TXW    = 1 << 26 // TX FIFO needs writing
	SMICS_RXR    = 1 << 27 // RX FIFO needs reading
	SMICS_TXD    = 1 << 28 // TX FIFO can accept data
	SMICS_RXD    = 1 << 29 // RX FIFO contains data
	SMICS_TXE    = 1 << 30 // TX FIFO empty
	SMICS_RXF    = 1 << 31 // RX FIFO full
)

const (
	SMIA_ADDR_MASK = 0x3f // address bits in SMI_A
	SMIFD_FCNT     = 0x3f // FIFO fill count bits in SMI_FD
)

// Regs is the raw register backend of the bus engine.  Offsets are byte
// offsets from the start of the SMI block.  There is no validation: callers
// are responsible for correct sequencing.
type Regs interface {
	Read(offset uint32) uint32
	Write(offset uint32, value uint32)
}

// Bus mediates all access to the SMI control, status and length registers.
type Bus struct {
	regs       Regs
	Iterations int // bound for DisableAndWait and Program busy-waits

	mu     sync.Mutex
	static *Settings // last static configuration written through SetSettings
}

// New returns a Bus on top of the given register backend.
func New(regs Regs) *Bus {
	return &Bus{regs: regs, Iterations: DEFAULT_ITER}
}

// ReadReg reads the register at offset.
func (b *Bus) ReadReg(offset uint32) uint32 {
	return b.regs.Read(offset)
}

// WriteReg writes value to the register at offset.
func (b *Bus) WriteReg(offset uint32, value uint32) {
	b.regs.Write(offset, value)
}

// WaitWhile polls cond up to iterations times, without sleeping, and
// reports whether cond cleared before the bound was reached.
func WaitWhile(cond func() bool, iterations int) bool {
	for t := iterations; t > 0; t-- {
		if !cond() {
			return true
		}
	}
	return false
}

// IsActive reports whether a transfer is in progress.
func (b *Bus) IsActive() bool {
	return b.regs.Read(SMI_CS)&SMICS_ACTIVE != 0
}

// IsEnabled reports whether the engine is enabled.
func (b *Bus) IsEnabled() bool {
	return b.regs.Read(SMI_CS)&SMICS_ENABLE != 0
}

// DisableAndWait clears ENABLE and WRITE, then waits for the engine to
// report disabled.  A timeout is reported, not retried.
func (b *Bus) DisableAndWait() error {
	cs := b.regs.Read(SMI_CS) &^ (SMICS_ENABLE | SMICS_WRITE | SMICS_START)
	b.regs.Write(SMI_CS, cs)
	if !WaitWhile(b.IsEnabled, b.Iterations) {
		pkg.LogWarn(pkg.ComponentBus, "disable timed out",
			"cs", fmt.Sprintf("%08x", b.regs.Read(SMI_CS)), "iterations", b.Iterations)
		return fmt.Errorf("smi: disable: %w", pkg.ErrBusTimeout)
	}
	return nil
}

// Program loads the transfer length and enables the engine for a read
// (write == false) or write transfer, clearing the FIFO.  It waits for
// the engine to report enabled, which is how it acknowledges the new
// configuration.  The transfer itself is started by Refresh.
func (b *Bus) Program(write bool, units uint32) error {
	b.regs.Write(SMI_L, units)
	cs := b.regs.Read(SMI_CS) &^ (SMICS_WRITE | SMICS_START)
	cs |= SMICS_ENABLE
	if write {
		cs |= SMICS_WRITE
	}
	b.regs.Write(SMI_CS, cs)
	if !WaitWhile(func() bool { return !b.IsEnabled() }, b.Iterations) {
		pkg.LogWarn(pkg.ComponentBus, "enable not acknowledged", "write", write, "units", units, "iterations", b.Iterations)
		return fmt.Errorf("smi: program: %w", pkg.ErrBusTimeout)
	}
	b.regs.Write(SMI_CS, cs|SMICS_CLEAR)
	return nil
}

// Refresh rewrites the transfer length and sets START so the engine keeps
// moving data without waiting for a new command.
func (b *Bus) Refresh(units uint32) {
	b.regs.Write(SMI_L, units)
	b.regs.Write(SMI_CS, b.regs.Read(SMI_CS)|SMICS_START)
}

// WaitActive waits up to iterations polls for ACTIVE to assert.
func (b *Bus) WaitActive(iterations int) bool {
	return WaitWhile(func() bool { return !b.IsActive() }, iterations)
}

// SetAddress drives the SMI address lines.
func (b *Bus) SetAddress(addr uint32) {
	a := b.regs.Read(SMI_A) &^ SMIA_ADDR_MASK
	b.regs.Write(SMI_A, a|(addr&SMIA_ADDR_MASK))
}

// Address returns the current value of the SMI address lines.
func (b *Bus) Address() uint32 {
	return b.regs.Read(SMI_A) & SMIA_ADDR_MASK
}

// FIFOCount returns the number of words in the data FIFO.
func (b *Bus) FIFOCount() int {
	return int(b.regs.Read(SMI_FD) & SMIFD_FCNT)
}

// Settings decodes the static timing configuration from the registers.
func (b *Bus) Settings() Settings {
	return decodeSettings(b.regs.Read(SMI_CS), b.regs.Read(SMI_DSR0), b.regs.Read(SMI_DSW0), b.regs.Read(SMI_DMC))
}

// SetSettings validates s, writes it to the registers and remembers it as
// the static configuration restored by RestoreSettings.
func (b *Bus) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeSettings(s)
	b.static = &s
	return nil
}

// RestoreSettings rewrites the last static configuration, if any, so an
// unrelated user of the bus finds it as it was configured.
func (b *Bus) RestoreSettings() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.static == nil {
		return
	}
	b.writeSettings(*b.static)
}

func (b *Bus) writeSettings(s Settings) {
	cs, dsr, dsw, dmc := s.encode()
	b.regs.Write(SMI_DSR0, dsr)
	b.regs.Write(SMI_DSW0, dsw)
	b.regs.Write(SMI_DMC, dmc)
	cur := b.regs.Read(SMI_CS) &^ (SMICS_PXLDAT | SMICS_START | SMICS_CLEAR)
	b.regs.Write(SMI_CS, cur|cs)
}
