//go:build linux

package smi

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mem is the register window of the SMI block mmap()ed from /dev/mem.
type Mem struct {
	fd   int
	base int64
	mem  []byte // page-aligned mapping; registers start at off
	off  int
}

// OpenMem maps the SMI registers found at physical address base from the
// memory device devmem (normally /dev/mem).
func OpenMem(devmem string, base int64) (*Mem, error) {
	fd, err := unix.Open(devmem, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("smi: could not open %q: %w", devmem, err)
	}
	page := int64(unix.Getpagesize())
	pageAddr := base &^ (page - 1)
	off := int(base - pageAddr)
	size := (off + SMI_REGLEN + int(page) - 1) &^ (int(page) - 1)
	mem, err := unix.Mmap(fd, pageAddr, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("smi: could not mmap 0x%x: %w", base, err)
	}
	return &Mem{fd: fd, base: base, mem: mem, off: off}, nil
}

func (m *Mem) reg(offset uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&m.mem[m.off+int(offset)]))
}

// Read reads the 32-bit register at offset.
func (m *Mem) Read(offset uint32) uint32 {
	return atomic.LoadUint32(m.reg(offset))
}

// Write writes the 32-bit register at offset.
func (m *Mem) Write(offset uint32, value uint32) {
	atomic.StoreUint32(m.reg(offset), value)
}

// Close unmaps the registers and closes the memory device.
func (m *Mem) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	if cerr := unix.Close(m.fd); err == nil {
		err = cerr
	}
	return err
}
