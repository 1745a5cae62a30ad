//go:build !linux

package smi

import (
	"fmt"

	"github.com/cariboulabs/smistream/pkg"
)

// Mem is unavailable outside Linux.
type Mem struct{}

// OpenMem always fails outside Linux.
func OpenMem(devmem string, base int64) (*Mem, error) {
	return nil, fmt.Errorf("smi: /dev/mem access: %w", pkg.ErrNotSupported)
}

func (m *Mem) Read(offset uint32) uint32         { return 0 }
func (m *Mem) Write(offset uint32, value uint32) {}
func (m *Mem) Close() error                      { return nil }
