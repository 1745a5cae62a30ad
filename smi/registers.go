package smi

import "strings"

// Register names one 32-bit SMI register for the register tools.
type Register struct {
	Name   string // short name, as in the BCM2835 peripheral manual
	Offset uint32 // byte offset from the SMI base
	Mode   string // "rw" or "r"
	Desc   string // human-readable description
}

// Registers lists the SMI register block in address order.
var Registers = []Register{
	{"CS", SMI_CS, "rw", "control & status"},
	{"L", SMI_L, "rw", "transfer length"},
	{"A", SMI_A, "rw", "address and device number"},
	{"D", SMI_D, "rw", "data FIFO"},
	{"DSR0", SMI_DSR0, "rw", "read settings, device 0"},
	{"DSW0", SMI_DSW0, "rw", "write settings, device 0"},
	{"DSR1", SMI_DSR1, "rw", "read settings, device 1"},
	{"DSW1", SMI_DSW1, "rw", "write settings, device 1"},
	{"DSR2", SMI_DSR2, "rw", "read settings, device 2"},
	{"DSW2", SMI_DSW2, "rw", "write settings, device 2"},
	{"DSR3", SMI_DSR3, "rw", "read settings, device 3"},
	{"DSW3", SMI_DSW3, "rw", "write settings, device 3"},
	{"DMC", SMI_DMC, "rw", "DMA control"},
	{"DCS", SMI_DCS, "rw", "direct-mode control & status"},
	{"DCA", SMI_DCA, "rw", "direct-mode address"},
	{"DCD", SMI_DCD, "rw", "direct-mode data"},
	{"FD", SMI_FD, "r", "FIFO debug"},
}

// Lookup finds a register by name, ignoring case and an optional "SMI_"
// prefix.
func Lookup(name string) (Register, bool) {
	name = strings.TrimPrefix(strings.ToUpper(name), "SMI_")
	for _, r := range Registers {
		if r.Name == name {
			return r, true
		}
	}
	return Register{}, false
}
