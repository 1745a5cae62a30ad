package main

// Peek/Poke SMI registers
//
// Usage:
//
//    pk [--devmem PATH] [--peri-base ADDR] REG [VALUE]
//
// REG is a register name (see showreg) or a byte offset into the SMI
// block.  Without VALUE the register is read; with VALUE it is written
// and read back.  Numbers may be given in decimal, 0x hex or 0 octal.

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/cariboulabs/smistream/smi"
)

// resolve accepts a register name or a word-aligned offset inside the
// register block.
func resolve(name string) (smi.Register, error) {
	if r, ok := smi.Lookup(name); ok {
		return r, nil
	}
	off, err := strconv.ParseUint(name, 0, 32)
	if err != nil {
		return smi.Register{}, fmt.Errorf("unknown register %q", name)
	}
	if off%4 != 0 || off >= smi.SMI_REGLEN {
		return smi.Register{}, fmt.Errorf("offset 0x%x is not a register", off)
	}
	for _, r := range smi.Registers {
		if uint64(r.Offset) == off {
			return r, nil
		}
	}
	return smi.Register{Name: fmt.Sprintf("0x%02x", off), Offset: uint32(off), Mode: "rw"}, nil
}

// peekPoke performs one access and reports it on w.
func peekPoke(w io.Writer, bus *smi.Bus, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("need REG [VALUE]")
	}
	r, err := resolve(args[0])
	if err != nil {
		return err
	}
	if len(args) == 2 {
		if r.Mode == "r" {
			return fmt.Errorf("%s is read only", r.Name)
		}
		v, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("bad value %q", args[1])
		}
		bus.WriteReg(r.Offset, uint32(v))
	}
	fmt.Fprintf(w, "%-4s (0x%02x) = 0x%08x\n", r.Name, r.Offset, bus.ReadReg(r.Offset))
	return nil
}

func main() {
	fs := pflag.NewFlagSet("pk", pflag.ExitOnError)
	devmem := fs.String("devmem", "/dev/mem", "memory device")
	peri := fs.Int64("peri-base", smi.PERI_BASE_PI4, "physical peripheral base address")
	fs.Parse(os.Args[1:])

	mem, err := smi.OpenMem(*devmem, *peri+smi.SMI_BASE_OFFSET)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pk: %v\n", err)
		os.Exit(1)
	}
	defer mem.Close()
	if err := peekPoke(os.Stdout, smi.New(mem), fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "pk: %v\n", err)
		mem.Close()
		os.Exit(2)
	}
}
