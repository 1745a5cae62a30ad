package main

import (
	"bytes"
	"testing"

	"github.com/cariboulabs/smistream/smi"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		in     string
		name   string
		offset uint32
		ok     bool
	}{
		{"CS", "CS", smi.SMI_CS, true},
		{"smi_dsr0", "DSR0", smi.SMI_DSR0, true},
		{"0x30", "DMC", smi.SMI_DMC, true},
		{"8", "A", smi.SMI_A, true},
		{"0x42", "", 0, false},
		{"0x44", "", 0, false},
		{"bogus", "", 0, false},
	}
	for _, tt := range tests {
		r, err := resolve(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("resolve(%q) error = %v", tt.in, err)
			continue
		}
		if tt.ok && (r.Name != tt.name || r.Offset != tt.offset) {
			t.Errorf("resolve(%q) = %s@0x%x, want %s@0x%x", tt.in, r.Name, r.Offset, tt.name, tt.offset)
		}
	}
}

func TestPeekPoke(t *testing.T) {
	bus := smi.New(smi.NewSim())
	var out bytes.Buffer
	if err := peekPoke(&out, bus, []string{"DSW0", "0x01030201"}); err != nil {
		t.Fatalf("poke: %v", err)
	}
	if got := bus.ReadReg(smi.SMI_DSW0); got != 0x01030201 {
		t.Errorf("DSW0 = 0x%x", got)
	}
	if want := "DSW0 (0x14) = 0x01030201\n"; out.String() != want {
		t.Errorf("output %q, want %q", out.String(), want)
	}

	out.Reset()
	if err := peekPoke(&out, bus, []string{"dsw0"}); err != nil {
		t.Fatalf("peek: %v", err)
	}
	if want := "DSW0 (0x14) = 0x01030201\n"; out.String() != want {
		t.Errorf("output %q, want %q", out.String(), want)
	}

	if err := peekPoke(&out, bus, []string{"FD", "1"}); err == nil {
		t.Error("poke of a read-only register succeeded")
	}
	if err := peekPoke(&out, bus, nil); err == nil {
		t.Error("missing register accepted")
	}
}
