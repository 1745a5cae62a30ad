package main

// Show one or more SMI registers at repeated intervals.
//
// Usage:
//
//    showreg [--devmem PATH] [--peri-base ADDR] [--count K] N REGNAME1 M1 REGNAME2 M2 ...
//
// where
//  - N is the number of milliseconds to wait between burst reads of the
//    registers
//  - REGNAMEi is the name of a register (CS, L, A, D, DSR0, ..., FD), with
//    or without the SMI_ prefix
//  - Mi is the number of reads to do in a burst from the REGNAMEi
//
// With --count, showreg stops after K bursts; otherwise it runs until
// interrupted.

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/cariboulabs/smistream/smi"
)

type watch struct {
	reg   smi.Register
	burst int
}

func parseWatches(args []string) (time.Duration, []watch, error) {
	if len(args) < 3 || len(args)%2 == 0 {
		return 0, nil, fmt.Errorf("need N REGNAME M [REGNAME M ...]")
	}
	ms, err := strconv.Atoi(args[0])
	if err != nil || ms < 0 {
		return 0, nil, fmt.Errorf("bad interval %q", args[0])
	}
	var ws []watch
	for i := 1; i < len(args); i += 2 {
		r, ok := smi.Lookup(args[i])
		if !ok {
			return 0, nil, fmt.Errorf("unknown register %q", args[i])
		}
		m, err := strconv.Atoi(args[i+1])
		if err != nil || m < 1 {
			return 0, nil, fmt.Errorf("bad burst count %q for %s", args[i+1], r.Name)
		}
		ws = append(ws, watch{r, m})
	}
	return time.Duration(ms) * time.Millisecond, ws, nil
}

// show prints one burst of every watched register as a single line.
func show(w io.Writer, bus *smi.Bus, ws []watch) {
	var b strings.Builder
	for i, wt := range ws {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(wt.reg.Name)
		b.WriteByte(':')
		for j := 0; j < wt.burst; j++ {
			fmt.Fprintf(&b, " %08x", bus.ReadReg(wt.reg.Offset))
		}
	}
	b.WriteByte('\n')
	io.WriteString(w, b.String())
}

func main() {
	fs := pflag.NewFlagSet("showreg", pflag.ExitOnError)
	devmem := fs.String("devmem", "/dev/mem", "memory device")
	peri := fs.Int64("peri-base", smi.PERI_BASE_PI4, "physical peripheral base address")
	count := fs.Int("count", 0, "number of bursts; 0 runs until interrupted")
	fs.Parse(os.Args[1:])

	interval, ws, err := parseWatches(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "showreg: %v\n", err)
		fs.Usage()
		os.Exit(2)
	}
	mem, err := smi.OpenMem(*devmem, *peri+smi.SMI_BASE_OFFSET)
	if err != nil {
		fmt.Fprintf(os.Stderr, "showreg: %v\n", err)
		os.Exit(1)
	}
	defer mem.Close()
	bus := smi.New(mem)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	t := time.NewTicker(max(interval, time.Millisecond))
	defer t.Stop()
	for n := 0; *count == 0 || n < *count; n++ {
		show(os.Stdout, bus, ws)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
