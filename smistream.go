// smistream streams samples between the CaribouLite FPGA and a file.
//
// Usage:
//
//	smistream [--config FILE] [--state rx_a|rx_b|tx] [--file PATH] [--bytes N]
//	          [--simulate] [--chunk-rate R] [--multiplier M] [--log-level L]
//
// In rx states received bytes are written to the file (stdout by default);
// in tx the file (stdin by default) is read and queued for transmission.
// The run ends after --bytes bytes, at the end of the input, or on SIGINT
// or SIGTERM.  The number of dropped chunks is printed on exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/cariboulabs/smistream/pkg"
	"github.com/cariboulabs/smistream/smi"
	"github.com/cariboulabs/smistream/stream"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "smistream: %v\n", err)
		os.Exit(1)
	}
}

// device is the bus engine and its slot-completion source.
type device struct {
	bus *smi.Bus
	ctl stream.Controller
	sim *stream.SimController // nil on hardware
	mem io.Closer
}

func openDevice() (*device, error) {
	if Session.Simulate {
		sim := stream.NewSimController()
		return &device{bus: smi.New(smi.NewSim()), ctl: sim, sim: sim}, nil
	}
	mem, err := smi.OpenMem(Session.DevMem, Session.PeriBase+smi.SMI_BASE_OFFSET)
	if err != nil {
		return nil, err
	}
	bus := smi.New(mem)
	pio := stream.NewPIOController(bus)
	if Session.PollInterval > 0 {
		pio.Interval = Session.PollInterval
	}
	return &device{bus: bus, ctl: pio, mem: mem}, nil
}

func (d *device) Close() error {
	if d.mem == nil {
		return nil
	}
	return d.mem.Close()
}

func configureLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(Session.LogLevel)); err != nil {
		return fmt.Errorf("log level %q: %w", Session.LogLevel, pkg.ErrInvalidArgument)
	}
	format, err := pkg.ParseLogFormat(Session.LogFormat)
	if err != nil {
		return err
	}
	pkg.SetLogFormat(format)
	pkg.SetLogLevel(level)
	return nil
}

func run(args []string) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	configFile, _ := fs.GetString("config")

	setDefaultConfig()
	found, err := loadConfig(viper.New(), configFile)
	if err != nil {
		return err
	}
	if err := applyFlags(fs); err != nil {
		return err
	}
	if err := configureLogging(); err != nil {
		return err
	}
	if !found {
		pkg.LogWarn(pkg.ComponentConfig, "no smistream.toml found; using defaults")
	}

	state, err := stream.ParseState(Session.State)
	if err != nil {
		return err
	}
	if state == stream.Idle {
		return fmt.Errorf("state must be rx_a, rx_b or tx: %w", pkg.ErrInvalidArgument)
	}

	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	s, err := stream.Open(dev.bus, dev.ctl, StreamConfig)
	if err != nil {
		return err
	}
	if err := s.SetSettings(BusSettings); err != nil {
		s.Close()
		return err
	}

	var f *os.File
	switch {
	case Session.File == "-" && state == stream.Tx:
		f = os.Stdin
	case Session.File == "-":
		f = os.Stdout
	case state == stream.Tx:
		f, err = os.Open(Session.File)
	default:
		f, err = os.Create(Session.File)
	}
	if err != nil {
		s.Close()
		return err
	}
	defer f.Close()

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if dev.sim != nil {
		g.Go(func() error { return dev.sim.Run(ctx, Session.ChunkRate) })
	}
	if err := s.SetState(state); err != nil {
		cancel()
		g.Wait()
		s.Close()
		return err
	}
	g.Go(func() error {
		defer cancel()
		if state == stream.Tx {
			return transmit(ctx, s, f, Session.Bytes)
		}
		return receive(ctx, s, f, Session.Bytes)
	})

	err = g.Wait()
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	fmt.Fprintf(os.Stderr, "dropped chunks: %d\n", s.Dropped())
	return err
}

// interrupted reports whether err only says the run was cancelled.
func interrupted(ctx context.Context, err error) bool {
	return errors.Is(err, pkg.ErrInterrupted) && ctx.Err() != nil
}

// receive copies received bytes to w until limit bytes (0: unlimited) were
// copied or ctx is done.
func receive(ctx context.Context, s *stream.Instance, w io.Writer, limit int64) error {
	buf := make([]byte, s.NativeChunkSize())
	var total int64
	for limit == 0 || total < limit {
		p := buf
		if limit > 0 && limit-total < int64(len(p)) {
			p = p[:limit-total]
		}
		n, err := s.ReadContext(ctx, p)
		if err != nil {
			if interrupted(ctx, err) {
				return nil
			}
			return err
		}
		if s.Discontinuity() {
			pkg.LogWarn(pkg.ComponentStream, "receive discontinuity", "offset", total)
		}
		if _, err := w.Write(p[:n]); err != nil {
			return err
		}
		total += int64(n)
	}
	pkg.LogInfo(pkg.ComponentStream, "received", "bytes", total)
	return nil
}

// transmit queues bytes read from r until limit bytes (0: unlimited) were
// queued, r is exhausted, or ctx is done, then waits for the transmit ring
// to drain.  The engine only sends whole chunks, so a short final chunk is
// padded with zeros.
func transmit(ctx context.Context, s *stream.Instance, r io.Reader, limit int64) error {
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	buf := make([]byte, s.NativeChunkSize())
	var total int64
	for {
		n, rerr := r.Read(buf)
		for p := buf[:n]; len(p) > 0; {
			m, err := s.WriteContext(ctx, p)
			if err != nil {
				if interrupted(ctx, err) {
					return nil
				}
				return err
			}
			p = p[m:]
			total += int64(m)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	chunk := int64(s.NativeChunkSize())
	if rem := total % chunk; rem != 0 {
		pad := make([]byte, chunk-rem)
		pkg.LogInfo(pkg.ComponentStream, "padding final chunk", "bytes", len(pad))
		for p := pad; len(p) > 0; {
			m, err := s.WriteContext(ctx, p)
			if err != nil {
				if interrupted(ctx, err) {
					return nil
				}
				return err
			}
			p = p[m:]
		}
	}
	pkg.LogInfo(pkg.ComponentStream, "queued", "bytes", total)
	for s.Queued() >= int(chunk) {
		if _, err := s.WaitReady(ctx, stream.Writable); err != nil {
			if interrupted(ctx, err) {
				return nil
			}
			return err
		}
	}
	return nil
}
