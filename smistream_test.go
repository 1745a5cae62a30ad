package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/cariboulabs/smistream/pkg"
	"github.com/cariboulabs/smistream/smi"
	"github.com/cariboulabs/smistream/stream"
)

const testConfigFile = `
[stream]
chunk_multiplier = 12
addr_dir_offset = 1

[smi]
data_width = 1
read_strobe_time = 9

[session]
state = "tx"
bytes = 4096
poll_interval = "250us"
`

func TestLoadConfig(t *testing.T) {
	setDefaultConfig()
	path := filepath.Join(t.TempDir(), "smistream.toml")
	if err := os.WriteFile(path, []byte(testConfigFile), 0o644); err != nil {
		t.Fatal(err)
	}
	found, err := loadConfig(viper.New(), path)
	if err != nil || !found {
		t.Fatalf("loadConfig = %v, %v", found, err)
	}

	if StreamConfig.ChunkMultiplier != 12 || StreamConfig.AddrDirOffset != 1 {
		t.Errorf("[stream] not applied: %+v", StreamConfig)
	}
	if StreamConfig.AddrChOffset != 3 || StreamConfig.ChunkSize != stream.NATIVE_CHUNK_SIZE {
		t.Errorf("[stream] defaults lost: %+v", StreamConfig)
	}
	if BusSettings.DataWidth != smi.WIDTH_16BIT || BusSettings.ReadStrobeTime != 9 {
		t.Errorf("[smi] not applied: %+v", BusSettings)
	}
	if BusSettings.WriteStrobeTime != 3 {
		t.Errorf("[smi] defaults lost: %+v", BusSettings)
	}
	if Session.State != "tx" || Session.Bytes != 4096 || Session.PollInterval != 250*time.Microsecond {
		t.Errorf("[session] not applied: %+v", Session)
	}
	if Session.DevMem != "/dev/mem" {
		t.Errorf("[session] defaults lost: %+v", Session)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	setDefaultConfig()
	if _, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("loadConfig of a named missing file succeeded")
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	setDefaultConfig()
	Session.State = "tx"
	StreamConfig.ChunkMultiplier = 12

	fs := newFlagSet()
	if err := fs.Parse([]string{"--state", "rx_b", "-n", "100", "--simulate"}); err != nil {
		t.Fatal(err)
	}
	if err := applyFlags(fs); err != nil {
		t.Fatal(err)
	}
	if Session.State != "rx_b" || Session.Bytes != 100 || !Session.Simulate {
		t.Errorf("flags not applied: %+v", Session)
	}
	if StreamConfig.ChunkMultiplier != 12 {
		t.Errorf("unset --multiplier overrode the file value: %d", StreamConfig.ChunkMultiplier)
	}
}

func TestConfigureLogging(t *testing.T) {
	defer pkg.SetLogLevel(pkg.GetLogLevel())
	setDefaultConfig()
	Session.LogLevel = "debug"
	if err := configureLogging(); err != nil {
		t.Fatalf("configureLogging: %v", err)
	}
	Session.LogLevel = "loud"
	if err := configureLogging(); !errors.Is(err, pkg.ErrInvalidArgument) {
		t.Errorf("configureLogging(loud) = %v, want ErrInvalidArgument", err)
	}
	Session.LogLevel = "warn"
	Session.LogFormat = "xml"
	if err := configureLogging(); !errors.Is(err, pkg.ErrInvalidArgument) {
		t.Errorf("configureLogging(xml) = %v, want ErrInvalidArgument", err)
	}
}

func openSim(t *testing.T, state stream.State) (*stream.Instance, *stream.SimController) {
	t.Helper()
	cfg := stream.DefaultConfig()
	cfg.ChunkSize = 256
	cfg.BusyWaitIterations = 1000
	ctl := stream.NewSimController()
	s, err := stream.Open(smi.New(smi.NewSim()), ctl, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.SetState(state); err != nil {
		t.Fatal(err)
	}
	return s, ctl
}

func TestReceiveLimit(t *testing.T) {
	s, ctl := openSim(t, stream.RxA)
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.Run(ctx, 5000) })

	var out bytes.Buffer
	g.Go(func() error {
		defer cancel()
		return receive(ctx, s, &out, 1000)
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if out.Len() != 1000 {
		t.Errorf("received %d bytes, want 1000", out.Len())
	}
}

func TestReceiveCancelled(t *testing.T) {
	s, _ := openSim(t, stream.RxB)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := receive(ctx, s, &bytes.Buffer{}, 0); err != nil {
		t.Errorf("receive after cancellation = %v, want nil", err)
	}
}

func TestTransmitDrains(t *testing.T) {
	s, ctl := openSim(t, stream.Tx)
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.Run(ctx, 5000) })

	in := bytes.NewReader(make([]byte, 10*256))
	g.Go(func() error {
		defer cancel()
		return transmit(ctx, s, in, 0)
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if q := s.Queued(); q != 0 {
		t.Errorf("%d bytes left queued", q)
	}
	if sent := ctl.Sent(); sent < 10*256 {
		t.Errorf("sent %d bytes, want at least %d", sent, 10*256)
	}
}

func TestTransmitPartialChunk(t *testing.T) {
	s, ctl := openSim(t, stream.Tx)
	deadline, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	ctx, cancel := context.WithCancel(deadline)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.Run(ctx, 5000) })

	in := bytes.NewReader(make([]byte, 10*256+100))
	g.Go(func() error {
		defer cancel()
		return transmit(ctx, s, in, 0)
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if deadline.Err() != nil {
		t.Fatal("transmit did not return before the deadline")
	}
	if q := s.Queued(); q != 0 {
		t.Errorf("%d bytes left queued", q)
	}
	if sent := ctl.Sent(); sent < 11*256 {
		t.Errorf("sent %d bytes, want at least %d", sent, 11*256)
	}
}
