package stream

import (
	"fmt"

	"github.com/cariboulabs/smistream/buffer"
	"github.com/cariboulabs/smistream/pkg"
	"github.com/cariboulabs/smistream/smi"
)

const (
	BOUNCE_SLOTS            = 4     // slots in the cyclic bounce buffer
	NATIVE_CHUNK_SIZE       = 16384 // bytes per bounce slot
	SMI_TRANSFER_MULTIPLIER = 64    // tx slots between length refreshes
	RX_REPORT_PERIOD        = 100   // rx slots between diagnostic records
	TX_REPORT_PERIOD        = 111   // tx slots between diagnostic records
	MAX_ADDR_OFFSET         = 4     // highest SMI address line usable as a selector
)

// Config holds the construction parameters of an Instance.
type Config struct {
	ChunkMultiplier int `mapstructure:"chunk_multiplier" desc:"ring depth in chunks, 2...32"`

	AddrDirOffset int `mapstructure:"addr_dir_offset" desc:"SMI address line carrying the direction, 0...4, or -1 if unused"`

	AddrChOffset int `mapstructure:"addr_ch_offset" desc:"SMI address line carrying the channel select, 0...4, or -1 if unused"`

	ChunkSize int `mapstructure:"chunk_size" desc:"bytes per bounce-buffer slot; must be a multiple of 4"`

	BusyWaitIterations int `mapstructure:"busy_wait_iterations" desc:"register polls before a disable or enable is declared timed out"`

	ActiveWaitIterations int `mapstructure:"active_wait_iterations" desc:"register polls to wait for ACTIVE after starting a transfer"`

	RxRefreshInterval int `mapstructure:"rx_refresh_interval" desc:"rx slots between transfer-length refreshes"`

	TxRefreshInterval int `mapstructure:"tx_refresh_interval" desc:"tx slots between transfer-length refreshes (also refreshed whenever the engine goes idle)"`

	RxReportPeriod int `mapstructure:"rx_report_period" desc:"rx slots between diagnostic log records, 0 disables"`

	TxReportPeriod int `mapstructure:"tx_report_period" desc:"tx slots between diagnostic log records, 0 disables"`
}

// DefaultConfig returns the CaribouLite defaults.
func DefaultConfig() Config {
	return Config{
		ChunkMultiplier:      6,
		AddrDirOffset:        2,
		AddrChOffset:         3,
		ChunkSize:            NATIVE_CHUNK_SIZE,
		BusyWaitIterations:   smi.DEFAULT_ITER,
		ActiveWaitIterations: smi.DEFAULT_ACT_ITER,
		RxRefreshInterval:    1,
		TxRefreshInterval:    SMI_TRANSFER_MULTIPLIER,
		RxReportPeriod:       RX_REPORT_PERIOD,
		TxReportPeriod:       TX_REPORT_PERIOD,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("stream: "+format+": %w", append(args, pkg.ErrInvalidArgument)...)
}

// Validate checks the ranges of every parameter.
func (c Config) Validate() error {
	if c.ChunkMultiplier < buffer.MIN_CHUNK_MULT || c.ChunkMultiplier > buffer.MAX_CHUNK_MULT {
		return invalid("chunk_multiplier=%d not in %d...%d", c.ChunkMultiplier, buffer.MIN_CHUNK_MULT, buffer.MAX_CHUNK_MULT)
	}
	for _, o := range []struct {
		name string
		v    int
	}{{"addr_dir_offset", c.AddrDirOffset}, {"addr_ch_offset", c.AddrChOffset}} {
		if o.v < -1 || o.v > MAX_ADDR_OFFSET {
			return invalid("%s=%d not in 0...%d or -1", o.name, o.v, MAX_ADDR_OFFSET)
		}
	}
	if c.AddrDirOffset == c.AddrChOffset && c.AddrDirOffset != -1 {
		return invalid("addr_ch_offset and addr_dir_offset are both %d", c.AddrDirOffset)
	}
	if c.ChunkSize <= 0 || c.ChunkSize%4 != 0 {
		return invalid("chunk_size=%d must be a positive multiple of 4", c.ChunkSize)
	}
	if c.BusyWaitIterations <= 0 || c.ActiveWaitIterations <= 0 {
		return invalid("busy-wait bounds must be positive")
	}
	if c.RxRefreshInterval <= 0 || c.TxRefreshInterval <= 0 {
		return invalid("refresh intervals must be positive")
	}
	if c.RxReportPeriod < 0 || c.TxReportPeriod < 0 {
		return invalid("report periods must not be negative")
	}
	return nil
}
