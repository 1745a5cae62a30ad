package smi

import (
	"fmt"

	"github.com/cariboulabs/smistream/pkg"
)

// Width is the SMI data bus width code.
type Width uint32

const (
	WIDTH_8BIT  Width = iota // 8 data lines
	WIDTH_16BIT              // 16 data lines
	WIDTH_18BIT              // 18 data lines
	WIDTH_9BIT               // 9 data lines
)

// Bytes returns the number of bytes one bus transfer occupies in memory.
func (w Width) Bytes() int {
	switch w {
	case WIDTH_8BIT:
		return 1
	case WIDTH_16BIT, WIDTH_9BIT:
		return 2
	default:
		return 4
	}
}

// Settings is the static bus timing configuration of device 0.  Times are
// in SMI clock cycles.
type Settings struct {
	DataWidth Width `mapstructure:"data_width" desc:"bus width: 0: 8 bit; 1: 16 bit; 2: 18 bit; 3: 9 bit"`

	PackData bool `mapstructure:"pack_data" desc:"pack bus transfers into 32-bit FIFO words"`

	ReadSetupTime uint32 `mapstructure:"read_setup_time" desc:"read setup time, 0...63"`

	ReadStrobeTime uint32 `mapstructure:"read_strobe_time" desc:"read strobe time, 0...127"`

	ReadHoldTime uint32 `mapstructure:"read_hold_time" desc:"read hold time, 0...63"`

	ReadPaceTime uint32 `mapstructure:"read_pace_time" desc:"read pace time, 0...127"`

	WriteSetupTime uint32 `mapstructure:"write_setup_time" desc:"write setup time, 0...63"`

	WriteStrobeTime uint32 `mapstructure:"write_strobe_time" desc:"write strobe time, 0...127"`

	WriteHoldTime uint32 `mapstructure:"write_hold_time" desc:"write hold time, 0...63"`

	WritePaceTime uint32 `mapstructure:"write_pace_time" desc:"write pace time, 0...127"`

	DMAEnable bool `mapstructure:"dma_enable" desc:"raise DMA requests (DREQ 4)"`

	DMAPassthrough bool `mapstructure:"dma_passthrough" desc:"pass external DREQ through to the DMA controller"`

	DMAReadThresh uint32 `mapstructure:"dma_read_thresh" desc:"RX FIFO level that raises a DMA request, 0...63"`

	DMAWriteThresh uint32 `mapstructure:"dma_write_thresh" desc:"TX FIFO level that raises a DMA request, 0...63"`

	DMAPanicReadThresh uint32 `mapstructure:"dma_panic_read_thresh" desc:"RX FIFO level that raises a DMA panic, 0...63"`

	DMAPanicWriteThresh uint32 `mapstructure:"dma_panic_write_thresh" desc:"TX FIFO level that raises a DMA panic, 0...63"`
}

// DefaultSettings returns the timing used by the CaribouLite board.
func DefaultSettings() Settings {
	return Settings{
		DataWidth:           WIDTH_8BIT,
		PackData:            true,
		ReadSetupTime:       0,
		ReadStrobeTime:      5,
		ReadHoldTime:        0,
		ReadPaceTime:        0,
		WriteSetupTime:      1,
		WriteStrobeTime:     3,
		WriteHoldTime:       1,
		WritePaceTime:       2,
		DMAEnable:           true,
		DMAPassthrough:      true,
		DMAReadThresh:       1,
		DMAWriteThresh:      1,
		DMAPanicReadThresh:  1,
		DMAPanicWriteThresh: 1,
	}
}

// Validate checks every field against the width of its register field.
func (s Settings) Validate() error {
	check := func(name string, v, max uint32) error {
		if v > max {
			return fmt.Errorf("smi: %s=%d out of range 0...%d: %w", name, v, max, pkg.ErrInvalidArgument)
		}
		return nil
	}
	for _, f := range []struct {
		name   string
		v, max uint32
	}{
		{"data_width", uint32(s.DataWidth), 3},
		{"read_setup_time", s.ReadSetupTime, 63},
		{"read_strobe_time", s.ReadStrobeTime, 127},
		{"read_hold_time", s.ReadHoldTime, 63},
		{"read_pace_time", s.ReadPaceTime, 127},
		{"write_setup_time", s.WriteSetupTime, 63},
		{"write_strobe_time", s.WriteStrobeTime, 127},
		{"write_hold_time", s.WriteHoldTime, 63},
		{"write_pace_time", s.WritePaceTime, 127},
		{"dma_read_thresh", s.DMAReadThresh, 63},
		{"dma_write_thresh", s.DMAWriteThresh, 63},
		{"dma_panic_read_thresh", s.DMAPanicReadThresh, 63},
		{"dma_panic_write_thresh", s.DMAPanicWriteThresh, 63},
	} {
		if err := check(f.name, f.v, f.max); err != nil {
			return err
		}
	}
	return nil
}

// TransferUnits returns the number of bus transfers needed to move n bytes.
func (s Settings) TransferUnits(n int) uint32 {
	return uint32(n / s.DataWidth.Bytes())
}

func bit(b bool, shift uint) uint32 {
	if b {
		return 1 << shift
	}
	return 0
}

// encode packs s into the SMI_CS, SMI_DSR0, SMI_DSW0 and SMI_DMC fields.
func (s Settings) encode() (cs, dsr, dsw, dmc uint32) {
	if s.PackData {
		cs = SMICS_PXLDAT
	}
	dsr = s.ReadStrobeTime&0x7f |
		(s.ReadPaceTime&0x7f)<<8 |
		(s.ReadHoldTime&0x3f)<<16 |
		(s.ReadSetupTime&0x3f)<<24 |
		(uint32(s.DataWidth)&0x3)<<30
	dsw = s.WriteStrobeTime&0x7f |
		(s.WritePaceTime&0x7f)<<8 |
		(s.WriteHoldTime&0x3f)<<16 |
		(s.WriteSetupTime&0x3f)<<24 |
		(uint32(s.DataWidth)&0x3)<<30
	dmc = s.DMAWriteThresh&0x3f |
		(s.DMAReadThresh&0x3f)<<6 |
		(s.DMAPanicWriteThresh&0x3f)<<12 |
		(s.DMAPanicReadThresh&0x3f)<<18 |
		bit(s.DMAPassthrough, 24) |
		bit(s.DMAEnable, 28)
	return
}

func decodeSettings(cs, dsr, dsw, dmc uint32) Settings {
	return Settings{
		DataWidth:           Width(dsr >> 30 & 0x3),
		PackData:            cs&SMICS_PXLDAT != 0,
		ReadStrobeTime:      dsr & 0x7f,
		ReadPaceTime:        dsr >> 8 & 0x7f,
		ReadHoldTime:        dsr >> 16 & 0x3f,
		ReadSetupTime:       dsr >> 24 & 0x3f,
		WriteStrobeTime:     dsw & 0x7f,
		WritePaceTime:       dsw >> 8 & 0x7f,
		WriteHoldTime:       dsw >> 16 & 0x3f,
		WriteSetupTime:      dsw >> 24 & 0x3f,
		DMAWriteThresh:      dmc & 0x3f,
		DMAReadThresh:       dmc >> 6 & 0x3f,
		DMAPanicWriteThresh: dmc >> 12 & 0x3f,
		DMAPanicReadThresh:  dmc >> 18 & 0x3f,
		DMAPassthrough:      dmc&(1<<24) != 0,
		DMAEnable:           dmc&(1<<28) != 0,
	}
}
