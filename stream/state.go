package stream

import (
	"fmt"
	"strings"

	"github.com/cariboulabs/smistream/pkg"
)

// State is the streaming direction of an Instance.
type State int

const (
	Idle State = iota // no transfer
	RxA               // receive from channel A
	RxB               // receive from channel B
	Tx                // transmit
)

var stateNames = [...]string{"idle", "rx_a", "rx_b", "tx"}

func (s State) String() string {
	if s < Idle || s > Tx {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) valid() bool {
	return s >= Idle && s <= Tx
}

// ParseState accepts "idle", "rx_a", "rx_b" and "tx", also without the
// underscore and in any case.
func ParseState(name string) (State, error) {
	n := strings.ReplaceAll(strings.ToLower(name), "_", "")
	for i, sn := range stateNames {
		if n == strings.ReplaceAll(sn, "_", "") {
			return State(i), nil
		}
	}
	return Idle, fmt.Errorf("stream: unknown state %q: %w", name, pkg.ErrInvalidArgument)
}

// Direction is the direction of a bus transfer.
type Direction int

const (
	DevToMem Direction = iota // read from the device into memory
	MemToDev                  // write from memory to the device
)

func (d Direction) String() string {
	if d == MemToDev {
		return "tx"
	}
	return "rx"
}

// Direction returns the transfer direction used in state s.
func (s State) Direction() Direction {
	if s == Tx {
		return MemToDev
	}
	return DevToMem
}

// Selector line values, as seen by the device on the SMI address lines.
const (
	dirDeviceToSMI = 0
	dirSMIToDevice = 1
	channelA       = 0
	channelB       = 1
)

// address encodes the direction and channel selection of state s on the
// SMI address lines.  A disabled (negative) offset contributes nothing.
// Idle selects receive on channel A, which keeps the device from driving
// a transmission.
func (c Config) address(s State) uint32 {
	var addr uint32
	line := func(offset int, v uint32) {
		if offset >= 0 {
			addr |= v << uint(offset)
		}
	}
	switch s {
	case RxB:
		line(c.AddrDirOffset, dirDeviceToSMI)
		line(c.AddrChOffset, channelB)
	case Tx:
		line(c.AddrDirOffset, dirSMIToDevice)
	default:
		line(c.AddrDirOffset, dirDeviceToSMI)
		line(c.AddrChOffset, channelA)
	}
	return addr
}
