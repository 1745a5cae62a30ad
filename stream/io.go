package stream

import (
	"context"
	"fmt"
	"strings"

	"github.com/cariboulabs/smistream/pkg"
)

// Readiness is a set of readiness conditions.
type Readiness uint8

const (
	Readable Readiness = 1 << iota // the receive ring has data
	Writable                       // the transmit ring has room
)

func (r Readiness) String() string {
	var parts []string
	if r&Readable != 0 {
		parts = append(parts, "readable")
	}
	if r&Writable != 0 {
		parts = append(parts, "writable")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// TryRead copies buffered received data into p without blocking and
// returns how many bytes it copied, possibly zero.  A zero-length p is a
// flush request: the receive ring is emptied and a discontinuity is
// recorded.
func (s *Instance) TryRead(p []byte) (int, error) {
	if s.isClosed() {
		return 0, pkg.ErrClosed
	}
	if len(p) == 0 {
		s.Flush()
		return 0, nil
	}
	return s.rx.Load().Pop(p), nil
}

// TryWrite queues as much of p for transmission as fits without blocking
// and returns how many bytes it queued, possibly zero.
func (s *Instance) TryWrite(p []byte) (int, error) {
	if s.isClosed() {
		return 0, pkg.ErrClosed
	}
	return s.tx.Load().Push(p), nil
}

// ReadContext waits until received data is available and copies up to
// len(p) bytes of it into p.  If ctx is done or the instance is closed
// while waiting it returns ErrInterrupted.
func (s *Instance) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return s.TryRead(p)
	}
	for waited := false; ; waited = true {
		wake := s.ready.wait()
		if waited && s.isClosed() {
			return 0, fmt.Errorf("stream: read: %w", pkg.ErrInterrupted)
		}
		n, err := s.TryRead(p)
		if n > 0 || err != nil {
			return n, err
		}
		if err := s.sleep(ctx, wake); err != nil {
			return 0, fmt.Errorf("stream: read: %w", err)
		}
	}
}

// WriteContext waits until the transmit ring has room and queues as much
// of p as fits.  Short writes are normal.  If ctx is done or the instance
// is closed while waiting it returns ErrInterrupted.
func (s *Instance) WriteContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for waited := false; ; waited = true {
		wake := s.ready.wait()
		if waited && s.isClosed() {
			return 0, fmt.Errorf("stream: write: %w", pkg.ErrInterrupted)
		}
		n, err := s.TryWrite(p)
		if n > 0 || err != nil {
			return n, err
		}
		if err := s.sleep(ctx, wake); err != nil {
			return 0, fmt.Errorf("stream: write: %w", err)
		}
	}
}

// Read implements io.Reader.  It blocks until some data is available.
func (s *Instance) Read(p []byte) (int, error) {
	return s.ReadContext(context.Background(), p)
}

// Write implements io.Writer.  It blocks until all of p is queued.
func (s *Instance) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := s.WriteContext(context.Background(), p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Poll reports which readiness conditions hold that have not been
// reported before.  A condition is reported again only after the engine
// has completed another slot.
func (s *Instance) Poll() Readiness {
	return s.pollMask(Readable | Writable)
}

func (s *Instance) pollMask(mask Readiness) Readiness {
	var r Readiness
	if mask&Readable != 0 && !s.rx.Load().IsEmpty() && s.readable.Swap(false) {
		r |= Readable
	}
	if mask&Writable != 0 && !s.tx.Load().IsFull() && s.writable.Swap(false) {
		r |= Writable
	}
	return r
}

// WaitReady blocks until Poll would report one of the conditions in mask,
// and returns them.
func (s *Instance) WaitReady(ctx context.Context, mask Readiness) (Readiness, error) {
	if mask&(Readable|Writable) == 0 {
		return 0, fmt.Errorf("stream: wait for %s: %w", mask, pkg.ErrInvalidArgument)
	}
	for waited := false; ; waited = true {
		wake := s.ready.wait()
		if s.isClosed() {
			if waited {
				return 0, fmt.Errorf("stream: wait ready: %w", pkg.ErrInterrupted)
			}
			return 0, pkg.ErrClosed
		}
		if r := s.pollMask(mask); r != 0 {
			return r, nil
		}
		if err := s.sleep(ctx, wake); err != nil {
			return 0, fmt.Errorf("stream: wait ready: %w", err)
		}
	}
}

// sleep waits for wake, ctx or Close.
func (s *Instance) sleep(ctx context.Context, wake <-chan struct{}) error {
	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", pkg.ErrInterrupted, ctx.Err())
	case <-s.done:
		return pkg.ErrInterrupted
	}
}

func (s *Instance) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
