package stream

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errSimRejected = errors.New("simulated controller rejected the transfer")

// SimController is a Controller whose completions are fired by hand (Fire)
// or by a clock (Run).  On receive it fills each slot with a running byte
// counter before reporting it complete; on transmit it counts the bytes
// of each slot it reports sent.
type SimController struct {
	fire sync.Mutex // held while a completion is being delivered

	mu       sync.Mutex
	running  bool
	reject   bool
	dir      Direction
	bounce   *Bounce
	complete func()
	slot     int
	seq      byte
	sent     int64
	pending  int
	starts   int
	stops    int
}

// NewSimController returns an idle controller.
func NewSimController() *SimController {
	return &SimController{}
}

// Reject makes the next StartCyclic calls fail.
func (c *SimController) Reject(reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reject = reject
}

// StartCyclic implements Controller.
func (c *SimController) StartCyclic(dir Direction, b *Bounce, complete func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reject {
		return errSimRejected
	}
	c.running = true
	c.dir = dir
	c.bounce = b
	c.complete = complete
	c.slot = 0
	c.starts++
	return nil
}

// TerminateSync implements Controller.  It waits for a completion being
// delivered by Fire to return.
func (c *SimController) TerminateSync() error {
	c.mu.Lock()
	c.running = false
	c.stops++
	c.mu.Unlock()

	c.fire.Lock()
	c.fire.Unlock()
	return nil
}

// Running reports whether a cyclic transfer is in progress.
func (c *SimController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Starts and Stops return how many transfers were started and terminated.
func (c *SimController) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *SimController) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

// Sent returns the number of bytes reported transmitted.
func (c *SimController) Sent() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Pending implements pender.
func (c *SimController) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Fire delivers up to n slot completions in the calling goroutine and
// returns how many were delivered.  It stops early if the transfer is
// terminated.
func (c *SimController) Fire(n int) int {
	c.fire.Lock()
	defer c.fire.Unlock()

	c.mu.Lock()
	c.pending += n
	c.mu.Unlock()

	fired := 0
	for ; fired < n; fired++ {
		c.mu.Lock()
		if !c.running {
			c.pending = 0
			c.mu.Unlock()
			break
		}
		slot := c.bounce.Slot(c.slot)
		if c.dir == DevToMem {
			for i := range slot {
				slot[i] = c.seq
				c.seq++
			}
		} else {
			c.sent += int64(len(slot))
		}
		c.slot = (c.slot + 1) % c.bounce.Slots()
		c.pending--
		complete := c.complete
		c.mu.Unlock()

		complete()
	}
	return fired
}

// Run fires one completion per tick of a clock running at rate
// completions per second until ctx is done.
func (c *SimController) Run(ctx context.Context, rate float64) error {
	if rate <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.Fire(1)
		}
	}
}
