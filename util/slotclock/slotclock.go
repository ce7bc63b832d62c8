// Package slotclock provides the local view of ledger time: a monotonic
// slot counter which either follows real time with a fixed period per slot,
// or is advanced manually (simulated time for testing)
package slotclock

import (
	"context"
	"sync"
	"time"

	"github.com/lunfardo314/utxolock/ledger"
	"go.uber.org/atomic"
)

type SlotClock struct {
	mutex   sync.Mutex
	slot    atomic.Uint32
	manual  bool
	period  time.Duration
	stopped atomic.Bool
	waiters map[uint32][]chan struct{}
}

var defaultSlotPeriod = 1 * time.Second

// New creates a clock which advances one slot per period of real time
func New(period ...time.Duration) *SlotClock {
	ret := &SlotClock{
		period:  defaultSlotPeriod,
		waiters: make(map[uint32][]chan struct{}),
	}
	if len(period) > 0 {
		ret.period = period[0]
	}
	go ret.ticking()
	return ret
}

// NewManual creates a clock on simulated time: it only moves when advanced
// explicitly, and WaitSlots advances it itself
func NewManual(start ledger.Slot) *SlotClock {
	ret := &SlotClock{
		manual:  true,
		waiters: make(map[uint32][]chan struct{}),
	}
	ret.slot.Store(uint32(start))
	return ret
}

func (c *SlotClock) ticking() {
	for {
		time.Sleep(c.period)
		if c.stopped.Load() {
			return
		}
		c.Advance(1)
	}
}

func (c *SlotClock) Stop() {
	c.stopped.Store(true)
}

func (c *SlotClock) CurrentSlot() ledger.Slot {
	return ledger.Slot(c.slot.Load())
}

// Advance moves the clock forward and releases the waiters whose target
// slot has been reached
func (c *SlotClock) Advance(n uint32) {
	nowis := c.slot.Add(n)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for target, lst := range c.waiters {
		if target > nowis {
			continue
		}
		for _, ch := range lst {
			close(ch)
		}
		delete(c.waiters, target)
	}
}

// WaitSlots suspends the caller until n further slots have elapsed. On the
// manual clock it advances simulated time itself
func (c *SlotClock) WaitSlots(ctx context.Context, n uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.manual {
		c.Advance(n)
		return nil
	}
	target := c.slot.Load() + n

	c.mutex.Lock()
	if c.slot.Load() >= target {
		c.mutex.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.waiters[target] = append(c.waiters[target], ch)
	c.mutex.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
