package workflow

import (
	"context"

	"github.com/lunfardo314/utxolock/ledger"
)

// Converger blocks until the index tip reaches the target slot. It exists
// because transaction confirmation and index freshness are two independent
// sources of truth which disagree transiently: after a transaction
// confirms, the index may not have seen its slot yet.
//
// By default the loop is unbounded: one slot of waiting per iteration, no
// timeout, no backoff. That is a known limitation of the two-source
// design, kept deliberately. Boundedness is opt-in via MaxIterations, and
// the loop is a resumable value stepped one poll at a time, so a caller
// can interleave its own policy between iterations. The context is
// checked at every suspension point

type Converger struct {
	Target ledger.Slot
	Tip    TipReader
	Waiter SlotWaiter
	// MaxIterations bounds the loop when positive; 0 means no bound
	MaxIterations int

	iterations int
	converged  bool
}

func NewConverger(target ledger.Slot, tip TipReader, waiter SlotWaiter) *Converger {
	return &Converger{
		Target: target,
		Tip:    tip,
		Waiter: waiter,
	}
}

func (c *Converger) Converged() bool {
	return c.converged
}

// Iterations returns the number of slot waits performed so far
func (c *Converger) Iterations() int {
	return c.iterations
}

// Step performs one poll of the index tip and, if the tip is still behind
// the target, one slot of waiting. Returns true once converged
func (c *Converger) Step(ctx context.Context) (bool, error) {
	if c.converged {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	tip := c.Tip.Tip()
	// the genesis tip maps to slot 0
	if tip.Slot >= c.Target {
		c.converged = true
		return true, nil
	}
	if c.MaxIterations > 0 && c.iterations >= c.MaxIterations {
		return false, &ConvergenceTimeoutError{
			Target:     c.Target,
			Iterations: c.iterations,
		}
	}
	if err := c.Waiter.WaitSlots(ctx, 1); err != nil {
		return false, err
	}
	c.iterations++
	return false, nil
}

// Run steps the loop until convergence, cancellation or the optional bound
func (c *Converger) Run(ctx context.Context) error {
	for {
		done, err := c.Step(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
