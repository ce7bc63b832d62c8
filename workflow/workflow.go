// Package workflow implements the off-chain part of pay-to-key-hash
// locking: it submits the locking transaction, discovers the produced
// script output and blocks until the downstream index has caught up with
// the slot of confirmation, so callers never receive a reference the
// index cannot resolve yet
package workflow

import (
	"context"
	"fmt"

	"github.com/lunfardo314/utxolock/ledger"
	"github.com/lunfardo314/utxolock/ledger/constraints"
	"github.com/lunfardo314/utxolock/ledger/txbuilder"
	"go.uber.org/zap"
)

// Collaborator interfaces. Implementations own the transport, the wallet
// and the index database; the workflow only composes them

type (
	// TxAdjuster balances the transaction skeleton: adds inputs, the
	// remainder output and the signature
	TxAdjuster interface {
		Adjust(txBytes []byte) ([]byte, error)
	}

	// TxSubmitter hands the transaction to the network
	TxSubmitter interface {
		Submit(txBytes []byte) (ledger.TransactionID, error)
	}

	// ConfirmationTracker blocks until the ledger reports the transaction
	// confirmed. No timeout besides context cancellation
	ConfirmationTracker interface {
		AwaitConfirmed(ctx context.Context, txid ledger.TransactionID) error
	}

	// SlotOracle is the submitter's local view of the current ledger slot
	SlotOracle interface {
		CurrentSlot() ledger.Slot
	}

	// SlotWaiter suspends until n further slots have elapsed
	SlotWaiter interface {
		WaitSlots(ctx context.Context, n uint32) error
	}

	// TipReader reports the slot the index contents reflect
	TipReader interface {
		Tip() ledger.Tip
	}

	// OutputReader is the best-effort indexed read; absent is not an error
	OutputReader interface {
		UnspentOutput(oid ledger.OutputID) (*txbuilder.Output, bool)
	}

	Ledger interface {
		TxAdjuster
		TxSubmitter
		ConfirmationTracker
		SlotOracle
		SlotWaiter
	}

	Index interface {
		TipReader
		OutputReader
	}
)

// LockedOutput is what a successful lock returns: the reference of the
// script output, its indexed view (nil when the index could not resolve
// the reference yet) and the lock instance which controls it
type LockedOutput struct {
	ID     ledger.OutputID
	Output *txbuilder.Output
	Lock   constraints.PayToKeyHash
}

type Workflow struct {
	ledger Ledger
	index  Index
	log    *zap.SugaredLogger
	// bounds the convergence loop; 0 keeps the default unbounded behavior
	maxConvergeIterations int
}

func New(l Ledger, idx Index, log *zap.SugaredLogger) *Workflow {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Workflow{
		ledger: l,
		index:  idx,
		log:    log.Named("lock"),
	}
}

// WithBoundedConvergence makes the convergence loop fail with
// ConvergenceTimeoutError after maxIterations slot waits instead of
// polling forever
func (w *Workflow) WithBoundedConvergence(maxIterations int) *Workflow {
	w.maxConvergeIterations = maxIterations
	return w
}

// Lock locks the amount under the script address derived from keyHash and
// returns the reference of the produced output. It returns only after the
// index tip has reached the slot at which confirmation was observed.
//
// Key hash validity is the caller's responsibility; the amount must
// satisfy the rules of the underlying ledger, enforced there
func (w *Workflow) Lock(ctx context.Context, keyHash []byte, amount uint64) (*LockedOutput, error) {
	inst := constraints.NewPayToKeyHash(keyHash)
	w.log.Debugf("locking %d under script address of key hash %s", amount, inst.String())

	txBytes, err := txbuilder.MakeLockTransaction(txbuilder.LockParams{
		TargetLock: inst,
		Amount:     amount,
	})
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	if txBytes, err = w.ledger.Adjust(txBytes); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	txid, err := w.ledger.Submit(txBytes)
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	if err = w.ledger.AwaitConfirmed(ctx, txid); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	w.log.Debugf("transaction %s confirmed", txid.String())

	// the submitter's transaction ID is authoritative for the output
	// reference; the adjusted bytes are scanned for the script output
	tx, err := txbuilder.TransactionFromBytes(txBytes)
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	matches := make([]byte, 0, 1)
	err = tx.ForEachProducedOutput(func(idx byte, out *txbuilder.Output, _ ledger.OutputID) bool {
		if out.LockedBy(inst) {
			matches = append(matches, idx)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	switch {
	case len(matches) == 0:
		return nil, &ScriptOutputMissingError{KeyHash: inst.KeyHash()}
	case len(matches) > 1:
		// the workflow never builds more than one script output itself,
		// so this is an anomaly of the adjuster
		return nil, &MultipleScriptOutputsError{KeyHash: inst.KeyHash(), Num: len(matches)}
	}
	oid := ledger.NewOutputID(txid, matches[0])

	target := w.ledger.CurrentSlot()
	conv := NewConverger(target, w.index, w.ledger)
	conv.MaxIterations = w.maxConvergeIterations
	w.log.Debugf("waiting for the index to reach slot %d", target)
	if err = conv.Run(ctx); err != nil {
		return nil, err
	}
	w.log.Debugf("index converged after %d iterations", conv.Iterations())

	ret := &LockedOutput{
		ID:   oid,
		Lock: inst,
	}
	// best-effort materialization: the index may still not resolve the
	// exact reference, which is not an error
	if out, found := w.index.UnspentOutput(oid); found {
		ret.Output = out
	}
	return ret, nil
}
