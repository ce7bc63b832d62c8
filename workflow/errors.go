package workflow

import (
	"fmt"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/utxolock/ledger"
)

// The error taxonomy of the locking workflow is a closed set:
// ScriptOutputMissingError and MultipleScriptOutputsError are the
// workflow's own postcondition failures; everything coming from a
// collaborator is wrapped with %w and propagated verbatim, never
// reinterpreted. Callers distinguish the cases with errors.As

// ScriptOutputMissingError means the confirmed locking transaction has no
// output at the expected script address: a builder/submission mismatch
type ScriptOutputMissingError struct {
	KeyHash []byte
}

func (e *ScriptOutputMissingError) Error() string {
	return fmt.Sprintf("no script output for key hash %s in the confirmed transaction", easyfl.Fmt(e.KeyHash))
}

// MultipleScriptOutputsError means more than one output at the expected
// script address was found. The workflow itself never builds more than
// one, so this signals an anomaly in an external builder/adjuster
type MultipleScriptOutputsError struct {
	KeyHash []byte
	Num     int
}

func (e *MultipleScriptOutputsError) Error() string {
	return fmt.Sprintf("%d script outputs for key hash %s in the confirmed transaction, expected exactly 1",
		e.Num, easyfl.Fmt(e.KeyHash))
}

// ConvergenceTimeoutError is only possible when the converger is
// explicitly bounded. The default configuration never produces it
type ConvergenceTimeoutError struct {
	Target     ledger.Slot
	Iterations int
}

func (e *ConvergenceTimeoutError) Error() string {
	return fmt.Sprintf("index did not reach slot %d after %d iterations", e.Target, e.Iterations)
}
