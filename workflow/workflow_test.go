package workflow_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/lunfardo314/utxolock/ledger"
	"github.com/lunfardo314/utxolock/ledger/constraints"
	"github.com/lunfardo314/utxolock/ledger/txbuilder"
	"github.com/lunfardo314/utxolock/ledger/utxodb"
	"github.com/lunfardo314/utxolock/util/testutil"
	"github.com/lunfardo314/utxolock/workflow"
	"github.com/stretchr/testify/require"
)

// mockLedger implements all workflow collaborators in-process. Adjust is
// pluggable so tests can hand back arbitrary confirmed transactions

type mockLedger struct {
	adjustFn func(txBytes []byte) ([]byte, error)
	slot     ledger.Slot
	tipSlot  ledger.Slot
	outputs  map[ledger.OutputID]*txbuilder.Output
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		outputs: make(map[ledger.OutputID]*txbuilder.Output),
	}
}

func (m *mockLedger) Adjust(txBytes []byte) ([]byte, error) {
	if m.adjustFn == nil {
		return txBytes, nil
	}
	return m.adjustFn(txBytes)
}

func (m *mockLedger) Submit(txBytes []byte) (ledger.TransactionID, error) {
	tx, err := txbuilder.TransactionFromBytes(txBytes)
	if err != nil {
		return ledger.TransactionID{}, err
	}
	return tx.ID(), nil
}

func (m *mockLedger) AwaitConfirmed(_ context.Context, _ ledger.TransactionID) error {
	return nil
}

func (m *mockLedger) CurrentSlot() ledger.Slot {
	return m.slot
}

func (m *mockLedger) WaitSlots(_ context.Context, n uint32) error {
	m.tipSlot += ledger.Slot(n)
	return nil
}

func (m *mockLedger) Tip() ledger.Tip {
	return ledger.Tip{Slot: m.tipSlot}
}

func (m *mockLedger) UnspentOutput(oid ledger.OutputID) (*txbuilder.Output, bool) {
	out, found := m.outputs[oid]
	return out, found
}

// rememberOutputs registers all produced outputs of the adjusted
// transaction in the mock index
func (m *mockLedger) rememberOutputs(txBytes []byte) {
	tx, err := txbuilder.TransactionFromBytes(txBytes)
	if err != nil {
		return
	}
	_ = tx.ForEachProducedOutput(func(_ byte, out *txbuilder.Output, oid ledger.OutputID) bool {
		m.outputs[oid] = out
		return true
	})
}

func keyHashForTest(tag byte) []byte {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = tag
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	return constraints.PayToKeyHashFromPublicKey(pub).KeyHash()
}

func TestLockPostconditions(t *testing.T) {
	t.Run("single script output returned", func(t *testing.T) {
		m := newMockLedger()
		m.adjustFn = func(txBytes []byte) ([]byte, error) {
			m.rememberOutputs(txBytes)
			return txBytes, nil
		}
		w := workflow.New(m, m, nil)

		keyHash := keyHashForTest(1)
		lo, err := w.Lock(context.Background(), keyHash, 1337)
		require.NoError(t, err)
		require.EqualValues(t, 0, lo.ID.Index())
		require.EqualValues(t, keyHash, lo.Lock.KeyHash())
		require.NotNil(t, lo.Output)
		require.EqualValues(t, 1337, lo.Output.Amount())
		require.True(t, lo.Output.LockedBy(lo.Lock))

		datum, hasDatum := lo.Output.Datum()
		require.True(t, hasDatum)
		require.True(t, constraints.Equal(datum, constraints.UnitDatum()))
	})
	t.Run("absent index entry is not an error", func(t *testing.T) {
		m := newMockLedger()
		w := workflow.New(m, m, nil)

		lo, err := w.Lock(context.Background(), keyHashForTest(1), 1337)
		require.NoError(t, err)
		require.Nil(t, lo.Output)
	})
	t.Run("zero script outputs", func(t *testing.T) {
		m := newMockLedger()
		// the adjuster redirects the payment to an unrelated lock
		m.adjustFn = func(_ []byte) ([]byte, error) {
			return txbuilder.MakeLockTransaction(txbuilder.LockParams{
				TargetLock: constraints.NewPayToKeyHash(keyHashForTest(2)),
				Amount:     1337,
			})
		}
		w := workflow.New(m, m, nil)

		keyHash := keyHashForTest(1)
		_, err := w.Lock(context.Background(), keyHash, 1337)
		require.Error(t, err)
		missing := &workflow.ScriptOutputMissingError{}
		require.ErrorAs(t, err, &missing)
		require.EqualValues(t, keyHash, missing.KeyHash)
	})
	t.Run("multiple script outputs", func(t *testing.T) {
		keyHash := keyHashForTest(1)
		inst := constraints.NewPayToKeyHash(keyHash)
		m := newMockLedger()
		// a faulty adjuster duplicating the script output
		m.adjustFn = func(txBytes []byte) ([]byte, error) {
			tx, err := txbuilder.TransactionFromBytes(txBytes)
			require.NoError(t, err)
			builder := txbuilder.NewTransactionBuilder()
			for i := 0; i < 2; i++ {
				_, err = builder.ProduceOutput(txbuilder.OutputBasic(1337, tx.Timestamp(), inst))
				require.NoError(t, err)
			}
			builder.Transaction.Timestamp = tx.Timestamp()
			return builder.Transaction.Bytes(), nil
		}
		w := workflow.New(m, m, nil)

		_, err := w.Lock(context.Background(), keyHash, 1337)
		require.Error(t, err)
		multiple := &workflow.MultipleScriptOutputsError{}
		require.ErrorAs(t, err, &multiple)
		require.EqualValues(t, keyHash, multiple.KeyHash)
		require.EqualValues(t, 2, multiple.Num)

		// the two postcondition failures are distinct cases
		missing := &workflow.ScriptOutputMissingError{}
		require.False(t, errors.As(err, &missing))
	})
	t.Run("adjuster error propagated verbatim", func(t *testing.T) {
		errBroken := errors.New("wallet is empty")
		m := newMockLedger()
		m.adjustFn = func(_ []byte) ([]byte, error) {
			return nil, errBroken
		}
		w := workflow.New(m, m, nil)

		_, err := w.Lock(context.Background(), keyHashForTest(1), 1337)
		require.ErrorIs(t, err, errBroken)
	})
	t.Run("lagging tip makes lock wait", func(t *testing.T) {
		m := newMockLedger()
		m.adjustFn = func(txBytes []byte) ([]byte, error) {
			m.rememberOutputs(txBytes)
			return txBytes, nil
		}
		m.slot = 5 // confirmation observed at slot 5, index still at 0
		w := workflow.New(m, m, nil)

		lo, err := w.Lock(context.Background(), keyHashForTest(1), 1337)
		require.NoError(t, err)
		require.NotNil(t, lo.Output)
		require.EqualValues(t, 5, m.tipSlot)
	})
	t.Run("bounded convergence fails on stuck index", func(t *testing.T) {
		m := newMockLedger()
		m.slot = 5
		stuck := &stuckLedger{mockLedger: m}
		w := workflow.New(stuck, stuck, nil).WithBoundedConvergence(3)
		_, err := w.Lock(context.Background(), keyHashForTest(1), 1337)
		require.Error(t, err)
		convErr := &workflow.ConvergenceTimeoutError{}
		require.ErrorAs(t, err, &convErr)
		require.EqualValues(t, 5, convErr.Target)
	})
	t.Run("canceled while converging", func(t *testing.T) {
		m := newMockLedger()
		m.slot = 5
		stuck := &stuckLedger{mockLedger: m}
		w := workflow.New(stuck, stuck, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := w.Lock(ctx, keyHashForTest(1), 1337)
		require.ErrorIs(t, err, context.Canceled)
	})
}

// stuckLedger never advances its tip
type stuckLedger struct {
	*mockLedger
}

func (s *stuckLedger) WaitSlots(_ context.Context, _ uint32) error {
	return nil
}

func TestLockOnUTXODB(t *testing.T) {
	t.Run("lock and spend with lagging index", func(t *testing.T) {
		const lag = 3
		u := utxodb.New(lag, testutil.NewSimpleLogger(false))
		_, pub, addr := u.GenerateAddress(1)
		keyHash := constraints.PayToKeyHashFromPublicKey(pub).KeyHash()

		// move the clock so that the confirmation slot is ahead of the
		// visible window
		require.NoError(t, u.WaitSlots(context.Background(), lag+2))

		w := workflow.New(u, u, testutil.NewSimpleLogger(false))
		lo, err := w.Lock(context.Background(), keyHash, 10_000)
		require.NoError(t, err)

		// after convergence the index resolves the reference
		require.True(t, u.Tip().Slot >= u.CurrentSlot()-ledger.Slot(lag))
		require.NotNil(t, lo.Output)
		require.EqualValues(t, 10_000, lo.Output.Amount())
		require.True(t, lo.Output.LockedBy(lo.Lock))

		// the output exists in the ledger state as well
		_, found := u.StateAccess().GetUTXO(&lo.ID)
		require.True(t, found)

		// wrong key cannot spend
		wrongPriv, _, _ := u.GenerateAddress(2)
		err = u.SpendLocked(wrongPriv, lo.ID, addr)
		require.Error(t, err)

		// the right key can
		priv, _, _ := u.GenerateAddress(1)
		require.NoError(t, u.SpendLocked(priv, lo.ID, addr))
		require.EqualValues(t, 10_000, u.Balance(addr))
		_, found = u.StateAccess().GetUTXO(&lo.ID)
		require.False(t, found)
	})
	t.Run("materialization may lag right after confirmation", func(t *testing.T) {
		u := utxodb.New(5)
		_, pub, _ := u.GenerateAddress(3)
		keyHash := constraints.PayToKeyHashFromPublicKey(pub).KeyHash()

		// confirmation happens at slot 0 and the tip is already there, so
		// the loop converges without waiting. The indexed view of the
		// output is still behind: best-effort means nil, not an error
		w := workflow.New(u, u, nil)
		lo, err := w.Lock(context.Background(), keyHash, 500)
		require.NoError(t, err)
		require.Nil(t, lo.Output)

		// the reference itself is valid in the ledger state
		_, found := u.StateAccess().GetUTXO(&lo.ID)
		require.True(t, found)

		// once the lag window passes, the index resolves it
		require.NoError(t, u.WaitSlots(context.Background(), 5))
		out, found := u.UnspentOutput(lo.ID)
		require.True(t, found)
		require.EqualValues(t, 500, out.Amount())
	})
	t.Run("immediate index", func(t *testing.T) {
		u := utxodb.New(0)
		_, pub, _ := u.GenerateAddress(4)
		keyHash := constraints.PayToKeyHashFromPublicKey(pub).KeyHash()

		w := workflow.New(u, u, nil)
		lo, err := w.Lock(context.Background(), keyHash, 999)
		require.NoError(t, err)
		require.NotNil(t, lo.Output)
	})
}
