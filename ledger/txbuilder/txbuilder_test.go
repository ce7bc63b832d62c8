package txbuilder

import (
	"crypto/ed25519"
	"math/rand"
	"testing"

	"github.com/lunfardo314/utxolock/ledger"
	"github.com/lunfardo314/utxolock/ledger/constraints"
	"github.com/stretchr/testify/require"
)

func TestOutput(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	pubKey, _, err := ed25519.GenerateKey(rnd)
	require.NoError(t, err)

	t.Run("basic", func(t *testing.T) {
		out := OutputBasic(0, 0, constraints.AddressED25519Null())
		outBack, err := OutputFromBytes(out.Bytes())
		require.NoError(t, err)
		require.EqualValues(t, outBack.Bytes(), out.Bytes())
		t.Logf("empty output: %d bytes", len(out.Bytes()))
	})
	t.Run("script lock", func(t *testing.T) {
		lock := constraints.PayToKeyHashFromPublicKey(pubKey)
		out := OutputBasic(1337, 0, lock).WithDatum(constraints.UnitDatum())
		outBack, err := OutputFromBytes(out.Bytes())
		require.NoError(t, err)
		require.EqualValues(t, outBack.Bytes(), out.Bytes())
		require.True(t, constraints.Equal(lock, outBack.Lock()))
		require.True(t, outBack.LockedBy(lock))
		require.EqualValues(t, 1337, outBack.Amount())

		d, ok := outBack.Datum()
		require.True(t, ok)
		require.EqualValues(t, 0, len(d.Data()))
	})
	t.Run("no datum", func(t *testing.T) {
		out := OutputBasic(1, 0, constraints.AddressED25519Null())
		_, ok := out.Datum()
		require.False(t, ok)
	})
	t.Run("not an output", func(t *testing.T) {
		_, err := OutputFromBytes([]byte("not an output"))
		require.Error(t, err)
	})
}

func TestLockTransaction(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	pubKey, _, err := ed25519.GenerateKey(rnd)
	require.NoError(t, err)
	lock := constraints.PayToKeyHashFromPublicKey(pubKey)

	t.Run("skeleton has exactly one script output with unit datum", func(t *testing.T) {
		txBytes, err := MakeLockTransaction(LockParams{
			TargetLock: lock,
			Amount:     10_000,
			Timestamp:  1000,
		})
		require.NoError(t, err)

		tx, err := TransactionFromBytes(txBytes)
		require.NoError(t, err)
		require.EqualValues(t, 0, tx.NumInputs())
		require.EqualValues(t, 1, tx.NumProducedOutputs())

		out, err := tx.ProducedOutput(0)
		require.NoError(t, err)
		require.True(t, out.LockedBy(lock))
		require.EqualValues(t, 10_000, out.Amount())
		d, ok := out.Datum()
		require.True(t, ok)
		require.EqualValues(t, 0, len(d.Data()))
	})
	t.Run("skeleton is unsigned", func(t *testing.T) {
		txBytes, err := MakeLockTransaction(LockParams{TargetLock: lock, Amount: 1, Timestamp: 1})
		require.NoError(t, err)
		tx, err := TransactionFromBytes(txBytes)
		require.NoError(t, err)
		_, _, err = tx.SignatureParts()
		require.Error(t, err)
	})
}

func TestTransferTransaction(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	pubKey, privKey, err := ed25519.GenerateKey(rnd)
	require.NoError(t, err)
	senderAddr := constraints.AddressED25519FromPublicKey(pubKey)

	makeFunded := func(amount uint64, ts uint32) []*OutputWithID {
		var oid ledger.OutputID
		oid[ledger.TransactionIDLength] = 0
		return []*OutputWithID{{
			ID:     oid,
			Output: OutputBasic(amount, ts, senderAddr),
		}}
	}

	t.Run("transfer with remainder", func(t *testing.T) {
		par := NewED25519TransferParams(privKey).
			WithAmount(400).
			WithTargetLock(constraints.AddressED25519Null()).
			WithOutputs(makeFunded(1000, 5)).
			WithTimestamp(10)
		txBytes, err := MakeTransferTransaction(par)
		require.NoError(t, err)

		tx, err := TransactionFromBytes(txBytes)
		require.NoError(t, err)
		require.EqualValues(t, 1, tx.NumInputs())
		require.EqualValues(t, 2, tx.NumProducedOutputs())

		target, err := tx.ProducedOutput(0)
		require.NoError(t, err)
		require.EqualValues(t, 400, target.Amount())
		remainder, err := tx.ProducedOutput(1)
		require.NoError(t, err)
		require.EqualValues(t, 600, remainder.Amount())
		require.True(t, remainder.LockedBy(senderAddr))
	})
	t.Run("signature verifiable against essence", func(t *testing.T) {
		par := NewED25519TransferParams(privKey).
			WithAmount(1000).
			WithTargetLock(constraints.AddressED25519Null()).
			WithOutputs(makeFunded(1000, 5))
		txBytes, err := MakeTransferTransaction(par)
		require.NoError(t, err)

		tx, err := TransactionFromBytes(txBytes)
		require.NoError(t, err)
		sig, pub, err := tx.SignatureParts()
		require.NoError(t, err)
		require.True(t, ed25519.Verify(pub, tx.EssenceBytes(), sig))
	})
	t.Run("not enough tokens", func(t *testing.T) {
		par := NewED25519TransferParams(privKey).
			WithAmount(2000).
			WithTargetLock(constraints.AddressED25519Null()).
			WithOutputs(makeFunded(1000, 5))
		_, err := MakeTransferTransaction(par)
		require.Error(t, err)
	})
	t.Run("timestamp after consumed outputs", func(t *testing.T) {
		par := NewED25519TransferParams(privKey).
			WithAmount(1000).
			WithTargetLock(constraints.AddressED25519Null()).
			WithOutputs(makeFunded(1000, 100)).
			WithTimestamp(50)
		txBytes, err := MakeTransferTransaction(par)
		require.NoError(t, err)
		tx, err := TransactionFromBytes(txBytes)
		require.NoError(t, err)
		require.EqualValues(t, 101, tx.Timestamp())
	})
}
