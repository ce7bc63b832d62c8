package constraints

import (
	"crypto/ed25519"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAmountTimestamp(t *testing.T) {
	t.Run("amount", func(t *testing.T) {
		a := NewAmount(1_000_000)
		back, err := AmountFromBytes(a.Bytes())
		require.NoError(t, err)
		require.EqualValues(t, a, back)
	})
	t.Run("timestamp", func(t *testing.T) {
		ts := NewTimestamp(uint32(time.Now().Unix()))
		back, err := TimestampFromBytes(ts.Bytes())
		require.NoError(t, err)
		require.EqualValues(t, ts, back)
	})
	t.Run("amount is not a timestamp", func(t *testing.T) {
		_, err := TimestampFromBytes(NewAmount(1337).Bytes())
		require.Error(t, err)
	})
}

func TestPayToKeyHash(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	pubKey, privKey, err := ed25519.GenerateKey(rnd)
	require.NoError(t, err)

	t.Run("deterministic address", func(t *testing.T) {
		h := PayToKeyHashFromPublicKey(pubKey).KeyHash()
		i1 := NewPayToKeyHash(h)
		i2 := NewPayToKeyHash(h)
		require.EqualValues(t, i1.Bytes(), i2.Bytes())
		require.EqualValues(t, i1.AccountID(), i2.AccountID())
	})
	t.Run("distinct keys, distinct addresses", func(t *testing.T) {
		pubOther, _, err := ed25519.GenerateKey(rnd)
		require.NoError(t, err)
		require.NotEqualValues(t,
			PayToKeyHashFromPublicKey(pubKey).Bytes(),
			PayToKeyHashFromPublicKey(pubOther).Bytes())
	})
	t.Run("parse back", func(t *testing.T) {
		lock := PayToKeyHashFromPublicKey(pubKey)
		back, err := PayToKeyHashFromBytes(lock.Bytes())
		require.NoError(t, err)
		require.True(t, Equal(lock, back))

		generic, err := LockFromBytes(lock.Bytes())
		require.NoError(t, err)
		require.True(t, Equal(lock, generic))
	})
	t.Run("script address differs from native address of same key", func(t *testing.T) {
		script := PayToKeyHashFromPublicKey(pubKey)
		native := AddressED25519FromPublicKey(pubKey)
		require.EqualValues(t, script.KeyHash(), []byte(native))
		require.NotEqualValues(t, script.Bytes(), native.Bytes())
	})
	t.Run("predicate accepts valid signature", func(t *testing.T) {
		lock := PayToKeyHashFromPublicKey(pubKey)
		essence := []byte("some transaction essence")
		ctx := &SpendContext{
			Essence:   essence,
			Signature: ed25519.Sign(privKey, essence),
			PublicKey: pubKey,
		}
		require.True(t, lock.Validate(nil, nil, ctx))
		require.True(t, lock.UnlockableWith(ctx))
	})
	t.Run("predicate ignores datum and redeemer", func(t *testing.T) {
		lock := PayToKeyHashFromPublicKey(pubKey)
		essence := []byte("some transaction essence")
		ctx := &SpendContext{
			Essence:   essence,
			Signature: ed25519.Sign(privKey, essence),
			PublicKey: pubKey,
		}
		require.True(t, lock.Validate([]byte("datum"), []byte("redeemer"), ctx))
	})
	t.Run("predicate rejects unsigned context", func(t *testing.T) {
		lock := PayToKeyHashFromPublicKey(pubKey)
		require.False(t, lock.Validate(nil, nil, &SpendContext{Essence: []byte("essence")}))
		require.False(t, lock.Validate(nil, nil, nil))
	})
	t.Run("predicate rejects wrong key", func(t *testing.T) {
		pubWrong, privWrong, err := ed25519.GenerateKey(rnd)
		require.NoError(t, err)
		lock := PayToKeyHashFromPublicKey(pubKey)
		essence := []byte("some transaction essence")
		ctx := &SpendContext{
			Essence:   essence,
			Signature: ed25519.Sign(privWrong, essence),
			PublicKey: pubWrong,
		}
		require.False(t, lock.Validate(nil, nil, ctx))
	})
	t.Run("predicate rejects signature over different essence", func(t *testing.T) {
		lock := PayToKeyHashFromPublicKey(pubKey)
		ctx := &SpendContext{
			Essence:   []byte("essence which was not signed"),
			Signature: ed25519.Sign(privKey, []byte("some other data")),
			PublicKey: pubKey,
		}
		require.False(t, lock.Validate(nil, nil, ctx))
	})
}

func TestDatum(t *testing.T) {
	t.Run("unit", func(t *testing.T) {
		d := UnitDatum()
		back, err := DatumFromBytes(d.Bytes())
		require.NoError(t, err)
		require.EqualValues(t, 0, len(back.Data()))
	})
	t.Run("roundtrip", func(t *testing.T) {
		d := NewDatum([]byte("inline data"))
		back, err := DatumFromBytes(d.Bytes())
		require.NoError(t, err)
		require.EqualValues(t, d.Data(), back.Data())
	})
}
