package txbuilder

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/unitrie/common"
	"github.com/lunfardo314/utxolock/ledger"
	"github.com/lunfardo314/utxolock/ledger/constraints"
	"github.com/lunfardo314/utxolock/ledger/tuples"
	"golang.org/x/crypto/blake2b"
)

// Indices of the transaction tree
const (
	TxUnlockParams = byte(iota)
	TxInputIDs
	TxOutputs
	TxSignature
	TxTimestamp
	TxInputCommitment
	TxTreeIndexMax
)

type (
	TransactionBuilder struct {
		ConsumedOutputs []*Output
		Transaction     *transaction
	}

	transaction struct {
		InputIDs []*ledger.OutputID
		Outputs  []*Output
		// UnlockParams element i is the redeemer data for input i.
		// Empty redeemer means the transaction-level signature is the
		// only unlock data (the unit redeemer)
		UnlockParams    [][]byte
		Signature       []byte
		Timestamp       uint32
		InputCommitment [32]byte
	}
)

func NewTransactionBuilder() *TransactionBuilder {
	return &TransactionBuilder{
		ConsumedOutputs: make([]*Output, 0),
		Transaction: &transaction{
			InputIDs:        make([]*ledger.OutputID, 0),
			Outputs:         make([]*Output, 0),
			UnlockParams:    make([][]byte, 0),
			Timestamp:       0,
			InputCommitment: [32]byte{},
		},
	}
}

func (ctx *TransactionBuilder) NumInputs() int {
	ret := len(ctx.ConsumedOutputs)
	easyfl.Assert(ret == len(ctx.Transaction.InputIDs), "ret==len(ctx.Transaction.InputIDs)")
	return ret
}

func (ctx *TransactionBuilder) NumOutputs() int {
	return len(ctx.Transaction.Outputs)
}

func (ctx *TransactionBuilder) ConsumeOutput(out *Output, oid ledger.OutputID) (byte, error) {
	if ctx.NumInputs() >= tuples.MaxNumElements {
		return 0, fmt.Errorf("too many consumed outputs")
	}
	ctx.ConsumedOutputs = append(ctx.ConsumedOutputs, out)
	ctx.Transaction.InputIDs = append(ctx.Transaction.InputIDs, &oid)
	ctx.Transaction.UnlockParams = append(ctx.Transaction.UnlockParams, nil)

	return byte(len(ctx.ConsumedOutputs) - 1), nil
}

func (ctx *TransactionBuilder) PutUnlockParams(idx byte, data []byte) {
	ctx.Transaction.UnlockParams[idx] = data
}

func (ctx *TransactionBuilder) ProduceOutput(out *Output) (byte, error) {
	if ctx.NumOutputs() >= tuples.MaxNumElements {
		return 0, fmt.Errorf("too many produced outputs")
	}
	ctx.Transaction.Outputs = append(ctx.Transaction.Outputs, out)
	return byte(len(ctx.Transaction.Outputs) - 1), nil
}

func (ctx *TransactionBuilder) InputCommitment() [32]byte {
	arr := tuples.EmptyArray()
	for _, o := range ctx.ConsumedOutputs {
		arr.Push(o.Bytes())
	}
	return blake2b.Sum256(arr.Bytes())
}

func (tx *transaction) ToArray() *tuples.Array {
	unlockParams := tuples.EmptyArray()
	inputIDs := tuples.EmptyArray()
	outputs := tuples.EmptyArray()

	for _, b := range tx.UnlockParams {
		unlockParams.Push(b)
	}
	for _, oid := range tx.InputIDs {
		inputIDs.Push(oid[:])
	}
	for _, o := range tx.Outputs {
		outputs.Push(o.Bytes())
	}

	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], tx.Timestamp)

	ret := tuples.EmptyArray()
	ret.PutAtIdxGrow(TxUnlockParams, unlockParams.Bytes())
	ret.PutAtIdxGrow(TxInputIDs, inputIDs.Bytes())
	ret.PutAtIdxGrow(TxOutputs, outputs.Bytes())
	ret.PutAtIdxGrow(TxSignature, tx.Signature)
	ret.PutAtIdxGrow(TxTimestamp, ts[:])
	ret.PutAtIdxGrow(TxInputCommitment, tx.InputCommitment[:])
	return ret
}

func (tx *transaction) Bytes() []byte {
	return tx.ToArray().Bytes()
}

// EssenceBytes is the data covered by the transaction signature
func (tx *transaction) EssenceBytes() []byte {
	arr := tx.ToArray()
	return common.Concat(
		arr.At(int(TxInputIDs)),
		arr.At(int(TxOutputs)),
		arr.At(int(TxTimestamp)),
		arr.At(int(TxInputCommitment)),
	)
}

// SignED25519 signs the essence and stores signature together with the
// public key
func (ctx *TransactionBuilder) SignED25519(privKey ed25519.PrivateKey) {
	sig := ed25519.Sign(privKey, ctx.Transaction.EssenceBytes())
	pubKey := privKey.Public().(ed25519.PublicKey)
	ctx.Transaction.Signature = common.Concat(sig, []byte(pubKey))
}

type ED25519TransferParams struct {
	SenderPrivateKey ed25519.PrivateKey
	SenderPublicKey  ed25519.PublicKey
	SenderAddress    constraints.AddressED25519
	Outputs          []*OutputWithID
	Timestamp        uint32 // takes time.Now() if 0
	Lock             constraints.Lock
	Amount           uint64
	Datum            constraints.Datum
}

func NewED25519TransferParams(senderKey ed25519.PrivateKey) *ED25519TransferParams {
	sourcePubKey := senderKey.Public().(ed25519.PublicKey)
	return &ED25519TransferParams{
		SenderPrivateKey: senderKey,
		SenderPublicKey:  sourcePubKey,
		SenderAddress:    constraints.AddressED25519FromPublicKey(sourcePubKey),
	}
}

func (t *ED25519TransferParams) WithTimestamp(ts uint32) *ED25519TransferParams {
	t.Timestamp = ts
	return t
}

func (t *ED25519TransferParams) WithTargetLock(lock constraints.Lock) *ED25519TransferParams {
	t.Lock = lock
	return t
}

func (t *ED25519TransferParams) WithAmount(amount uint64) *ED25519TransferParams {
	t.Amount = amount
	return t
}

func (t *ED25519TransferParams) WithOutputs(outs []*OutputWithID) *ED25519TransferParams {
	t.Outputs = outs
	return t
}

func (t *ED25519TransferParams) WithDatum(d constraints.Datum) *ED25519TransferParams {
	t.Datum = d
	return t
}

// MakeTransferTransaction builds and signs a balanced transfer: consumes
// sender outputs until the amount is covered, pays the amount to the target
// lock and the remainder back to the sender
func MakeTransferTransaction(par *ED25519TransferParams) ([]byte, error) {
	ts := uint32(time.Now().Unix())
	if par.Timestamp > 0 {
		ts = par.Timestamp
	}
	consumedOuts := par.Outputs[:0]
	availableTokens := uint64(0)
	numConsumedOutputs := 0

	for _, o := range par.Outputs {
		if numConsumedOutputs >= tuples.MaxNumElements {
			return nil, fmt.Errorf("exceeded max number of consumed outputs %d", tuples.MaxNumElements)
		}
		consumedOuts = append(consumedOuts, o)
		if o.Output.Timestamp() >= ts {
			ts = o.Output.Timestamp() + 1
		}
		numConsumedOutputs++
		availableTokens += o.Output.Amount()
		if availableTokens >= par.Amount {
			break
		}
	}

	if availableTokens < par.Amount {
		return nil, fmt.Errorf("not enough tokens in address %s: needed %d, got %d",
			par.SenderAddress.String(), par.Amount, availableTokens)
	}
	ctx := NewTransactionBuilder()
	for _, o := range consumedOuts {
		if _, err := ctx.ConsumeOutput(o.Output, o.ID); err != nil {
			return nil, err
		}
	}
	out := NewOutput().
		WithAmount(par.Amount).
		WithTimestamp(ts).
		WithLockConstraint(par.Lock)
	if par.Datum != nil {
		out.WithDatum(par.Datum)
	}
	if _, err := ctx.ProduceOutput(out); err != nil {
		return nil, err
	}
	if availableTokens > par.Amount {
		remainderOut := NewOutput().
			WithAmount(availableTokens - par.Amount).
			WithTimestamp(ts).
			WithLockConstraint(par.SenderAddress)
		if _, err := ctx.ProduceOutput(remainderOut); err != nil {
			return nil, err
		}
	}
	ctx.Transaction.Timestamp = ts
	ctx.Transaction.InputCommitment = ctx.InputCommitment()
	ctx.SignED25519(par.SenderPrivateKey)

	return ctx.Transaction.Bytes(), nil
}

type LockParams struct {
	TargetLock constraints.Lock
	Amount     uint64
	Timestamp  uint32 // takes time.Now() if 0
	Datum      constraints.Datum
}

// MakeLockTransaction builds the unbalanced locking transaction skeleton:
// exactly one produced output paying the amount to the target lock, with
// the unit datum unless another one is given. No inputs, no signature;
// balancing is the adjuster's job
func MakeLockTransaction(par LockParams) ([]byte, error) {
	ts := uint32(time.Now().Unix())
	if par.Timestamp > 0 {
		ts = par.Timestamp
	}
	datum := par.Datum
	if datum == nil {
		datum = constraints.UnitDatum()
	}
	ctx := NewTransactionBuilder()
	out := NewOutput().
		WithAmount(par.Amount).
		WithTimestamp(ts).
		WithLockConstraint(par.TargetLock).
		WithDatum(datum)
	if _, err := ctx.ProduceOutput(out); err != nil {
		return nil, err
	}
	ctx.Transaction.Timestamp = ts
	return ctx.Transaction.Bytes(), nil
}
