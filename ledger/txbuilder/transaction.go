package txbuilder

import (
	"encoding/binary"
	"fmt"

	"github.com/lunfardo314/unitrie/common"
	"github.com/lunfardo314/utxolock/ledger"
	"github.com/lunfardo314/utxolock/ledger/tuples"
	"golang.org/x/crypto/blake2b"
)

// Transaction is the parsed, read-only view of serialized transaction bytes

type Transaction struct {
	txBytes      []byte
	unlockParams *tuples.Array
	inputIDs     *tuples.Array
	outputs      *tuples.Array
	signature    []byte
	timestamp    uint32
	inputCommit  [32]byte
}

func TransactionFromBytes(txBytes []byte) (*Transaction, error) {
	tree, err := tuples.ArrayFromBytes(txBytes)
	if err != nil {
		return nil, err
	}
	if tree.NumElements() != int(TxTreeIndexMax) {
		return nil, fmt.Errorf("wrong number of transaction elements")
	}
	ret := &Transaction{
		txBytes:   txBytes,
		signature: tree.At(int(TxSignature)),
	}
	if ret.unlockParams, err = tuples.ArrayFromBytes(tree.At(int(TxUnlockParams))); err != nil {
		return nil, err
	}
	if ret.inputIDs, err = tuples.ArrayFromBytes(tree.At(int(TxInputIDs))); err != nil {
		return nil, err
	}
	if ret.outputs, err = tuples.ArrayFromBytes(tree.At(int(TxOutputs))); err != nil {
		return nil, err
	}
	if ret.unlockParams.NumElements() != ret.inputIDs.NumElements() {
		return nil, fmt.Errorf("number of unlock params must be equal to the number of inputs")
	}
	tsBin := tree.At(int(TxTimestamp))
	if len(tsBin) != 4 {
		return nil, fmt.Errorf("wrong timestamp length")
	}
	ret.timestamp = binary.BigEndian.Uint32(tsBin)
	commitBin := tree.At(int(TxInputCommitment))
	if len(commitBin) != 32 {
		return nil, fmt.Errorf("wrong input commitment length")
	}
	copy(ret.inputCommit[:], commitBin)
	return ret, nil
}

func (tx *Transaction) ID() ledger.TransactionID {
	return blake2b.Sum256(tx.txBytes)
}

func (tx *Transaction) Bytes() []byte {
	return tx.txBytes
}

func (tx *Transaction) NumInputs() int {
	return tx.inputIDs.NumElements()
}

func (tx *Transaction) NumProducedOutputs() int {
	return tx.outputs.NumElements()
}

func (tx *Transaction) InputID(idx byte) (ledger.OutputID, error) {
	return ledger.OutputIDFromBytes(tx.inputIDs.At(int(idx)))
}

func (tx *Transaction) ProducedOutput(idx byte) (*Output, error) {
	return OutputFromBytes(tx.outputs.At(int(idx)))
}

// ForEachProducedOutput iterates the produced outputs together with their
// output IDs derived from the transaction ID
func (tx *Transaction) ForEachProducedOutput(fun func(idx byte, out *Output, oid ledger.OutputID) bool) error {
	txid := tx.ID()
	var err error
	tx.outputs.ForEach(func(i byte, data []byte) bool {
		var out *Output
		if out, err = OutputFromBytes(data); err != nil {
			return false
		}
		return fun(i, out, ledger.NewOutputID(txid, i))
	})
	return err
}

func (tx *Transaction) UnlockParamsAt(idx byte) []byte {
	return tx.unlockParams.At(int(idx))
}

func (tx *Transaction) Timestamp() uint32 {
	return tx.timestamp
}

func (tx *Transaction) InputCommitment() [32]byte {
	return tx.inputCommit
}

// SignatureParts splits the signature element into the ed25519 signature
// and the public key
func (tx *Transaction) SignatureParts() (sig, pubKey []byte, err error) {
	if len(tx.signature) != 96 {
		return nil, nil, fmt.Errorf("wrong signature length")
	}
	return tx.signature[:64], tx.signature[64:], nil
}

// EssenceBytes is the data covered by the transaction signature
func (tx *Transaction) EssenceBytes() []byte {
	tree := tuples.MustArrayFromBytes(tx.txBytes)
	return common.Concat(
		tree.At(int(TxInputIDs)),
		tree.At(int(TxOutputs)),
		tree.At(int(TxTimestamp)),
		tree.At(int(TxInputCommitment)),
	)
}
