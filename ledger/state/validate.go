package state

import (
	"bytes"
	"fmt"
	"math"

	"github.com/lunfardo314/utxolock/ledger"
	"github.com/lunfardo314/utxolock/ledger/constraints"
	"github.com/lunfardo314/utxolock/ledger/indexer"
	"github.com/lunfardo314/utxolock/ledger/tuples"
	"github.com/lunfardo314/utxolock/ledger/txbuilder"
	"golang.org/x/crypto/blake2b"
)

// validateTransaction checks the transaction against the readable state:
// all inputs exist and are unlocked by the transaction signature through
// their lock predicates, the input commitment matches, timestamps move
// forward and the amounts are balanced. On success returns the indexer
// commands of the update
func validateTransaction(tx *txbuilder.Transaction, rdr *Readable) ([]*indexer.Command, error) {
	if tx.NumInputs() == 0 {
		return nil, fmt.Errorf("validate: transaction has no inputs")
	}
	sig, pubKey, err := tx.SignatureParts()
	if err != nil {
		return nil, fmt.Errorf("validate: %v", err)
	}
	spendCtx := &constraints.SpendContext{
		Essence:   tx.EssenceBytes(),
		Signature: sig,
		PublicKey: pubKey,
	}

	ret := make([]*indexer.Command, 0)
	consumedArr := tuples.EmptyArray()
	consumedIDs := make(map[ledger.OutputID]struct{})
	inSum := uint64(0)

	for i := 0; i < tx.NumInputs(); i++ {
		oid, err := tx.InputID(byte(i))
		if err != nil {
			return nil, fmt.Errorf("validate: %v", err)
		}
		if _, already := consumedIDs[oid]; already {
			return nil, fmt.Errorf("validate: repeating input %s", oid.String())
		}
		consumedIDs[oid] = struct{}{}

		outData, found := rdr.GetUTXO(&oid)
		if !found {
			return nil, fmt.Errorf("validate: can't find UTXO %s", oid.String())
		}
		out, err := txbuilder.OutputFromBytes(outData)
		if err != nil {
			return nil, fmt.Errorf("validate: %v", err)
		}
		consumedArr.Push(outData)

		lock := out.Lock()
		if !lock.UnlockableWith(spendCtx) {
			return nil, fmt.Errorf("validate: constraint '%s' failed for input %s", lock.Name(), oid.String())
		}
		if out.Timestamp() >= tx.Timestamp() {
			return nil, fmt.Errorf("validate: transaction timestamp must be after consumed output %s", oid.String())
		}
		if out.Amount() > math.MaxUint64-inSum {
			return nil, fmt.Errorf("validate: uint64 arithmetic overflow")
		}
		inSum += out.Amount()

		ret = append(ret, &indexer.Command{
			AccountID: lock.AccountID(),
			OutputID:  oid,
			Delete:    true,
		})
	}

	commitment := blake2b.Sum256(consumedArr.Bytes())
	txCommitment := tx.InputCommitment()
	if !bytes.Equal(commitment[:], txCommitment[:]) {
		return nil, fmt.Errorf("validate: input commitment mismatch")
	}

	outSum := uint64(0)
	var errOverflow error
	err = tx.ForEachProducedOutput(func(idx byte, out *txbuilder.Output, oid ledger.OutputID) bool {
		if out.Amount() > math.MaxUint64-outSum {
			errOverflow = fmt.Errorf("validate: uint64 arithmetic overflow")
			return false
		}
		outSum += out.Amount()
		ret = append(ret, &indexer.Command{
			AccountID: out.Lock().AccountID(),
			OutputID:  oid,
		})
		return true
	})
	if err == nil {
		err = errOverflow
	}
	if err != nil {
		return nil, err
	}
	if inSum != outSum {
		return nil, fmt.Errorf("validate: unbalanced amount between inputs and outputs: inputs %d, outputs %d", inSum, outSum)
	}
	return ret, nil
}
