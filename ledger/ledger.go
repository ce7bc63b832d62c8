package ledger

import (
	"errors"
	"fmt"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/unitrie/common"
)

const (
	TransactionIDLength = 32
	OutputIDLength      = TransactionIDLength + 1
)

type (
	TransactionID [TransactionIDLength]byte
	OutputID      [OutputIDLength]byte

	// Slot is a discrete unit of ledger time, monotonically non-decreasing
	Slot uint32

	// Tip is the most recent point of ledger progress known to a component.
	// An indexer which has not processed anything yet reports the genesis tip
	Tip struct {
		Slot      Slot
		AtGenesis bool
	}

	OutputDataWithID struct {
		ID         OutputID
		OutputData []byte
	}

	StateReadAccess interface {
		GetUTXO(id *OutputID) ([]byte, bool)
		HasTransaction(txid *TransactionID) bool
	}

	IndexerAccess interface {
		GetUTXOsForAccountID(accountID []byte, state StateReadAccess) ([]*OutputDataWithID, error)
		GetUTXO(id *OutputID, state StateReadAccess) (*OutputDataWithID, bool)
		Tip() Tip
	}

	StateStore interface {
		common.KVReader
		common.BatchedUpdatable
	}

	IndexerStore interface {
		common.BatchedUpdatable
		common.Traversable
		common.KVReader
	}
)

// GenesisOutputID is an all-0 outputID
var GenesisOutputID OutputID

// GenesisTip maps to slot 0 for all slot comparisons
var GenesisTip = Tip{Slot: 0, AtGenesis: true}

func TransactionIDFromBytes(data []byte) (ret TransactionID, err error) {
	if len(data) != TransactionIDLength {
		err = errors.New("TransactionIDFromBytes: wrong data length")
		return
	}
	copy(ret[:], data)
	return
}

func (txid *TransactionID) Bytes() []byte {
	return txid[:]
}

func (txid *TransactionID) String() string {
	return easyfl.Fmt(txid[:])
}

func NewOutputID(id TransactionID, idx byte) (ret OutputID) {
	copy(ret[:TransactionIDLength], id[:])
	ret[TransactionIDLength] = idx
	return
}

func OutputIDFromBytes(data []byte) (ret OutputID, err error) {
	if len(data) != OutputIDLength {
		err = errors.New("OutputIDFromBytes: wrong data length")
		return
	}
	copy(ret[:], data)
	return
}

func (oid *OutputID) String() string {
	txid := oid.TransactionID()
	return fmt.Sprintf("[%d]%s", oid.Index(), txid.String())
}

func (oid *OutputID) TransactionID() (ret TransactionID) {
	copy(ret[:], oid[:TransactionIDLength])
	return
}

func (oid *OutputID) Index() byte {
	return oid[TransactionIDLength]
}

func (oid *OutputID) Bytes() []byte {
	return oid[:]
}
