package indexer

import (
	"encoding/binary"
	"sync"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/unitrie/common"
	"github.com/lunfardo314/utxolock/ledger"
)

// Indexer keeps the account partition (accountID -> output IDs) of the
// ledger state, plus the tip record: the slot its contents reflect.
// The indexer always trails the ledger state it indexes; consumers which
// need a consistent view must compare Tip() against the slot of interest

type Indexer struct {
	mutex *sync.RWMutex
	store ledger.IndexerStore
}

type Command struct {
	AccountID []byte
	OutputID  ledger.OutputID
	Delete    bool
}

// store partitions
const (
	partitionAccount = byte('a')
	partitionOutput  = byte('o')
	partitionTip     = byte('t')
)

var tipKey = []byte{partitionTip}

func New(store ledger.IndexerStore) *Indexer {
	return &Indexer{
		mutex: &sync.RWMutex{},
		store: store,
	}
}

// NewInMemory mostly for testing
func NewInMemory() *Indexer {
	return New(common.NewInMemoryKVStore())
}

// Update applies commands of one state update and moves the tip to the
// slot the update was observed at
func (inr *Indexer) Update(slot ledger.Slot, cmds []*Command) error {
	inr.mutex.Lock()
	defer inr.mutex.Unlock()

	w := inr.store.BatchedWriter()
	for _, c := range cmds {
		accountKey := common.Concat(partitionAccount, c.AccountID, c.OutputID[:])
		outputKey := common.Concat(partitionOutput, c.OutputID[:])
		if c.Delete {
			w.Set(accountKey, nil)
			w.Set(outputKey, nil)
		} else {
			w.Set(accountKey, []byte{0xff})
			w.Set(outputKey, common.Concat(c.AccountID))
		}
	}
	var slotBin [4]byte
	binary.BigEndian.PutUint32(slotBin[:], uint32(slot))
	w.Set(tipKey, slotBin[:])
	return w.Commit()
}

// MoveTip advances the tip without content changes: the indexer observed
// the slot and found nothing to index
func (inr *Indexer) MoveTip(slot ledger.Slot) error {
	return inr.Update(slot, nil)
}

// Tip returns the slot the index contents reflect. An indexer which has
// not processed any update yet is at genesis, which maps to slot 0
func (inr *Indexer) Tip() ledger.Tip {
	inr.mutex.RLock()
	defer inr.mutex.RUnlock()

	slotBin := inr.store.Get(tipKey)
	if len(slotBin) == 0 {
		return ledger.GenesisTip
	}
	easyfl.Assert(len(slotBin) == 4, "corrupted tip record")
	return ledger.Tip{Slot: ledger.Slot(binary.BigEndian.Uint32(slotBin))}
}

func (inr *Indexer) GetUTXOsForAccountID(accountID []byte, state ledger.StateReadAccess) ([]*ledger.OutputDataWithID, error) {
	inr.mutex.RLock()
	defer inr.mutex.RUnlock()

	prefix := common.Concat(partitionAccount, accountID)
	ret := make([]*ledger.OutputDataWithID, 0)
	var err error
	inr.store.Iterator(prefix).Iterate(func(k, _ []byte) bool {
		o := &ledger.OutputDataWithID{}
		o.ID, err = ledger.OutputIDFromBytes(k[len(prefix):])
		if err != nil {
			return false
		}
		var found bool
		o.OutputData, found = state.GetUTXO(&o.ID)
		if !found {
			// the state moved ahead of the index, skip
			return true
		}
		ret = append(ret, o)
		return true
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// GetUTXO is the best-effort read by output ID: absent means the index
// does not know the output (yet), not an error
func (inr *Indexer) GetUTXO(oid *ledger.OutputID, state ledger.StateReadAccess) (*ledger.OutputDataWithID, bool) {
	inr.mutex.RLock()
	defer inr.mutex.RUnlock()

	if len(inr.store.Get(common.Concat(partitionOutput, oid[:]))) == 0 {
		return nil, false
	}
	outputData, found := state.GetUTXO(oid)
	if !found {
		return nil, false
	}
	return &ledger.OutputDataWithID{
		ID:         *oid,
		OutputData: outputData,
	}, true
}
