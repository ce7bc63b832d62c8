package state

import (
	"time"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/unitrie/common"
	"github.com/lunfardo314/unitrie/immutable"
	"github.com/lunfardo314/unitrie/models/trie_blake2b"
	"github.com/lunfardo314/utxolock/ledger"
	"github.com/lunfardo314/utxolock/ledger/constraints"
	"github.com/lunfardo314/utxolock/ledger/indexer"
	"github.com/lunfardo314/utxolock/ledger/txbuilder"
)

type (
	// Updatable is an updatable ledger state, with the particular root.
	// Suitable for chained updates
	Updatable struct {
		store ledger.StateStore
		root  common.VCommitment
	}

	// Readable is a read-only ledger state, with the particular root
	Readable struct {
		trie *immutable.TrieReader
	}
)

// commitment model singleton

var commitmentModel = trie_blake2b.New(common.PathArity16, trie_blake2b.HashSize256)

// MustInitLedgerState initializes origin ledger state in the empty store:
// the whole supply on one genesis output with the all-0 output ID
func MustInitLedgerState(store common.KVWriter, identity []byte, genesisLock constraints.Lock, initialSupply uint64) common.VCommitment {
	easyfl.Assert(initialSupply > 0, "initialSupply > 0")

	storeTmp := common.NewInMemoryKVStore()
	emptyRoot := immutable.MustInitRoot(storeTmp, commitmentModel, identity)
	trie, err := immutable.NewTrieChained(commitmentModel, storeTmp, emptyRoot)
	easyfl.AssertNoError(err)

	genesisOut := txbuilder.OutputBasic(initialSupply, uint32(time.Now().Unix()), genesisLock)
	trie.Update(ledger.GenesisOutputID[:], genesisOut.Bytes())
	trie = trie.CommitChained()
	common.CopyAll(store, storeTmp)
	return trie.Root()
}

// NewReadable creates read-only ledger state with the given root
func NewReadable(store common.KVReader, root common.VCommitment) (*Readable, error) {
	trie, err := immutable.NewTrieReader(commitmentModel, store, root)
	if err != nil {
		return nil, err
	}
	return &Readable{trie}, nil
}

// NewUpdatable creates updatable state with the given root. After updated,
// the root changes
func NewUpdatable(store ledger.StateStore, root common.VCommitment) (*Updatable, error) {
	_, err := immutable.NewTrieReader(commitmentModel, store, root)
	if err != nil {
		return nil, err
	}
	return &Updatable{
		root:  root.Clone(),
		store: store,
	}, nil
}

func (u *Updatable) Readable() *Readable {
	trie, err := immutable.NewTrieReader(commitmentModel, u.store, u.root)
	common.AssertNoError(err)
	return &Readable{
		trie: trie,
	}
}

// Root returns the current root
func (u *Updatable) Root() common.VCommitment {
	return u.root
}

func (r *Readable) GetUTXO(oid *ledger.OutputID) ([]byte, bool) {
	ret := r.trie.Get(oid.Bytes())
	if len(ret) == 0 {
		return nil, false
	}
	return ret, true
}

func (r *Readable) HasTransaction(txid *ledger.TransactionID) bool {
	ret := false
	r.trie.Iterator(txid.Bytes()).IterateKeys(func(_ []byte) bool {
		ret = true
		return false
	})
	return ret
}

// Update validates the transaction against the current state and mutates
// the ledger state with it. Returns commands for the indexer
func (u *Updatable) Update(txBytes []byte) ([]*indexer.Command, error) {
	tx, err := txbuilder.TransactionFromBytes(txBytes)
	if err != nil {
		return nil, err
	}
	indexerUpdate, err := validateTransaction(tx, u.Readable())
	if err != nil {
		return nil, err
	}
	trie, err := immutable.NewTrieUpdatable(commitmentModel, u.store, u.root)
	if err != nil {
		return nil, err
	}
	// delete consumed outputs, add produced ones
	for i := 0; i < tx.NumInputs(); i++ {
		oid, err := tx.InputID(byte(i))
		easyfl.AssertNoError(err)
		trie.Update(oid[:], nil)
	}
	err = tx.ForEachProducedOutput(func(idx byte, out *txbuilder.Output, oid ledger.OutputID) bool {
		trie.Update(oid[:], out.Bytes())
		return true
	})
	easyfl.AssertNoError(err)

	batch := u.store.BatchedWriter()
	u.root = trie.Commit(batch)
	return indexerUpdate, batch.Commit()
}
