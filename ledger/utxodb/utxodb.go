package utxodb

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/unitrie/common"
	"github.com/lunfardo314/utxolock/ledger"
	"github.com/lunfardo314/utxolock/ledger/constraints"
	"github.com/lunfardo314/utxolock/ledger/indexer"
	"github.com/lunfardo314/utxolock/ledger/state"
	"github.com/lunfardo314/utxolock/ledger/txbuilder"
	"github.com/lunfardo314/utxolock/util/fifoqueue"
	"github.com/lunfardo314/utxolock/util/slotclock"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// UTXODB is an in-memory ledger with a faucet, a slot clock and an account
// indexer which trails confirmation by a configurable number of slots. It
// implements all collaborator interfaces of the locking workflow: adjuster,
// submitter, confirmation tracker, slot oracle, slot waiter, index tip
// reader and index output reader.
//
// Ledger state and indexer are two separate components updated at separate
// times, so the state can be ahead of the indexer. This mirrors the real
// deployment topology the workflow is written against

type (
	UTXODB struct {
		mutex      sync.Mutex
		stateStore ledger.StateStore
		state      *state.Updatable
		// index exposed to the workflow, trails by indexLag slots
		indexer *indexer.Indexer
		// wallet's own view, always current; backs coin selection
		walletIndexer *indexer.Indexer
		clock         *slotclock.SlotClock
		indexLag      uint32
		pendingIndex  []*pendingIndexUpdate
		txStatus      map[ledger.TransactionID]*txStatus
		queue         *fifoqueue.FIFOQueue[[]byte]

		supply            uint64
		genesisPrivateKey ed25519.PrivateKey
		genesisPublicKey  ed25519.PublicKey
		genesisAddress    constraints.AddressED25519
		log               *zap.SugaredLogger
	}

	pendingIndexUpdate struct {
		slot ledger.Slot
		cmds []*indexer.Command
	}

	txStatus struct {
		done chan struct{}
		err  error
		slot ledger.Slot
	}
)

const (
	// for determinism
	originPrivateKey  = "8ec47313c15c3a4443c41619735109b56bc818f4a6b71d6a1f186ec96d15f28f14117899305d99fb4775de9223ce9886cfaa3195da1e40c5db47c61266f04dd2"
	deterministicSeed = "1234567890987654321"
	supplyForTesting  = uint64(1_000_000_000_000)

	TokensFromFaucetDefault = uint64(1_000_000)
)

var stateIdentity = []byte("utxolock.utxodb.v1")

// New creates the ledger with the index trailing confirmations by indexLag
// slots. The clock is simulated: WaitSlots advances it
func New(indexLag uint32, log ...*zap.SugaredLogger) *UTXODB {
	originPrivateKeyBin, err := hex.DecodeString(originPrivateKey)
	easyfl.AssertNoError(err)
	genesisPrivateKey := ed25519.PrivateKey(originPrivateKeyBin)
	genesisPublicKey := genesisPrivateKey.Public().(ed25519.PublicKey)
	genesisAddress := constraints.AddressED25519FromPublicKey(genesisPublicKey)

	stateStore := common.NewInMemoryKVStore()
	root := state.MustInitLedgerState(stateStore, stateIdentity, genesisAddress, supplyForTesting)
	updatable, err := state.NewUpdatable(stateStore, root)
	easyfl.AssertNoError(err)

	ret := &UTXODB{
		stateStore:        stateStore,
		state:             updatable,
		indexer:           indexer.NewInMemory(),
		walletIndexer:     indexer.NewInMemory(),
		clock:             slotclock.NewManual(0),
		indexLag:          indexLag,
		pendingIndex:      make([]*pendingIndexUpdate, 0),
		txStatus:          make(map[ledger.TransactionID]*txStatus),
		queue:             fifoqueue.New[[]byte](),
		supply:            supplyForTesting,
		genesisPrivateKey: genesisPrivateKey,
		genesisPublicKey:  genesisPublicKey,
		genesisAddress:    genesisAddress,
		log:               zap.NewNop().Sugar(),
	}
	if len(log) > 0 && log[0] != nil {
		ret.log = log[0]
	}

	genesisCmds := []*indexer.Command{{
		AccountID: genesisAddress.AccountID(),
		OutputID:  ledger.GenesisOutputID,
	}}
	easyfl.AssertNoError(ret.indexer.Update(0, genesisCmds))
	easyfl.AssertNoError(ret.walletIndexer.Update(0, genesisCmds))

	go ret.queue.Consume(ret.applyTx)
	return ret
}

func (u *UTXODB) Supply() uint64 {
	return u.supply
}

func (u *UTXODB) StateAccess() ledger.StateReadAccess {
	return u.state.Readable()
}

func (u *UTXODB) IndexerAccess() ledger.IndexerAccess {
	return u.indexer
}

func (u *UTXODB) GenesisKeys() (ed25519.PrivateKey, ed25519.PublicKey) {
	return u.genesisPrivateKey, u.genesisPublicKey
}

func (u *UTXODB) GenesisAddress() constraints.AddressED25519 {
	return u.genesisAddress
}

// GenerateAddress deterministically generates a private key with the
// corresponding native address
func (u *UTXODB) GenerateAddress(n uint16) (ed25519.PrivateKey, ed25519.PublicKey, constraints.AddressED25519) {
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], n)
	seed := blake2b.Sum256(common.Concat([]byte(deterministicSeed), u16[:]))
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)
	addr := constraints.AddressED25519FromPublicKey(pub)
	return priv, pub, addr
}

// ---------------------------------------------------------------------
// transaction submission pipeline

// Submit accepts transaction bytes for asynchronous processing and returns
// the transaction ID. Validation failures surface through AwaitConfirmed
func (u *UTXODB) Submit(txBytes []byte) (ledger.TransactionID, error) {
	tx, err := txbuilder.TransactionFromBytes(txBytes)
	if err != nil {
		return ledger.TransactionID{}, fmt.Errorf("submit: %v", err)
	}
	txid := tx.ID()

	u.mutex.Lock()
	if _, already := u.txStatus[txid]; already {
		u.mutex.Unlock()
		return ledger.TransactionID{}, fmt.Errorf("submit: repeating transaction %s", txid.String())
	}
	u.txStatus[txid] = &txStatus{done: make(chan struct{})}
	u.mutex.Unlock()

	u.queue.Push(txBytes)
	u.log.Debugf("submitted transaction %s", txid.String())
	return txid, nil
}

func (u *UTXODB) applyTx(txBytes []byte) {
	txid := blake2b.Sum256(txBytes)

	u.mutex.Lock()
	defer u.mutex.Unlock()

	status, found := u.txStatus[ledger.TransactionID(txid)]
	easyfl.Assert(found, "applyTx: unknown transaction")

	cmds, err := u.state.Update(txBytes)
	if err != nil {
		status.err = err
		u.log.Debugf("transaction %s rejected: %v", easyfl.Fmt(txid[:]), err)
		close(status.done)
		return
	}
	slot := u.clock.CurrentSlot()
	status.slot = slot

	// the wallet sees the update immediately, the public index trails
	easyfl.AssertNoError(u.walletIndexer.Update(slot, cmds))
	if u.indexLag == 0 {
		easyfl.AssertNoError(u.indexer.Update(slot, cmds))
	} else {
		u.pendingIndex = append(u.pendingIndex, &pendingIndexUpdate{slot: slot, cmds: cmds})
	}
	u.log.Debugf("transaction %s confirmed in slot %d", easyfl.Fmt(txid[:]), slot)
	close(status.done)
}

// AwaitConfirmed blocks until the ledger reports the transaction confirmed,
// or the submission error if it was rejected
func (u *UTXODB) AwaitConfirmed(ctx context.Context, txid ledger.TransactionID) error {
	u.mutex.Lock()
	status, found := u.txStatus[txid]
	u.mutex.Unlock()
	if !found {
		return fmt.Errorf("awaitConfirmed: unknown transaction %s", txid.String())
	}
	select {
	case <-status.done:
		return status.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------------------------------------------------------------------
// slot oracle, slot waiter, index access

func (u *UTXODB) CurrentSlot() ledger.Slot {
	return u.clock.CurrentSlot()
}

// WaitSlots suspends until n further slots have elapsed, then lets the
// index catch up with everything older than the lag window
func (u *UTXODB) WaitSlots(ctx context.Context, n uint32) error {
	if err := u.clock.WaitSlots(ctx, n); err != nil {
		return err
	}
	u.catchUpIndex()
	return nil
}

func (u *UTXODB) catchUpIndex() {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	cur := uint32(u.clock.CurrentSlot())
	if cur < u.indexLag {
		return
	}
	visible := ledger.Slot(cur - u.indexLag)

	rest := u.pendingIndex[:0]
	for _, p := range u.pendingIndex {
		if p.slot <= visible {
			easyfl.AssertNoError(u.indexer.Update(p.slot, p.cmds))
		} else {
			rest = append(rest, p)
		}
	}
	u.pendingIndex = rest
	if u.indexer.Tip().Slot < visible {
		easyfl.AssertNoError(u.indexer.MoveTip(visible))
	}
}

// Tip returns the lagging index tip, as the workflow observes it
func (u *UTXODB) Tip() ledger.Tip {
	return u.indexer.Tip()
}

// UnspentOutput is the best-effort indexed read; absent until the index
// catches up with the output's slot
func (u *UTXODB) UnspentOutput(oid ledger.OutputID) (*txbuilder.Output, bool) {
	od, found := u.indexer.GetUTXO(&oid, u.state.Readable())
	if !found {
		return nil, false
	}
	out, err := txbuilder.OutputFromBytes(od.OutputData)
	if err != nil {
		return nil, false
	}
	return out, true
}

// ---------------------------------------------------------------------
// transaction adjustment (balancing) with the genesis wallet

// Adjust balances the unbalanced transaction skeleton: keeps its produced
// outputs, consumes genesis wallet outputs to cover them, pays the
// remainder back to the wallet and signs the result
func (u *UTXODB) Adjust(txBytes []byte) ([]byte, error) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	tx, err := txbuilder.TransactionFromBytes(txBytes)
	if err != nil {
		return nil, fmt.Errorf("adjust: %v", err)
	}
	if tx.NumInputs() > 0 {
		return nil, fmt.Errorf("adjust: expected unbalanced transaction without inputs")
	}
	targetOutputs := make([]*txbuilder.Output, 0, tx.NumProducedOutputs())
	totalAmount := uint64(0)
	err = tx.ForEachProducedOutput(func(_ byte, out *txbuilder.Output, _ ledger.OutputID) bool {
		targetOutputs = append(targetOutputs, out)
		totalAmount += out.Amount()
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("adjust: %v", err)
	}

	outsData, err := u.walletIndexer.GetUTXOsForAccountID(u.genesisAddress.AccountID(), u.state.Readable())
	if err != nil {
		return nil, fmt.Errorf("adjust: %v", err)
	}
	outs, err := txbuilder.ParseAndSortOutputData(outsData, true)
	if err != nil {
		return nil, fmt.Errorf("adjust: %v", err)
	}

	builder := txbuilder.NewTransactionBuilder()
	ts := tx.Timestamp()
	available := uint64(0)
	for _, o := range outs {
		if available >= totalAmount {
			break
		}
		if _, err = builder.ConsumeOutput(o.Output, o.ID); err != nil {
			return nil, fmt.Errorf("adjust: %v", err)
		}
		if o.Output.Timestamp() >= ts {
			ts = o.Output.Timestamp() + 1
		}
		available += o.Output.Amount()
	}
	if available < totalAmount {
		return nil, fmt.Errorf("adjust: not enough tokens in the wallet: needed %d, got %d", totalAmount, available)
	}
	for _, out := range targetOutputs {
		out.WithTimestamp(ts)
		if _, err = builder.ProduceOutput(out); err != nil {
			return nil, fmt.Errorf("adjust: %v", err)
		}
	}
	if available > totalAmount {
		remainder := txbuilder.OutputBasic(available-totalAmount, ts, u.genesisAddress)
		if _, err = builder.ProduceOutput(remainder); err != nil {
			return nil, fmt.Errorf("adjust: %v", err)
		}
	}
	builder.Transaction.Timestamp = ts
	builder.Transaction.InputCommitment = builder.InputCommitment()
	builder.SignED25519(u.genesisPrivateKey)
	return builder.Transaction.Bytes(), nil
}

// ---------------------------------------------------------------------
// faucet and transfers

func (u *UTXODB) submitAndWait(txBytes []byte) error {
	txid, err := u.Submit(txBytes)
	if err != nil {
		return err
	}
	return u.AwaitConfirmed(context.Background(), txid)
}

func (u *UTXODB) makeTransferParams(privKey ed25519.PrivateKey) (*txbuilder.ED25519TransferParams, error) {
	par := txbuilder.NewED25519TransferParams(privKey)

	u.mutex.Lock()
	outsData, err := u.walletIndexer.GetUTXOsForAccountID(par.SenderAddress.AccountID(), u.state.Readable())
	u.mutex.Unlock()
	if err != nil {
		return nil, err
	}
	outs, err := txbuilder.ParseAndSortOutputData(outsData, true)
	if err != nil {
		return nil, err
	}
	return par.WithOutputs(outs), nil
}

func (u *UTXODB) TokensFromFaucet(addr constraints.AddressED25519, howMany ...uint64) error {
	amount := TokensFromFaucetDefault
	if len(howMany) > 0 && howMany[0] > 0 {
		amount = howMany[0]
	}
	par, err := u.makeTransferParams(u.genesisPrivateKey)
	if err != nil {
		return err
	}
	txBytes, err := txbuilder.MakeTransferTransaction(par.WithAmount(amount).WithTargetLock(addr))
	if err != nil {
		return fmt.Errorf("UTXODB faucet: %v", err)
	}
	return u.submitAndWait(txBytes)
}

func (u *UTXODB) TransferTokens(privKey ed25519.PrivateKey, targetLock constraints.Lock, amount uint64) error {
	par, err := u.makeTransferParams(privKey)
	if err != nil {
		return err
	}
	txBytes, err := txbuilder.MakeTransferTransaction(par.WithAmount(amount).WithTargetLock(targetLock))
	if err != nil {
		return err
	}
	return u.submitAndWait(txBytes)
}

// SpendLocked spends the script-locked output back to the target lock,
// signed with the given key. Succeeds only if the key hashes to the
// parameter of the payToKeyHash lock
func (u *UTXODB) SpendLocked(privKey ed25519.PrivateKey, lockedID ledger.OutputID, target constraints.Lock) error {
	u.mutex.Lock()
	outData, found := u.state.Readable().GetUTXO(&lockedID)
	u.mutex.Unlock()
	if !found {
		return fmt.Errorf("spendLocked: can't find UTXO %s", lockedID.String())
	}
	out, err := txbuilder.OutputFromBytes(outData)
	if err != nil {
		return err
	}

	builder := txbuilder.NewTransactionBuilder()
	if _, err = builder.ConsumeOutput(out, lockedID); err != nil {
		return err
	}
	ts := out.Timestamp() + 1
	produced := txbuilder.OutputBasic(out.Amount(), ts, target)
	if _, err = builder.ProduceOutput(produced); err != nil {
		return err
	}
	builder.Transaction.Timestamp = ts
	builder.Transaction.InputCommitment = builder.InputCommitment()
	builder.SignED25519(privKey)

	return u.submitAndWait(builder.Transaction.Bytes())
}

// ---------------------------------------------------------------------
// account queries through the wallet index

func (u *UTXODB) account(addr constraints.Accountable) (uint64, int) {
	u.mutex.Lock()
	outsData, err := u.walletIndexer.GetUTXOsForAccountID(addr.AccountID(), u.state.Readable())
	u.mutex.Unlock()
	easyfl.AssertNoError(err)

	balance := uint64(0)
	for _, o := range outsData {
		out, err := txbuilder.OutputFromBytes(o.OutputData)
		easyfl.AssertNoError(err)
		balance += out.Amount()
	}
	return balance, len(outsData)
}

func (u *UTXODB) Balance(addr constraints.Accountable) uint64 {
	ret, _ := u.account(addr)
	return ret
}

func (u *UTXODB) NumUTXOs(addr constraints.Accountable) int {
	_, ret := u.account(addr)
	return ret
}
