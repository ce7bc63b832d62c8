package constraints

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/lunfardo314/easyfl"
	"golang.org/x/crypto/blake2b"
)

// PayToKeyHash is the script lock parameterized by a key hash: the output
// can only be spent by a transaction signed with the corresponding private
// key. At the ledger level the output is a general script output, not a
// native pay-to-pubkey one: the compiled script bytecode is the account ID
// (the script address), a pure function of the key hash.

type PayToKeyHash []byte

const (
	payToKeyHashName     = "payToKeyHash"
	payToKeyHashTemplate = payToKeyHashName + "(0x%s)"
)

const payToKeyHashSource = `
// $0 - 32-byte key hash which parameterizes the script.
// Spend authorization is checked with 'unlockedWithKeyED25519' over the
// unlock data of the spending transaction. Datum and unlock redeemer of
// the output carry no information for this script
func payToKeyHash: equal(len8($0), 32)
`

// NewPayToKeyHash derives the lock instance from the key hash. Pure and
// total: equal key hashes always produce equal script addresses
func NewPayToKeyHash(keyHash []byte) PayToKeyHash {
	easyfl.Assert(len(keyHash) == 32, "payToKeyHash: wrong key hash length")
	ret := make([]byte, 32)
	copy(ret, keyHash)
	return ret
}

func PayToKeyHashFromPublicKey(pubKey ed25519.PublicKey) PayToKeyHash {
	h := blake2b.Sum256(pubKey)
	return h[:]
}

func PayToKeyHashFromBytes(data []byte) (PayToKeyHash, error) {
	sym, _, args, err := easyfl.ParseBytecodeOneLevel(data, 1)
	if err != nil {
		return nil, err
	}
	if sym != payToKeyHashName {
		return nil, fmt.Errorf("not a payToKeyHash")
	}
	hashBin := easyfl.StripDataPrefix(args[0])
	if len(hashBin) != 32 {
		return nil, fmt.Errorf("wrong data length")
	}
	return hashBin, nil
}

func (p PayToKeyHash) source() string {
	return fmt.Sprintf(payToKeyHashTemplate, hex.EncodeToString(p))
}

// Bytes is the compiled script. It doubles as the script address
func (p PayToKeyHash) Bytes() []byte {
	return mustBinFromSource(p.source())
}

func (p PayToKeyHash) AccountID() AccountID {
	return p.Bytes()
}

func (p PayToKeyHash) KeyHash() []byte {
	return p
}

func (p PayToKeyHash) UnlockableWith(ctx *SpendContext) bool {
	return unlockedWithKey(p, ctx)
}

// Validate is the authorization predicate evaluated at spend time: true iff
// the spending transaction is signed by the key hashing to the parameter.
// Datum and redeemer are ignored entirely
func (p PayToKeyHash) Validate(_, _ []byte, ctx *SpendContext) bool {
	return unlockedWithKey(p, ctx)
}

func (p PayToKeyHash) Name() string {
	return payToKeyHashName
}

func (p PayToKeyHash) String() string {
	return p.source()
}

func initPayToKeyHashConstraint() {
	easyfl.MustExtendMany(payToKeyHashSource)

	example := NewPayToKeyHash(make([]byte, 32))
	back, err := PayToKeyHashFromBytes(example.Bytes())
	easyfl.AssertNoError(err)
	easyfl.Assert(Equal(back, example), "inconsistency "+payToKeyHashName)

	prefix, err := easyfl.ParseBytecodePrefix(example.Bytes())
	easyfl.AssertNoError(err)

	registerConstraint(payToKeyHashName, prefix, func(data []byte) (Constraint, error) {
		return PayToKeyHashFromBytes(data)
	})
}
