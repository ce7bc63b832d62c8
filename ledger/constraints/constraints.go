package constraints

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/unitrie/common"
)

// Constraint indices of the mandatory output blocks
const (
	ConstraintIndexAmount = byte(iota)
	ConstraintIndexTimestamp
	ConstraintIndexLock
	ConstraintIndexDatum
	NumRequiredConstraints = 3
)

type (
	Constraint interface {
		Name() string
		Bytes() []byte
		String() string
	}

	AccountID []byte

	Accountable interface {
		Constraint
		AccountID() AccountID
	}

	// SpendContext is the immutable data the ledger supplies to a lock
	// predicate at spend time: the signed transaction essence and the
	// signature/public key taken from the spending transaction
	SpendContext struct {
		Essence   []byte
		Signature []byte
		PublicKey ed25519.PublicKey
	}

	Lock interface {
		Accountable
		UnlockableWith(ctx *SpendContext) bool
	}

	Parser func([]byte) (Constraint, error)

	constraintRecord struct {
		name   string
		prefix []byte
		parser Parser
	}
)

var (
	constraintByPrefix = make(map[string]*constraintRecord)
	constraintNames    = make(map[string]struct{})
)

func registerConstraint(name string, prefix []byte, parser Parser) {
	_, already := constraintNames[name]
	easyfl.Assert(!already, "repeating constraint name '%s'", name)
	_, already = constraintByPrefix[string(prefix)]
	easyfl.Assert(!already, "repeating constraint prefix %s with name '%s'", easyfl.Fmt(prefix), name)
	easyfl.Assert(0 < len(prefix) && len(prefix) <= 2, "wrong constraint prefix %s, name: %s", easyfl.Fmt(prefix), name)
	constraintByPrefix[string(prefix)] = &constraintRecord{
		name:   name,
		prefix: common.Concat(prefix),
		parser: parser,
	}
	constraintNames[name] = struct{}{}
}

func NameByPrefix(prefix []byte) (string, bool) {
	if ret, found := constraintByPrefix[string(prefix)]; found {
		return ret.name, true
	}
	return "", false
}

func parserByPrefix(prefix []byte) (Parser, bool) {
	if ret, found := constraintByPrefix[string(prefix)]; found {
		return ret.parser, true
	}
	return nil, false
}

func mustBinFromSource(src string) []byte {
	_, _, binCode, err := easyfl.CompileExpression(src)
	easyfl.AssertNoError(err)
	return binCode
}

func Equal(c1, c2 Constraint) bool {
	if common.IsNil(c1) || common.IsNil(c2) {
		return false
	}
	return bytes.Equal(c1.Bytes(), c2.Bytes())
}

func FromBytes(data []byte) (Constraint, error) {
	prefix, err := easyfl.ParseBytecodePrefix(data)
	if err != nil {
		return nil, err
	}
	if parser, ok := parserByPrefix(prefix); ok {
		return parser(data)
	}
	return NewGeneralScript(data), nil
}

func LockFromBytes(data []byte) (Lock, error) {
	prefix, err := easyfl.ParseBytecodePrefix(data)
	if err != nil {
		return nil, err
	}
	name, ok := NameByPrefix(prefix)
	if !ok {
		return nil, fmt.Errorf("unknown constraint with prefix '%s'", easyfl.Fmt(prefix))
	}
	switch name {
	case addressED25519Name:
		return AddressED25519FromBytes(data)
	case payToKeyHashName:
		return PayToKeyHashFromBytes(data)
	}
	return nil, fmt.Errorf("not a lock constraint '%s'", name)
}

func AccountableFromBytes(data []byte) (Accountable, error) {
	ret, err := LockFromBytes(data)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (acc AccountID) Bytes() []byte {
	return acc
}

// the signature predicate shared by all key-locked constraints.
// It is evaluated by the easyfl engine, the same engine which runs
// constraint scripts on-chain

const unlockedWithKeySource = `
// $0 - 32-byte key hash (blake2b-256 of the public key)
// $1 - signature
// $2 - public key
// $3 - signed data (transaction essence)
// return true if the signature is valid and the public key hashes to the key hash
func unlockedWithKeyED25519: and(
	equal($0, blake2b($2)),
	validSignatureED25519($3, $1, $2)
)
`

// unlockedWithKey evaluates the predicate over concrete data. Any panic or
// evaluation error means 'not unlockable', never a crash of the caller
func unlockedWithKey(keyHash []byte, ctx *SpendContext) bool {
	if ctx == nil {
		return false
	}
	var ret []byte
	err := easyfl.CatchPanicOrError(func() error {
		var err1 error
		ret, err1 = easyfl.EvalFromSource(nil, "unlockedWithKeyED25519($0, $1, $2, $3)",
			keyHash, ctx.Signature, ctx.PublicKey, ctx.Essence)
		return err1
	})
	return err == nil && len(ret) > 0
}

func init() {
	easyfl.MustExtendMany(unlockedWithKeySource)

	initAmountConstraint()
	initTimestampConstraint()
	initAddressED25519Constraint()
	initPayToKeyHashConstraint()
	initDatumConstraint()
}
