package constraints

import (
	"encoding/binary"
	"fmt"

	"github.com/lunfardo314/easyfl"
)

const amountSource = `
// $0 - amount uint64 big-endian. The balance between consumed and produced
// amounts is enforced by the ledger state update
func amount: equal(len8($0), 8)
`

const (
	amountName     = "amount"
	amountTemplate = amountName + "(u64/%d)"
)

type Amount uint64

func NewAmount(a uint64) Amount {
	return Amount(a)
}

func AmountFromBytes(data []byte) (Amount, error) {
	sym, _, args, err := easyfl.ParseBytecodeOneLevel(data, 1)
	if err != nil {
		return 0, err
	}
	if sym != amountName {
		return 0, fmt.Errorf("not an 'amount' constraint")
	}
	amountBin := easyfl.StripDataPrefix(args[0])
	if len(amountBin) != 8 {
		return 0, fmt.Errorf("wrong data length")
	}
	return Amount(binary.BigEndian.Uint64(amountBin)), nil
}

func (a Amount) Name() string {
	return amountName
}

func (a Amount) source() string {
	return fmt.Sprintf(amountTemplate, uint64(a))
}

func (a Amount) Bytes() []byte {
	return mustBinFromSource(a.source())
}

func (a Amount) String() string {
	return a.source()
}

func (a Amount) Amount() uint64 {
	return uint64(a)
}

func initAmountConstraint() {
	easyfl.MustExtendMany(amountSource)

	example := NewAmount(1337)
	sym, prefix, args, err := easyfl.ParseBytecodeOneLevel(example.Bytes(), 1)
	easyfl.AssertNoError(err)
	amountBin := easyfl.StripDataPrefix(args[0])
	easyfl.Assert(sym == amountName && len(amountBin) == 8 && binary.BigEndian.Uint64(amountBin) == 1337,
		"'amount' consistency check failed")

	registerConstraint(amountName, prefix, func(data []byte) (Constraint, error) {
		return AmountFromBytes(data)
	})
}
