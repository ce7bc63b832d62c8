package constraints

import (
	"encoding/binary"
	"fmt"

	"github.com/lunfardo314/easyfl"
)

const timestampSource = `
// $0 - timestamp bytes, Unix seconds uint32 big-endian. Strict monotonicity
// against consumed outputs is enforced by the ledger state update
func timestamp: equal(len8($0), 4)
`

const (
	timestampName     = "timestamp"
	timestampTemplate = timestampName + "(u32/%d)"
)

type Timestamp uint32

func NewTimestamp(ts uint32) Timestamp {
	return Timestamp(ts)
}

func TimestampFromBytes(data []byte) (Timestamp, error) {
	sym, _, args, err := easyfl.ParseBytecodeOneLevel(data, 1)
	if err != nil {
		return 0, err
	}
	if sym != timestampName {
		return 0, fmt.Errorf("not a 'timestamp' constraint")
	}
	tsBin := easyfl.StripDataPrefix(args[0])
	if len(tsBin) != 4 {
		return 0, fmt.Errorf("wrong data length")
	}
	return Timestamp(binary.BigEndian.Uint32(tsBin)), nil
}

func (t Timestamp) Name() string {
	return timestampName
}

func (t Timestamp) source() string {
	return fmt.Sprintf(timestampTemplate, uint32(t))
}

func (t Timestamp) Bytes() []byte {
	return mustBinFromSource(t.source())
}

func (t Timestamp) String() string {
	return t.source()
}

func (t Timestamp) Time() uint32 {
	return uint32(t)
}

func initTimestampConstraint() {
	easyfl.MustExtendMany(timestampSource)

	example := NewTimestamp(1337)
	sym, prefix, args, err := easyfl.ParseBytecodeOneLevel(example.Bytes(), 1)
	easyfl.AssertNoError(err)
	tsBin := easyfl.StripDataPrefix(args[0])
	easyfl.Assert(sym == timestampName && len(tsBin) == 4 && binary.BigEndian.Uint32(tsBin) == 1337,
		"'timestamp' consistency check failed")

	registerConstraint(timestampName, prefix, func(data []byte) (Constraint, error) {
		return TimestampFromBytes(data)
	})
}
