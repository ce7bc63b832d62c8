package constraints

import (
	"encoding/hex"
	"fmt"

	"github.com/lunfardo314/easyfl"
)

// GeneralScript is an opaque constraint not recognized by the registry

type GeneralScript []byte

func NewGeneralScript(data []byte) GeneralScript {
	return data
}

func (u GeneralScript) Name() string {
	return "GeneralScript"
}

func (u GeneralScript) Bytes() []byte {
	return u
}

func (u GeneralScript) String() string {
	return fmt.Sprintf("GeneralScript(%s)", easyfl.Fmt(u))
}

// Datum carries inline data on an output. It is never interpreted by any
// lock predicate. The unit datum carries no data at all

type Datum []byte

const (
	datumName     = "datum"
	datumTemplate = datumName + "(0x%s)"
)

const datumSource = `
// $0 - opaque datum data, ignored by all predicates
func datum: equal($0, $0)
`

func NewDatum(data []byte) Datum {
	return data
}

// UnitDatum is the datum which carries no information
func UnitDatum() Datum {
	return NewDatum([]byte{})
}

func DatumFromBytes(data []byte) (Datum, error) {
	sym, _, args, err := easyfl.ParseBytecodeOneLevel(data, 1)
	if err != nil {
		return nil, err
	}
	if sym != datumName {
		return nil, fmt.Errorf("not a datum")
	}
	return easyfl.StripDataPrefix(args[0]), nil
}

func (d Datum) source() string {
	return fmt.Sprintf(datumTemplate, hex.EncodeToString(d))
}

func (d Datum) Bytes() []byte {
	return mustBinFromSource(d.source())
}

func (d Datum) Name() string {
	return datumName
}

func (d Datum) String() string {
	return d.source()
}

func (d Datum) Data() []byte {
	return d
}

func initDatumConstraint() {
	easyfl.MustExtendMany(datumSource)

	example := NewDatum([]byte("data"))
	back, err := DatumFromBytes(example.Bytes())
	easyfl.AssertNoError(err)
	easyfl.Assert(Equal(back, example), "inconsistency "+datumName)

	prefix, err := easyfl.ParseBytecodePrefix(example.Bytes())
	easyfl.AssertNoError(err)

	registerConstraint(datumName, prefix, func(data []byte) (Constraint, error) {
		return DatumFromBytes(data)
	})
}
