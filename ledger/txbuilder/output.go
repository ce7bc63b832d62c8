package txbuilder

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/utxolock/ledger"
	"github.com/lunfardo314/utxolock/ledger/constraints"
	"github.com/lunfardo314/utxolock/ledger/tuples"
)

// Output is an array of constraint bytecodes. Amount, timestamp and lock
// are mandatory and sit at fixed indices; a datum and any further
// constraints are optional

type Output struct {
	arr *tuples.Array
}

type OutputWithID struct {
	ID     ledger.OutputID
	Output *Output
}

func NewOutput() *Output {
	return &Output{
		arr: tuples.EmptyArray(),
	}
}

func OutputBasic(amount uint64, ts uint32, lock constraints.Lock) *Output {
	return NewOutput().WithAmount(amount).WithTimestamp(ts).WithLockConstraint(lock)
}

func OutputFromBytes(data []byte) (*Output, error) {
	arr, err := tuples.ArrayFromBytes(data)
	if err != nil {
		return nil, err
	}
	ret := &Output{arr: arr}
	if ret.arr.NumElements() < constraints.NumRequiredConstraints {
		return nil, fmt.Errorf("at least %d constraints expected", constraints.NumRequiredConstraints)
	}
	if _, err = constraints.AmountFromBytes(ret.arr.At(int(constraints.ConstraintIndexAmount))); err != nil {
		return nil, err
	}
	if _, err = constraints.TimestampFromBytes(ret.arr.At(int(constraints.ConstraintIndexTimestamp))); err != nil {
		return nil, err
	}
	if _, err = constraints.LockFromBytes(ret.arr.At(int(constraints.ConstraintIndexLock))); err != nil {
		return nil, err
	}
	return ret, nil
}

func (o *Output) WithAmount(amount uint64) *Output {
	o.arr.PutAtIdxGrow(constraints.ConstraintIndexAmount, constraints.NewAmount(amount).Bytes())
	return o
}

func (o *Output) WithTimestamp(ts uint32) *Output {
	o.arr.PutAtIdxGrow(constraints.ConstraintIndexTimestamp, constraints.NewTimestamp(ts).Bytes())
	return o
}

func (o *Output) WithLockConstraint(lock constraints.Lock) *Output {
	o.arr.PutAtIdxGrow(constraints.ConstraintIndexLock, lock.Bytes())
	return o
}

func (o *Output) WithDatum(d constraints.Datum) *Output {
	o.arr.PutAtIdxGrow(constraints.ConstraintIndexDatum, d.Bytes())
	return o
}

func (o *Output) Amount() uint64 {
	ret, err := constraints.AmountFromBytes(o.arr.At(int(constraints.ConstraintIndexAmount)))
	easyfl.AssertNoError(err)
	return ret.Amount()
}

func (o *Output) Timestamp() uint32 {
	ret, err := constraints.TimestampFromBytes(o.arr.At(int(constraints.ConstraintIndexTimestamp)))
	easyfl.AssertNoError(err)
	return ret.Time()
}

func (o *Output) Lock() constraints.Lock {
	ret, err := constraints.LockFromBytes(o.arr.At(int(constraints.ConstraintIndexLock)))
	easyfl.AssertNoError(err)
	return ret
}

// Datum returns the datum constraint, if the output carries one
func (o *Output) Datum() (constraints.Datum, bool) {
	if o.arr.NumElements() <= int(constraints.ConstraintIndexDatum) {
		return nil, false
	}
	ret, err := constraints.DatumFromBytes(o.arr.At(int(constraints.ConstraintIndexDatum)))
	if err != nil {
		return nil, false
	}
	return ret, true
}

// LockedBy tells if the output is locked by the given account
func (o *Output) LockedBy(acc constraints.Accountable) bool {
	return bytes.Equal(o.arr.At(int(constraints.ConstraintIndexLock)), acc.AccountID())
}

func (o *Output) PushConstraint(c []byte) (byte, error) {
	if o.arr.NumElements() >= tuples.MaxNumElements {
		return 0, fmt.Errorf("too many constraints")
	}
	return o.arr.Push(c), nil
}

func (o *Output) Constraint(idx byte) []byte {
	return o.arr.At(int(idx))
}

func (o *Output) NumConstraints() int {
	return o.arr.NumElements()
}

func (o *Output) Bytes() []byte {
	return o.arr.Bytes()
}

func (o *Output) Clone() *Output {
	ret, err := OutputFromBytes(o.Bytes())
	easyfl.AssertNoError(err)
	return ret
}

// ParseAndSortOutputData parses raw indexer records and sorts them by
// amount, smallest first (or descending on request)
func ParseAndSortOutputData(outs []*ledger.OutputDataWithID, desc ...bool) ([]*OutputWithID, error) {
	ret := make([]*OutputWithID, 0, len(outs))
	for _, od := range outs {
		out, err := OutputFromBytes(od.OutputData)
		if err != nil {
			return nil, err
		}
		ret = append(ret, &OutputWithID{
			ID:     od.ID,
			Output: out,
		})
	}
	if len(desc) > 0 && desc[0] {
		sort.Slice(ret, func(i, j int) bool {
			return ret[i].Output.Amount() > ret[j].Output.Amount()
		})
	} else {
		sort.Slice(ret, func(i, j int) bool {
			return ret[i].Output.Amount() < ret[j].Output.Amount()
		})
	}
	return ret, nil
}
