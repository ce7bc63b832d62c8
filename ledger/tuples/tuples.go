// Package tuples implements the byte-array codec which backs serialization
// of outputs and transactions: a flat array of at most 256 byte slices,
// each length-prefixed with big-endian uint16.
package tuples

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const MaxNumElements = 256

type Array struct {
	elements [][]byte
}

func EmptyArray() *Array {
	return &Array{
		elements: make([][]byte, 0),
	}
}

func MakeArray(elements ...[]byte) *Array {
	ret := EmptyArray()
	for _, el := range elements {
		ret.Push(el)
	}
	return ret
}

func ArrayFromBytes(data []byte) (*Array, error) {
	if len(data) < 2 {
		return nil, errors.New("ArrayFromBytes: data too short")
	}
	n := int(binary.BigEndian.Uint16(data[:2]))
	if n > MaxNumElements {
		return nil, fmt.Errorf("ArrayFromBytes: too many elements: %d", n)
	}
	ret := &Array{
		elements: make([][]byte, n),
	}
	pos := 2
	for i := 0; i < n; i++ {
		if pos+2 > len(data) {
			return nil, errors.New("ArrayFromBytes: unexpected end of data")
		}
		sz := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		pos += 2
		if pos+sz > len(data) {
			return nil, errors.New("ArrayFromBytes: unexpected end of data")
		}
		ret.elements[i] = data[pos : pos+sz]
		pos += sz
	}
	if pos != len(data) {
		return nil, errors.New("ArrayFromBytes: trailing bytes")
	}
	return ret, nil
}

func MustArrayFromBytes(data []byte) *Array {
	ret, err := ArrayFromBytes(data)
	if err != nil {
		panic(err)
	}
	return ret
}

func (a *Array) NumElements() int {
	return len(a.elements)
}

func (a *Array) Push(data []byte) byte {
	if len(a.elements) >= MaxNumElements {
		panic("tuples.Array: too many elements")
	}
	if len(data) > math.MaxUint16 {
		panic("tuples.Array: element too big")
	}
	a.elements = append(a.elements, data)
	return byte(len(a.elements) - 1)
}

// PutAtIdxGrow puts data at index, padding the gap with empty elements
func (a *Array) PutAtIdxGrow(idx byte, data []byte) {
	for len(a.elements) <= int(idx) {
		a.Push(nil)
	}
	if len(data) > math.MaxUint16 {
		panic("tuples.Array: element too big")
	}
	a.elements[idx] = data
}

func (a *Array) At(idx int) []byte {
	return a.elements[idx]
}

func (a *Array) ForEach(fun func(i byte, data []byte) bool) {
	for i, el := range a.elements {
		if !fun(byte(i), el) {
			return
		}
	}
}

func (a *Array) Bytes() []byte {
	sz := 2
	for _, el := range a.elements {
		sz += 2 + len(el)
	}
	ret := make([]byte, 0, sz)
	var b2 [2]byte
	binary.BigEndian.PutUint16(b2[:], uint16(len(a.elements)))
	ret = append(ret, b2[:]...)
	for _, el := range a.elements {
		binary.BigEndian.PutUint16(b2[:], uint16(len(el)))
		ret = append(ret, b2[:]...)
		ret = append(ret, el...)
	}
	return ret
}
