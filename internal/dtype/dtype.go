// Package dtype converts between HDF5 element bytes and Go values.
//
// Reading goes through a [Decoder], which resolves variable-length
// elements against the file's global heap:
//
//	dec := dtype.NewDecoder(reader)
//	vals, err := dec.Values(datatype, raw, n)
//
// Numeric classes decode to the sized Go slice ([]int16, []float32, ...),
// so callers can switch on the result without consulting the datatype.
// Writing uses [For] to pick a datatype for a Go element type and
// [Encode] to lay values out under it.
package dtype

import (
	"encoding/binary"
	"errors"

	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// ErrUnsupported is returned for datatypes with no Go form.
var ErrUnsupported = errors.New("unsupported datatype")

// byteOrder reads and appends fixed-size integers.
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// orderOf returns the byte order of a numeric datatype.
func orderOf(dt *message.Datatype) byteOrder {
	if dt.ByteOrder == message.OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
