package canonical

import (
	"encoding/binary"
	"math"
)

// NumericEncoding fixes how numbers become bytes.
type NumericEncoding struct {
	Order binary.AppendByteOrder
}

// Standard is the encoding used for every format: little-endian, IEEE-754
// at native width, one NaN bit pattern, no negative zero.
var Standard = NumericEncoding{Order: binary.LittleEndian}

const (
	quietNaN32 uint32 = 0x7fc00000
	quietNaN64 uint64 = 0x7ff8000000000000
)

// AppendUint appends the low size bytes of v.
func (e NumericEncoding) AppendUint(b []byte, v uint64, size int) []byte {
	switch size {
	case 1:
		return append(b, byte(v))
	case 2:
		return e.Order.AppendUint16(b, uint16(v))
	case 4:
		return e.Order.AppendUint32(b, uint32(v))
	default:
		return e.Order.AppendUint64(b, v)
	}
}

// AppendFloat32 appends v after collapsing NaNs and negative zero.
func (e NumericEncoding) AppendFloat32(b []byte, v float32) []byte {
	bits := math.Float32bits(v)
	switch {
	case v != v:
		bits = quietNaN32
	case v == 0:
		bits = 0
	}
	return e.Order.AppendUint32(b, bits)
}

// AppendFloat64 appends v after collapsing NaNs and negative zero.
func (e NumericEncoding) AppendFloat64(b []byte, v float64) []byte {
	bits := math.Float64bits(v)
	switch {
	case math.IsNaN(v):
		bits = quietNaN64
	case v == 0:
		bits = 0
	}
	return e.Order.AppendUint64(b, bits)
}
