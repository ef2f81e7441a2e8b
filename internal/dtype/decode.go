package dtype

import (
	"fmt"
	"math"
	"reflect"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/heap"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// Decoder turns raw elements into Go values.
type Decoder struct {
	offsetSize int
	heap       *heap.Resolver
}

// NewDecoder returns a Decoder for elements read through r. With a nil r,
// variable-length elements cannot be resolved.
func NewDecoder(r *binpkg.Reader) *Decoder {
	if r == nil {
		return &Decoder{offsetSize: 8}
	}
	return &Decoder{offsetSize: r.OffsetSize(), heap: heap.NewResolver(r)}
}

// Values decodes n elements of dt from data:
//   - integers, enums and bitfields as the sized Go integer slice
//   - floats as []float32 or []float64
//   - strings, fixed or variable length, as []string
//   - object references as []Reference
//   - compounds as []map[string]any
//   - arrays and variable-length sequences as []any, one slice per element
//   - opaque elements as [][]byte
func (d *Decoder) Values(dt *message.Datatype, data []byte, n uint64) (any, error) {
	if dt == nil {
		return nil, fmt.Errorf("%w: missing datatype", ErrUnsupported)
	}
	size := uint64(dt.Size)
	if size == 0 {
		return nil, fmt.Errorf("%w: %s of size 0", ErrUnsupported, dt.Class)
	}
	if need := n * size; uint64(len(data)) < need {
		return nil, fmt.Errorf("%d elements of %d bytes need %d bytes, have %d", n, size, need, len(data))
	}
	data = data[:n*size]

	switch dt.Class {
	case message.ClassFixedPoint, message.ClassEnum, message.ClassBitfield:
		return integers(dt, data)
	case message.ClassFloatPoint:
		return floats(dt, data)
	case message.ClassString:
		return fixedStrings(dt, data), nil
	case message.ClassReference:
		if dt.ReferenceKind != message.RefObject {
			return nil, fmt.Errorf("%w: region references", ErrUnsupported)
		}
		return references(data, int(size)), nil
	case message.ClassVarLen:
		if dt.IsVarLenString {
			return d.strings(data, n)
		}
		return d.sequences(dt, data, n)
	case message.ClassCompound:
		return d.compounds(dt, data, n)
	case message.ClassArray:
		return d.arrays(dt, data, n)
	case message.ClassOpaque:
		return split(data, int(size)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, dt.Class)
}

func each[T any](data []byte, size int, f func([]byte) T) []T {
	out := make([]T, len(data)/size)
	for i := range out {
		out[i] = f(data[i*size:])
	}
	return out
}

func integers(dt *message.Datatype, data []byte) (any, error) {
	o := orderOf(dt)
	switch dt.Size {
	case 1:
		if dt.Signed {
			return each(data, 1, func(b []byte) int8 { return int8(b[0]) }), nil
		}
		return append([]uint8(nil), data...), nil
	case 2:
		if dt.Signed {
			return each(data, 2, func(b []byte) int16 { return int16(o.Uint16(b)) }), nil
		}
		return each(data, 2, o.Uint16), nil
	case 4:
		if dt.Signed {
			return each(data, 4, func(b []byte) int32 { return int32(o.Uint32(b)) }), nil
		}
		return each(data, 4, o.Uint32), nil
	case 8:
		if dt.Signed {
			return each(data, 8, func(b []byte) int64 { return int64(o.Uint64(b)) }), nil
		}
		return each(data, 8, o.Uint64), nil
	}
	return nil, fmt.Errorf("%w: %d-byte %s", ErrUnsupported, dt.Size, dt.Class)
}

func floats(dt *message.Datatype, data []byte) (any, error) {
	if dt.ByteOrder == message.OrderVAX {
		return nil, fmt.Errorf("%w: VAX float", ErrUnsupported)
	}
	o := orderOf(dt)
	switch dt.Size {
	case 4:
		return each(data, 4, func(b []byte) float32 { return math.Float32frombits(o.Uint32(b)) }), nil
	case 8:
		return each(data, 8, func(b []byte) float64 { return math.Float64frombits(o.Uint64(b)) }), nil
	}
	return nil, fmt.Errorf("%w: %d-byte float", ErrUnsupported, dt.Size)
}

func fixedStrings(dt *message.Datatype, data []byte) []string {
	return each(data, int(dt.Size), func(b []byte) string {
		return trimString(b[:dt.Size], dt.StringPadding)
	})
}

// trimString cuts a stored string at its first NUL and, for space-padded
// strings, drops the trailing spaces.
func trimString(b []byte, pad message.StringPadding) string {
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	if pad == message.PadSpacePad {
		for len(b) > 0 && b[len(b)-1] == ' ' {
			b = b[:len(b)-1]
		}
	}
	return string(b)
}

func split(data []byte, size int) [][]byte {
	return each(data, size, func(b []byte) []byte { return append([]byte(nil), b[:size]...) })
}

func (d *Decoder) compounds(dt *message.Datatype, data []byte, n uint64) ([]map[string]any, error) {
	size := int(dt.Size)
	out := make([]map[string]any, n)
	for i := range out {
		elem := data[i*size : (i+1)*size]
		fields := make(map[string]any, len(dt.Members))
		for _, m := range dt.Members {
			if m.Type == nil {
				continue
			}
			end := int(m.ByteOffset) + int(m.Type.Size)
			if end > size {
				return nil, fmt.Errorf("member %q ends at %d, past the %d-byte element", m.Name, end, size)
			}
			v, err := d.Values(m.Type, elem[m.ByteOffset:end], 1)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", m.Name, err)
			}
			fields[m.Name] = First(v)
		}
		out[i] = fields
	}
	return out, nil
}

func (d *Decoder) arrays(dt *message.Datatype, data []byte, n uint64) ([]any, error) {
	if dt.BaseType == nil || dt.BaseType.Size == 0 {
		return nil, fmt.Errorf("%w: array without a base type", ErrUnsupported)
	}
	count := uint64(dt.Size / dt.BaseType.Size)
	size := int(dt.Size)
	out := make([]any, n)
	for i := range out {
		v, err := d.Values(dt.BaseType, data[i*size:(i+1)*size], count)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// First returns the first element of a slice, nil for an empty one, and
// any other value unchanged.
func First(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return v
	}
	if rv.Len() == 0 {
		return nil
	}
	return rv.Index(0).Interface()
}
