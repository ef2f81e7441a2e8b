package dtype

import (
	"fmt"
	"math"
	"reflect"

	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// For returns the little-endian datatype that stores Go values of kind t.
// Strings have no fixed size; callers size them with [StringType].
func For(t reflect.Type) (*message.Datatype, error) {
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return message.NewFixedPointDatatype(uint32(t.Size()), true, message.OrderLE), nil
	case reflect.Int:
		return message.NewFixedPointDatatype(8, true, message.OrderLE), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return message.NewFixedPointDatatype(uint32(t.Size()), false, message.OrderLE), nil
	case reflect.Uint:
		return message.NewFixedPointDatatype(8, false, message.OrderLE), nil
	case reflect.Float32, reflect.Float64:
		return message.NewFloatDatatype(uint32(t.Size()), message.OrderLE), nil
	}
	return nil, fmt.Errorf("%w: Go type %v", ErrUnsupported, t)
}

// StringType returns a NUL-terminated ASCII string type wide enough for
// every string in strs.
func StringType(strs []string) *message.Datatype {
	longest := 0
	for _, s := range strs {
		longest = max(longest, len(s))
	}
	return message.NewStringDatatype(uint32(longest+1), message.PadNullTerm, message.CharsetASCII)
}

// Encode lays out values, a slice, array or single value, as elements of
// dt. Integer, enum, bitfield, float, fixed-length string, object
// reference, compound (from map[string]any), array and opaque classes are
// supported.
func Encode(dt *message.Datatype, values any) ([]byte, error) {
	rv := reflect.ValueOf(values)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, fmt.Errorf("nil value")
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		one := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
		one.Index(0).Set(rv)
		rv = one
	}

	out := make([]byte, 0, rv.Len()*int(dt.Size))
	for i := 0; i < rv.Len(); i++ {
		var err error
		if out, err = appendElement(out, dt, rv.Index(i)); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

func appendElement(b []byte, dt *message.Datatype, v reflect.Value) ([]byte, error) {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil, fmt.Errorf("nil value for %s", dt.Class)
	}
	o := orderOf(dt)
	switch dt.Class {
	case message.ClassFixedPoint, message.ClassEnum, message.ClassBitfield:
		var u uint64
		switch {
		case v.CanInt():
			u = uint64(v.Int())
		case v.CanUint():
			u = v.Uint()
		default:
			return nil, fmt.Errorf("cannot store %v as %s", v.Type(), dt.Class)
		}
		switch dt.Size {
		case 1:
			return append(b, byte(u)), nil
		case 2:
			return o.AppendUint16(b, uint16(u)), nil
		case 4:
			return o.AppendUint32(b, uint32(u)), nil
		case 8:
			return o.AppendUint64(b, u), nil
		}

	case message.ClassFloatPoint:
		var f float64
		switch {
		case v.CanFloat():
			f = v.Float()
		case v.CanInt():
			f = float64(v.Int())
		case v.CanUint():
			f = float64(v.Uint())
		default:
			return nil, fmt.Errorf("cannot store %v as %s", v.Type(), dt.Class)
		}
		switch dt.Size {
		case 4:
			return o.AppendUint32(b, math.Float32bits(float32(f))), nil
		case 8:
			return o.AppendUint64(b, math.Float64bits(f)), nil
		}

	case message.ClassString:
		if v.Kind() != reflect.String {
			return nil, fmt.Errorf("cannot store %v as a string", v.Type())
		}
		field := make([]byte, dt.Size)
		n := copy(field, v.String())
		if dt.StringPadding == message.PadSpacePad {
			for i := n; i < len(field); i++ {
				field[i] = ' '
			}
		}
		return append(b, field...), nil

	case message.ClassReference:
		if dt.ReferenceKind != message.RefObject || !v.CanUint() {
			return nil, fmt.Errorf("cannot store %v as %s", v.Type(), dt.Class)
		}
		u := v.Uint()
		for i := uint32(0); i < dt.Size; i++ {
			b = append(b, byte(u>>(8*i)))
		}
		return b, nil

	case message.ClassCompound:
		if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("cannot store %v as a compound", v.Type())
		}
		elem := make([]byte, dt.Size)
		for _, m := range dt.Members {
			field := v.MapIndex(reflect.ValueOf(m.Name))
			if !field.IsValid() || m.Type == nil {
				continue
			}
			raw, err := appendElement(nil, m.Type, field)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", m.Name, err)
			}
			if int(m.ByteOffset)+len(raw) > len(elem) {
				return nil, fmt.Errorf("member %q does not fit the %d-byte element", m.Name, dt.Size)
			}
			copy(elem[m.ByteOffset:], raw)
		}
		return append(b, elem...), nil

	case message.ClassArray:
		if dt.BaseType == nil || dt.BaseType.Size == 0 || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
			return nil, fmt.Errorf("cannot store %v as %s", v.Type(), dt.Class)
		}
		if want := int(dt.Size / dt.BaseType.Size); v.Len() != want {
			return nil, fmt.Errorf("array element holds %d values, need %d", v.Len(), want)
		}
		for i := 0; i < v.Len(); i++ {
			var err error
			if b, err = appendElement(b, dt.BaseType, v.Index(i)); err != nil {
				return nil, err
			}
		}
		return b, nil

	case message.ClassOpaque:
		if v.Kind() != reflect.Slice || v.Type().Elem().Kind() != reflect.Uint8 || v.Len() != int(dt.Size) {
			return nil, fmt.Errorf("cannot store %v as %d opaque bytes", v.Type(), dt.Size)
		}
		return append(b, v.Bytes()...), nil
	}
	return nil, fmt.Errorf("%w: encoding %d-byte %s", ErrUnsupported, dt.Size, dt.Class)
}
