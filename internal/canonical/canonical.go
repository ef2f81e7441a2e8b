// Package canonical turns structure nodes into the byte streams that get
// hashed. Everything here is deterministic: attribute order, map order and
// platform byte order never reach the output.
package canonical

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-hashdiff/internal/digest"
	"github.com/robert-malhotra/go-hashdiff/internal/filters"
	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

// ErrUnsupportedValue is returned for values with no canonical form.
var ErrUnsupportedValue = errors.New("value has no canonical form")

// Canonicalizer applies an attribute filter and the Standard encoding.
type Canonicalizer struct {
	Filter filters.Set
}

// New returns a Canonicalizer that drops the names in filter.
func New(filter filters.Set) Canonicalizer {
	return Canonicalizer{Filter: filter}
}

// Parts returns the digest inputs for n: metadata, dimensions and, for
// nodes carrying data, the array.
func (c Canonicalizer) Parts(n *structure.Node) ([]digest.Part, error) {
	meta, err := c.Metadata(n.Attributes)
	if err != nil {
		return nil, fmt.Errorf("%s: metadata: %w", n.Path, err)
	}
	dims, err := c.Dimensions(n.Kind, n.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("%s: dimensions: %w", n.Path, err)
	}
	parts := []digest.Part{digest.Metadata(meta), digest.Dimensions(dims)}
	if n.Array != nil {
		arr, err := c.ArrayBytes(n.Array)
		if err != nil {
			return nil, fmt.Errorf("%s: array: %w", n.Path, err)
		}
		parts = append(parts, digest.Array(arr))
	}
	return parts, nil
}

// Metadata returns the filtered attributes as a JSON object with sorted
// keys and normalised values.
func (c Canonicalizer) Metadata(attrs map[string]any) ([]byte, error) {
	out := make(map[string]any, len(attrs))
	for name, v := range attrs {
		if c.Filter.Excludes(name) {
			continue
		}
		nv, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[key(name)] = nv
	}
	return json.Marshal(out)
}

// Dimensions returns dims as a JSON array. Group dimensions are a set and
// get sorted; variable dimensions are positional.
func (c Canonicalizer) Dimensions(kind structure.Kind, dims []string) ([]byte, error) {
	d := append([]string{}, dims...)
	if kind == structure.KindGroup {
		sort.Strings(d)
	}
	return json.Marshal(d)
}

// ArrayBytes serialises an array as a "<dtype>(<shape>)" header, the
// elements under Standard, and a bitmap with one bit per element marking
// missing values. Missing elements are written as zero. Compound, array,
// sequence and opaque elements are written with appendValue.
func (c Canonicalizer) ArrayBytes(a *structure.Array) ([]byte, error) {
	n, err := length(a.Values)
	if err != nil {
		return nil, err
	}
	if len(a.Shape) > 0 {
		want := uint64(1)
		for _, d := range a.Shape {
			want *= d
		}
		if want != uint64(n) {
			return nil, fmt.Errorf("%w: shape %v holds %d elements, got %d", ErrUnsupportedValue, a.Shape, want, n)
		}
	}

	b := []byte(dtypeName(a.Values) + "(" + shapeString(a.Shape) + ")")
	missing := make([]byte, (n+7)/8)
	enc := Standard

	switch v := a.Values.(type) {
	case []int8:
		b = appendIntegers(enc, b, v, 1, a.Fill, missing)
	case []int16:
		b = appendIntegers(enc, b, v, 2, a.Fill, missing)
	case []int32:
		b = appendIntegers(enc, b, v, 4, a.Fill, missing)
	case []int64:
		b = appendIntegers(enc, b, v, 8, a.Fill, missing)
	case []uint8:
		b = appendIntegers(enc, b, v, 1, a.Fill, missing)
	case []uint16:
		b = appendIntegers(enc, b, v, 2, a.Fill, missing)
	case []uint32:
		b = appendIntegers(enc, b, v, 4, a.Fill, missing)
	case []uint64:
		b = appendIntegers(enc, b, v, 8, a.Fill, missing)
	case []float32:
		fill, ok := fillAs[float32](a.Fill)
		for i, x := range v {
			if math.IsNaN(float64(x)) || (ok && x == fill) {
				setBit(missing, i)
				x = 0
			}
			b = enc.AppendFloat32(b, x)
		}
	case []float64:
		fill, ok := fillAs[float64](a.Fill)
		for i, x := range v {
			if math.IsNaN(x) || (ok && x == fill) {
				setBit(missing, i)
				x = 0
			}
			b = enc.AppendFloat64(b, x)
		}
	case []string:
		fill, ok := a.Fill.(string)
		for i, s := range v {
			if ok && s == fill {
				setBit(missing, i)
				s = ""
			}
			b = appendString(b, s)
		}
	case []structure.Reference:
		for _, r := range v {
			b = appendString(b, string(r))
		}
	case [][]byte:
		for _, o := range v {
			b = appendString(b, string(o))
		}
	case []map[string]any:
		for i, m := range v {
			if b, err = appendValue(enc, b, m); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
	case []any:
		for i, e := range v {
			if b, err = appendValue(enc, b, e); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
	}
	return append(b, missing...), nil
}

// Tags that open each value written by appendValue.
const (
	tagNil       = 'n'
	tagInt       = 'i'
	tagUint      = 'u'
	tagFloat     = 'f'
	tagString    = 's'
	tagReference = 'r'
	tagOpaque    = 'o'
	tagMap       = 'm'
	tagSlice     = 'a'
)

// appendValue writes one structured element. Every value starts with a tag
// and, for numbers, its width; maps are written with their keys sorted and
// slices with their length.
func appendValue(enc NumericEncoding, b []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(b, tagNil), nil
	case int8:
		return enc.AppendUint(append(b, tagInt, 1), uint64(x), 1), nil
	case int16:
		return enc.AppendUint(append(b, tagInt, 2), uint64(x), 2), nil
	case int32:
		return enc.AppendUint(append(b, tagInt, 4), uint64(x), 4), nil
	case int64:
		return enc.AppendUint(append(b, tagInt, 8), uint64(x), 8), nil
	case uint8:
		return append(b, tagUint, 1, x), nil
	case uint16:
		return enc.AppendUint(append(b, tagUint, 2), uint64(x), 2), nil
	case uint32:
		return enc.AppendUint(append(b, tagUint, 4), uint64(x), 4), nil
	case uint64:
		return enc.AppendUint(append(b, tagUint, 8), x, 8), nil
	case float32:
		return enc.AppendFloat32(append(b, tagFloat, 4), x), nil
	case float64:
		return enc.AppendFloat64(append(b, tagFloat, 8), x), nil
	case string:
		return appendString(append(b, tagString), x), nil
	case structure.Reference:
		return appendString(append(b, tagReference), string(x)), nil
	case []byte:
		return appendString(append(b, tagOpaque), string(x)), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b = binary.AppendUvarint(append(b, tagMap), uint64(len(keys)))
		for _, k := range keys {
			var err error
			b = appendString(b, k)
			if b, err = appendValue(enc, b, x[k]); err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
		}
		return b, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	b = binary.AppendUvarint(append(b, tagSlice), uint64(rv.Len()))
	for i := 0; i < rv.Len(); i++ {
		var err error
		if b, err = appendValue(enc, b, rv.Index(i).Interface()); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return b, nil
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

type integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func appendIntegers[T integer](enc NumericEncoding, b []byte, vals []T, size int, fill any, missing []byte) []byte {
	f, ok := fillAs[T](fill)
	for i, x := range vals {
		if ok && x == f {
			setBit(missing, i)
			x = 0
		}
		b = enc.AppendUint(b, uint64(x), size)
	}
	return b
}

// fillAs converts a scalar fill value to T. It reports false when there is
// no fill or it cannot be represented exactly.
func fillAs[T integer | float32 | float64](fill any) (T, bool) {
	var zero T
	if fill == nil {
		return zero, false
	}
	rv := reflect.ValueOf(fill)
	if rv.Kind() == reflect.Slice {
		if rv.Len() != 1 {
			return zero, false
		}
		rv = rv.Index(0)
	}
	target := reflect.TypeOf(zero)
	toInt := isInteger(target.Kind())
	switch {
	case isSigned(rv.Kind()):
		if toInt && !intFits(rv.Int(), target) {
			return zero, false
		}
	case isUnsigned(rv.Kind()):
		if toInt && !uintFits(rv.Uint(), target) {
			return zero, false
		}
	case rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64:
		if toInt && !floatFits(rv.Float(), target) {
			return zero, false
		}
	default:
		return zero, false
	}
	return rv.Convert(target).Interface().(T), true
}

func isSigned(k reflect.Kind) bool   { return k >= reflect.Int && k <= reflect.Int64 }
func isUnsigned(k reflect.Kind) bool { return k >= reflect.Uint && k <= reflect.Uint64 }
func isInteger(k reflect.Kind) bool  { return isSigned(k) || isUnsigned(k) }

// bounds returns the smallest and largest value of the integer type t.
func bounds(t reflect.Type) (int64, uint64) {
	shift := 64 - t.Bits()
	if isUnsigned(t.Kind()) {
		return 0, math.MaxUint64 >> shift
	}
	return math.MinInt64 >> shift, math.MaxInt64 >> shift
}

func intFits(v int64, t reflect.Type) bool {
	lo, hi := bounds(t)
	return v >= lo && (v < 0 || uint64(v) <= hi)
}

func uintFits(v uint64, t reflect.Type) bool {
	_, hi := bounds(t)
	return v <= hi
}

// floatFits reports whether f is a whole number inside t's range. The
// bounds of every integer type are powers of two, so float64 holds them
// exactly.
func floatFits(f float64, t reflect.Type) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return false
	}
	lo, _ := bounds(t)
	upper := math.Ldexp(1, t.Bits()-1)
	if isUnsigned(t.Kind()) {
		upper = math.Ldexp(1, t.Bits())
	}
	return f >= float64(lo) && f < upper
}

func setBit(bitmap []byte, i int) {
	bitmap[i/8] |= 1 << (i % 8)
}

// numeric reports whether values is a slice of integers or floats.
func numeric(values any) bool {
	switch values.(type) {
	case []int8, []int16, []int32, []int64, []uint8, []uint16, []uint32, []uint64, []float32, []float64:
		return true
	}
	return false
}

func length(values any) (int, error) {
	switch v := values.(type) {
	case []string:
		return len(v), nil
	case []structure.Reference:
		return len(v), nil
	case [][]byte:
		return len(v), nil
	case []map[string]any:
		return len(v), nil
	case []any:
		return len(v), nil
	}
	if numeric(values) {
		return reflect.ValueOf(values).Len(), nil
	}
	return 0, fmt.Errorf("%w: array of %T", ErrUnsupportedValue, values)
}

func dtypeName(values any) string {
	switch values.(type) {
	case []string:
		return "string"
	case []structure.Reference:
		return "reference"
	case [][]byte:
		return "opaque"
	case []map[string]any:
		return "compound"
	case []any:
		return "sequence"
	}
	return reflect.TypeOf(values).Elem().Kind().String()
}

func shapeString(shape []uint64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.FormatUint(d, 10)
	}
	return strings.Join(parts, ",")
}
