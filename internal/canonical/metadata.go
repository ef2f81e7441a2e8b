package canonical

import (
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/robert-malhotra/go-hashdiff/internal/digest"
	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

const bytesKey = "$bytes"

// normalize maps an attribute value onto a small set of JSON-stable
// shapes. Numbers widen to 64 bits, length-one sequences collapse to their
// element, and longer numeric sequences are replaced by the digest of
// their canonical array bytes.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool:
		return x, nil
	case string:
		return text(x), nil
	case structure.Reference:
		return text(string(x)), nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case float32:
		return float(float64(x)), nil
	case float64:
		return float(x), nil
	case []string:
		if len(x) == 1 {
			return text(x[0]), nil
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = text(e)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			ne, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[key(k)] = ne
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	if rv.Len() == 1 {
		return normalize(rv.Index(0).Interface())
	}
	if numeric(v) {
		// Numeric slice: hash it the way array payloads are hashed.
		b, err := Canonicalizer{}.ArrayBytes(&structure.Array{Values: v})
		if err != nil {
			return nil, err
		}
		return digest.SumBytes(b), nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		e, err := normalize(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

// float keeps finite values as numbers and spells out the rest, which JSON
// cannot carry.
func float(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return float64(0)
	}
	return f
}

// text keeps valid UTF-8 as it is and turns any other byte string into an
// object holding its hex form.
func text(s string) any {
	if utf8.ValidString(s) {
		return s
	}
	return map[string]any{bytesKey: hex.EncodeToString([]byte(s))}
}

// key is text for object keys. Keys that already start with the escape
// prefix are escaped too, so an escaped key never equals a stored one.
func key(s string) string {
	if utf8.ValidString(s) && !strings.HasPrefix(s, bytesKey) {
		return s
	}
	return bytesKey + ":" + hex.EncodeToString([]byte(s))
}
