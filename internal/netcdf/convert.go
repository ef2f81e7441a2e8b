package netcdf

import "reflect"

// asInt converts an integer attribute value, scalar or length one, to
// int64.
func asInt(v any) (int64, bool) {
	ids, ok := asInts(v)
	if !ok || len(ids) != 1 {
		return 0, false
	}
	return ids[0], true
}

// asInts converts an integer attribute value to a slice of int64.
func asInts(v any) ([]int64, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		n, ok := intValue(rv)
		if !ok {
			return nil, false
		}
		return []int64{n}, true
	}
	out := make([]int64, rv.Len())
	for i := range out {
		n, ok := intValue(rv.Index(i))
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func intValue(rv reflect.Value) (int64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	}
	return 0, false
}
