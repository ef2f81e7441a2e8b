package dtype

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/heap"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

func TestIntegers(t *testing.T) {
	tests := []struct {
		name string
		dt   *message.Datatype
		data []byte
		want any
	}{
		{"int8", message.NewFixedPointDatatype(1, true, message.OrderLE), []byte{0xFF, 2}, []int8{-1, 2}},
		{"uint8", message.NewFixedPointDatatype(1, false, message.OrderLE), []byte{0xFF, 2}, []uint8{255, 2}},
		{"int16 BE", message.NewFixedPointDatatype(2, true, message.OrderBE), []byte{0xFF, 0xFE, 0, 1}, []int16{-2, 1}},
		{"uint32", message.NewFixedPointDatatype(4, false, message.OrderLE), []byte{1, 0, 0, 0, 0, 0, 0, 0x80}, []uint32{1, 1 << 31}},
		{"int64", message.NewFixedPointDatatype(8, true, message.OrderLE), bytes.Repeat([]byte{0xFF}, 8), []int64{-1}},
		{"uint64 BE", message.NewFixedPointDatatype(8, false, message.OrderBE), []byte{0, 0, 0, 0, 0, 0, 1, 0}, []uint64{256}},
		{"enum", message.NewEnumDatatype(message.NewFixedPointDatatype(2, false, message.OrderLE),
			[]string{"a", "b"}, [][]byte{{0, 0}, {1, 0}}), []byte{1, 0, 0, 0}, []uint16{1, 0}},
	}

	dec := NewDecoder(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := uint64(len(tt.data)) / uint64(tt.dt.Size)
			got, err := dec.Values(tt.dt, tt.data, n)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFloats(t *testing.T) {
	dec := NewDecoder(nil)
	le := message.NewFloatDatatype(4, message.OrderLE)
	data := append(le32(math.Float32bits(1.5)), le32(math.Float32bits(-2))...)
	got, err := dec.Values(le, data, 2)
	if err != nil || !reflect.DeepEqual(got, []float32{1.5, -2}) {
		t.Errorf("float32 = %v, %v", got, err)
	}

	be := message.NewFloatDatatype(8, message.OrderBE)
	bits := math.Float64bits(0.25)
	raw := make([]byte, 8)
	for i := range raw {
		raw[i] = byte(bits >> (56 - 8*i))
	}
	got, err = dec.Values(be, raw, 1)
	if err != nil || !reflect.DeepEqual(got, []float64{0.25}) {
		t.Errorf("float64 BE = %v, %v", got, err)
	}

	vax := message.NewFloatDatatype(4, message.OrderLE)
	vax.ByteOrder = message.OrderVAX
	if _, err := dec.Values(vax, data, 1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("VAX err = %v, want ErrUnsupported", err)
	}
}

func TestFixedStrings(t *testing.T) {
	dec := NewDecoder(nil)
	tests := []struct {
		pad  message.StringPadding
		data string
		want []string
	}{
		{message.PadNullTerm, "ab\x00\x00cdef", []string{"ab", "cdef"}},
		{message.PadNullPad, "x\x00zz\x00\x00\x00\x00", []string{"x", ""}},
		{message.PadSpacePad, "hi  ok  ", []string{"hi", "ok"}},
	}
	for _, tt := range tests {
		dt := message.NewStringDatatype(4, tt.pad, message.CharsetUTF8)
		got, err := dec.Values(dt, []byte(tt.data), 2)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("padding %d: got %q, want %q", tt.pad, got, tt.want)
		}
	}
}

func TestCompoundAndArray(t *testing.T) {
	pair := message.NewArrayDatatype([]uint32{2}, message.NewFixedPointDatatype(2, true, message.OrderLE))
	dt := message.NewCompoundDatatype(8, []message.CompoundMember{
		{Name: "id", ByteOffset: 0, Type: message.NewFixedPointDatatype(1, false, message.OrderLE)},
		{Name: "tag", ByteOffset: 1, Type: message.NewStringDatatype(3, message.PadNullPad, message.CharsetASCII)},
		{Name: "pair", ByteOffset: 4, Type: pair},
	})
	data := []byte{7, 'a', 'b', 0, 1, 0, 0xFF, 0xFF}

	got, err := NewDecoder(nil).Values(dt, data, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{{"id": uint8(7), "tag": "ab", "pair": []int16{1, -1}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}

	dt.Members[2].ByteOffset = 6
	if _, err := NewDecoder(nil).Values(dt, data, 1); err == nil {
		t.Error("expected an error for a member past the element")
	}
}

func TestShortData(t *testing.T) {
	dt := message.NewFixedPointDatatype(4, true, message.OrderLE)
	if _, err := NewDecoder(nil).Values(dt, []byte{1, 2, 3}, 1); err == nil {
		t.Error("expected an error for short data")
	}
	if _, err := NewDecoder(nil).Values(&message.Datatype{Class: message.ClassTime, Size: 4}, make([]byte, 4), 1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("time class: err = %v, want ErrUnsupported", err)
	}
}

// memFile backs a global heap for the variable-length tests.
type memFile struct {
	buf []byte
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(m.buf).ReadAt(p, off)
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	return copy(m.buf[off:], p), nil
}

// heapFile stores objects in a global heap at 64 and returns a reader and
// the collection address.
func heapFile(t *testing.T, objects ...[]byte) (*binpkg.Reader, uint64) {
	t.Helper()
	f := &memFile{}
	var b heap.Builder
	for _, obj := range objects {
		b.Add(obj)
	}
	next := uint64(64)
	addr, err := b.Write(binpkg.NewWriter(f, binpkg.DefaultConfig()), func(size int64) uint64 {
		a := next
		next += uint64(size)
		return a
	})
	if err != nil {
		t.Fatal(err)
	}
	return binpkg.NewReader(f, binpkg.DefaultConfig()), addr
}

func descriptor(count uint32, id heap.ID) []byte {
	return id.Append(le32(count), 8)
}

func TestVarLenStrings(t *testing.T) {
	r, addr := heapFile(t, []byte("kelvin"), []byte("m s-1\x00"))
	var data []byte
	data = append(data, descriptor(6, heap.ID{Collection: addr, Index: 1})...)
	data = append(data, descriptor(0, heap.ID{})...)
	data = append(data, descriptor(5, heap.ID{Collection: addr, Index: 2})...)

	dt := message.NewVarLenStringDatatype(message.CharsetUTF8, 8)
	got, err := NewDecoder(r).Values(dt, data, 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"kelvin", "", "m s-1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := NewDecoder(nil).Values(dt, data, 3); err == nil {
		t.Error("expected an error without a reader")
	}
}

func TestVarLenSequences(t *testing.T) {
	refs := append(le64(0x800), le64(0x900)...)
	r, addr := heapFile(t, refs)
	data := descriptor(2, heap.ID{Collection: addr, Index: 1})
	data = append(data, descriptor(0, heap.ID{})...)

	dt := message.NewVarLenSequenceDatatype(message.NewObjectReferenceDatatype(8), 8)
	got, err := NewDecoder(r).Values(dt, data, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{[]Reference{0x800, 0x900}, []Reference{}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}

	short := descriptor(3, heap.ID{Collection: addr, Index: 1})
	if _, err := NewDecoder(r).Values(dt, short, 1); err == nil {
		t.Error("expected an error for a sequence longer than its heap object")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	tests := []any{
		[]int8{-3, 4},
		[]uint16{1, 65535},
		[]int32{-70000, 0, 9},
		[]uint64{1 << 40},
		[]float32{0.5, -1},
		[]float64{math.Pi},
	}
	dec := NewDecoder(nil)
	for _, vals := range tests {
		rv := reflect.ValueOf(vals)
		dt, err := For(rv.Type().Elem())
		if err != nil {
			t.Fatal(err)
		}
		raw, err := Encode(dt, vals)
		if err != nil {
			t.Fatal(err)
		}
		got, err := dec.Values(dt, raw, uint64(rv.Len()))
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, vals) {
			t.Errorf("round trip of %T: got %v", vals, got)
		}
	}
}

func TestEncodeConversions(t *testing.T) {
	be := message.NewFixedPointDatatype(2, true, message.OrderBE)
	raw, err := Encode(be, -2)
	if err != nil || !bytes.Equal(raw, []byte{0xFF, 0xFE}) {
		t.Errorf("scalar BE = %x, %v", raw, err)
	}

	raw, err = Encode(message.NewFloatDatatype(8, message.OrderLE), []int{3})
	if err != nil || !bytes.Equal(raw, le64(math.Float64bits(3))) {
		t.Errorf("int as float = %x, %v", raw, err)
	}

	str := StringType([]string{"ab", "cdef"})
	if str.Size != 5 {
		t.Errorf("string size = %d", str.Size)
	}
	raw, err = Encode(str, []string{"ab", "cdef"})
	if err != nil || string(raw) != "ab\x00\x00\x00cdef\x00" {
		t.Errorf("strings = %q, %v", raw, err)
	}

	if _, err := Encode(be, []string{"x"}); err == nil {
		t.Error("expected an error storing a string as an integer")
	}
	if _, err := For(reflect.TypeOf(struct{}{})); !errors.Is(err, ErrUnsupported) {
		t.Errorf("For(struct) err = %v", err)
	}
}

func TestEncodeStructured(t *testing.T) {
	i16 := message.NewFixedPointDatatype(2, true, message.OrderLE)
	opaque := &message.Datatype{Class: message.ClassOpaque, Version: 1, Size: 2}
	compound := message.NewCompoundDatatype(18, []message.CompoundMember{
		{Name: "id", ByteOffset: 0, Type: message.NewFixedPointDatatype(4, true, message.OrderLE)},
		{Name: "lat", ByteOffset: 4, Type: message.NewFloatDatatype(4, message.OrderLE)},
		{Name: "tag", ByteOffset: 8, Type: opaque},
		{Name: "ref", ByteOffset: 10, Type: message.NewObjectReferenceDatatype(8)},
	})
	tests := []struct {
		name string
		dt   *message.Datatype
		in   any
		n    uint64
		want any
	}{
		{
			name: "compound",
			dt:   compound,
			in: []map[string]any{
				{"id": int32(7), "lat": float32(1.5), "tag": []byte{1, 2}, "ref": Reference(0x800)},
				{"id": int32(-1), "lat": float32(0), "tag": []byte{0, 0}, "ref": Reference(0)},
			},
			n: 2,
			want: []map[string]any{
				{"id": int32(7), "lat": float32(1.5), "tag": []byte{1, 2}, "ref": Reference(0x800)},
				{"id": int32(-1), "lat": float32(0), "tag": []byte{0, 0}, "ref": Reference(0)},
			},
		},
		{
			name: "array",
			dt:   message.NewArrayDatatype([]uint32{3}, i16),
			in:   [][]int16{{1, 2, 3}, {4, 5, 6}},
			n:    2,
			want: []any{[]int16{1, 2, 3}, []int16{4, 5, 6}},
		},
		{
			name: "array of any",
			dt:   message.NewArrayDatatype([]uint32{2}, i16),
			in:   []any{[]any{int16(-1), 9}},
			n:    1,
			want: []any{[]int16{-1, 9}},
		},
		{
			name: "opaque",
			dt:   opaque,
			in:   [][]byte{{0xde, 0xad}, {0xbe, 0xef}},
			n:    2,
			want: [][]byte{{0xde, 0xad}, {0xbe, 0xef}},
		},
		{
			name: "reference",
			dt:   message.NewObjectReferenceDatatype(8),
			in:   []uint64{0x1234, 0x10000},
			n:    2,
			want: []Reference{0x1234, 0x10000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.dt, tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if len(raw) != int(tt.n)*int(tt.dt.Size) {
				t.Fatalf("encoded %d bytes, want %d", len(raw), int(tt.n)*int(tt.dt.Size))
			}
			got, err := NewDecoder(nil).Values(tt.dt, raw, tt.n)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}

	bad := []struct {
		name string
		dt   *message.Datatype
		in   any
	}{
		{"short array", message.NewArrayDatatype([]uint32{3}, i16), [][]int16{{1, 2}}},
		{"long opaque", opaque, [][]byte{{1, 2, 3}}},
		{"compound from slice", compound, [][]int32{{1}}},
		{"reference from float", message.NewObjectReferenceDatatype(8), []float64{1}},
		{"nil member", compound, []map[string]any{{"id": nil}}},
	}
	for _, tt := range bad {
		if _, err := Encode(tt.dt, tt.in); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestObjectReferences(t *testing.T) {
	data := []byte{0x10, 0x20, 0x30, 0x40, 9}
	if got := ObjectReferences(data, 2); !reflect.DeepEqual(got, []uint64{0x2010, 0x4030}) {
		t.Errorf("got %x", got)
	}
	refs, err := NewDecoder(nil).Values(message.NewObjectReferenceDatatype(2), data, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := []Reference{0x2010, 0x4030}; !reflect.DeepEqual(refs, want) {
		t.Errorf("Values = %#v, want %#v", refs, want)
	}
	if got := First([]string{"a", "b"}); got != "a" {
		t.Errorf("First = %v", got)
	}
}

func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

func le64(v uint64) []byte { return append(le32(uint32(v)), le32(uint32(v>>32))...) }
