package layout

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/filter"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// memFile is a growable in-memory file with a bump allocator.
type memFile struct {
	buf  []byte
	next int64
}

func newMemFile() *memFile { return &memFile{next: 64} }

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[off:], p)
	return len(p), nil
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(m.buf).ReadAt(p, off)
}

func (m *memFile) alloc(size int64) uint64 {
	addr := m.next
	m.next += (size + 7) &^ 7
	return uint64(addr)
}

func (m *memFile) reader() *binpkg.Reader { return binpkg.NewReader(m, binpkg.DefaultConfig()) }
func (m *memFile) writer() *binpkg.Writer { return binpkg.NewWriter(m, binpkg.DefaultConfig()) }

var int32Type = message.NewFixedPointDatatype(4, true, message.OrderLE)

func sequence(n uint64) []byte {
	b := make([]byte, 0, 4*n)
	for i := uint64(0); i < n; i++ {
		b = binary.LittleEndian.AppendUint32(b, uint32(i*7+1))
	}
	return b
}

func TestCompact(t *testing.T) {
	src := Source{
		Layout:    message.NewCompactLayout([]byte{1, 0, 0, 0, 2, 0, 0, 0}),
		Dataspace: message.NewDataspace([]uint64{2}, nil),
		Datatype:  int32Type,
	}
	l, err := New(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src.Layout.CompactData) {
		t.Errorf("got %v", got)
	}
	got[0] = 0xFF
	if src.Layout.CompactData[0] == 0xFF {
		t.Error("Read returned the header's buffer")
	}

	src.Dataspace = message.NewDataspace([]uint64{3}, nil)
	if _, err := NewCompact(src).Read(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("short compact data: err = %v", err)
	}
}

func TestContiguous(t *testing.T) {
	f := newMemFile()
	data := sequence(6)
	f.WriteAt(data, 100)
	src := Source{
		Layout:    message.NewContiguousLayout(100, uint64(len(data))),
		Dataspace: message.NewDataspace([]uint64{2, 3}, nil),
		Datatype:  int32Type,
	}

	got, err := NewContiguous(src, f.reader()).Read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %v", got)
	}

	src.Layout = message.NewContiguousLayout(100, 8)
	if _, err := NewContiguous(src, f.reader()).Read(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("short block: err = %v", err)
	}
}

func TestContiguousUnallocatedReadsFill(t *testing.T) {
	f := newMemFile()
	src := Source{
		Layout:    message.NewContiguousLayout(^uint64(0), 0),
		Dataspace: message.NewDataspace([]uint64{3}, nil),
		Datatype:  int32Type,
		Fill:      message.NewFillValue([]byte{0xFF, 0xFF, 0xFF, 0x7F}),
	}
	got, err := NewContiguous(src, f.reader()).Read()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if v := binary.LittleEndian.Uint32(got[4*i:]); v != 0x7FFFFFFF {
			t.Errorf("element %d = %#x", i, v)
		}
	}
}

func TestChunkedRoundTrip(t *testing.T) {
	unlimited := message.Unlimited
	tests := []struct {
		name     string
		dims     []uint64
		maxDims  []uint64
		chunk    []uint64
		pipeline *filter.Pipeline
		index    message.ChunkIndexType
	}{
		{"single", []uint64{3, 4}, nil, []uint64{4, 4}, nil, message.ChunkIndexSingle},
		{"single filtered", []uint64{64}, nil, []uint64{64}, filter.Standard(4, 6), message.ChunkIndexSingle},
		{"fixed array with edges", []uint64{5, 7}, nil, []uint64{2, 3}, nil, message.ChunkIndexFixedArray},
		{"fixed array larger max", []uint64{5}, []uint64{9}, []uint64{2}, nil, message.ChunkIndexFixedArray},
		{"fixed array paged", []uint64{2100}, nil, []uint64{2}, nil, message.ChunkIndexFixedArray},
		{"fixed array filtered", []uint64{40, 40}, nil, []uint64{16, 16}, filter.Standard(4, 6), message.ChunkIndexFixedArray},
		{"extensible array", []uint64{50, 3}, []uint64{unlimited, 3}, []uint64{1, 3}, nil, message.ChunkIndexExtensibleArray},
		{"extensible array super blocks", []uint64{300}, []uint64{unlimited}, []uint64{1}, nil, message.ChunkIndexExtensibleArray},
		{"extensible array unlimited last", []uint64{3, 10}, []uint64{3, unlimited}, []uint64{2, 4}, nil, message.ChunkIndexExtensibleArray},
		{"extensible array filtered", []uint64{30}, []uint64{unlimited}, []uint64{4}, filter.Standard(4, 1), message.ChunkIndexExtensibleArray},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMemFile()
			data := sequence(product(tt.dims))
			l, err := NewChunkWriter(f.writer(), tt.pipeline, f.alloc).Write(data, tt.dims, tt.maxDims, tt.chunk, 4)
			if err != nil {
				t.Fatal(err)
			}
			if l.ChunkIndexType != tt.index {
				t.Errorf("index type = %d, want %d", l.ChunkIndexType, tt.index)
			}

			src := Source{Layout: l, Dataspace: message.NewDataspace(tt.dims, tt.maxDims), Datatype: int32Type}
			if tt.pipeline != nil {
				src.Filters = tt.pipeline.Message()
			}
			got, err := readAll(src, f.reader())
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("read back %d bytes that differ from the %d written", len(got), len(data))
			}
		})
	}
}

// readAll reads through an encoded and decoded layout message, the way a
// dataset header delivers it.
func readAll(src Source, r *binpkg.Reader) ([]byte, error) {
	body := src.Layout.AppendBody(nil, message.Sizes{Offset: 8, Length: 8})
	decoded, err := message.Parse(message.TypeDataLayout, body, 0, r)
	if err != nil {
		return nil, err
	}
	src.Layout = decoded.(*message.DataLayout)
	l, err := New(src, r)
	if err != nil {
		return nil, err
	}
	return l.Read()
}

func TestChunkedMissingChunksReadFill(t *testing.T) {
	f := newMemFile()
	maxDims := []uint64{message.Unlimited}
	l, err := NewChunkWriter(f.writer(), nil, f.alloc).Write(sequence(6), []uint64{6}, maxDims, []uint64{2}, 4)
	if err != nil {
		t.Fatal(err)
	}

	// The dataset grew to 10 elements without new chunks being written.
	src := Source{
		Layout:    l,
		Dataspace: message.NewDataspace([]uint64{10}, maxDims),
		Datatype:  int32Type,
		Fill:      message.NewFillValue([]byte{0xDD, 0xCC, 0xBB, 0xAA}),
	}
	got, err := readAll(src, f.reader())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got[:24], sequence(6)) {
		t.Error("written elements changed")
	}
	for i := 6; i < 10; i++ {
		if v := binary.LittleEndian.Uint32(got[4*i:]); v != 0xAABBCCDD {
			t.Errorf("element %d = %#x, want fill", i, v)
		}
	}
}

func TestChunkedImplicitIndex(t *testing.T) {
	f := newMemFile()
	f.WriteAt([]byte{0, 1, 2, 3, 4, 5}, 100)
	l := message.NewChunkedLayout([]uint32{2}, 1, message.ChunkIndexImplicit)
	l.ChunkIndexAddr = 100
	src := Source{
		Layout:    l,
		Dataspace: message.NewDataspace([]uint64{5}, nil),
		Datatype:  message.NewFixedPointDatatype(1, false, message.OrderLE),
	}

	got, err := readAll(src, f.reader())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0, 1, 2, 3, 4}) {
		t.Errorf("got %v", got)
	}
}

func TestChunkedVersion1BTree(t *testing.T) {
	f := newMemFile()
	f.WriteAt([]byte{1, 2}, 200)
	f.WriteAt([]byte{3, 4}, 210)

	key := func(offset uint64) []byte {
		b := binary.LittleEndian.AppendUint32(nil, 2)
		b = binary.LittleEndian.AppendUint32(b, 0)
		b = binary.LittleEndian.AppendUint64(b, offset)
		return binary.LittleEndian.AppendUint64(b, 0)
	}
	node := append([]byte("TREE"), 1, 0, 2, 0)
	node = binary.LittleEndian.AppendUint64(node, ^uint64(0))
	node = binary.LittleEndian.AppendUint64(node, ^uint64(0))
	node = append(node, key(0)...)
	node = binary.LittleEndian.AppendUint64(node, 200)
	node = append(node, key(2)...)
	node = binary.LittleEndian.AppendUint64(node, 210)
	node = append(node, key(4)...)
	f.WriteAt(node, 0)

	src := Source{
		Layout:    &message.DataLayout{Version: 3, Class: message.LayoutChunked, ChunkDims: []uint32{2}, ElementSize: 1},
		Dataspace: message.NewDataspace([]uint64{4}, nil),
		Datatype:  message.NewFixedPointDatatype(1, false, message.OrderLE),
	}
	l, err := New(src, f.reader())
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("got %v", got)
	}
}

func TestChunkedErrors(t *testing.T) {
	f := newMemFile()
	f.WriteAt(make([]byte, 64), 100)

	short := message.NewChunkedLayout([]uint32{8}, 4, message.ChunkIndexSingle)
	short.ChunkIndexAddr = 100
	short.ChunkFlags = message.ChunkSingleFiltered
	short.SingleChunkSize = 12
	src := Source{Layout: short, Dataspace: message.NewDataspace([]uint64{8}, nil), Datatype: int32Type}
	if _, err := readAll(src, f.reader()); !errors.Is(err, ErrCorrupt) {
		t.Errorf("short chunk: err = %v", err)
	}

	src.Layout = message.NewChunkedLayout([]uint32{2, 2}, 4, message.ChunkIndexSingle)
	if _, err := New(src, f.reader()); !errors.Is(err, ErrCorrupt) {
		t.Errorf("rank mismatch: err = %v", err)
	}

	// The fixed array header checksum covers the entry count.
	fa, err := NewChunkWriter(f.writer(), nil, f.alloc).Write(sequence(8), []uint64{8}, nil, []uint64{2}, 4)
	if err != nil {
		t.Fatal(err)
	}
	f.buf[fa.ChunkIndexAddr+8] ^= 0x01
	src = Source{Layout: fa, Dataspace: message.NewDataspace([]uint64{8}, nil), Datatype: int32Type}
	if _, err := readAll(src, f.reader()); !errors.Is(err, ErrCorrupt) {
		t.Errorf("damaged index: err = %v", err)
	}
}

func TestUnsupportedFilterFailsChunk(t *testing.T) {
	f := newMemFile()
	l, err := NewChunkWriter(f.writer(), nil, f.alloc).Write(sequence(4), []uint64{4}, nil, []uint64{2}, 4)
	if err != nil {
		t.Fatal(err)
	}
	src := Source{
		Layout:    l,
		Dataspace: message.NewDataspace([]uint64{4}, nil),
		Datatype:  int32Type,
		Filters:   &message.FilterPipeline{Version: 2, Filters: []message.FilterInfo{{ID: message.FilterSZIP}}},
	}
	if _, err := readAll(src, f.reader()); !errors.Is(err, filter.ErrUnsupported) {
		t.Errorf("err = %v, want filter.ErrUnsupported", err)
	}
}

func TestGridUnlimitedFirst(t *testing.T) {
	g := newGrid([]uint64{3, 10}, []uint64{3, message.Unlimited}, []uint64{2, 4})
	off := g.offset(3)
	if off[0] != 2 || off[1] != 4 {
		t.Errorf("offset(3) = %v", off)
	}
	if i := g.index(off); i != 3 {
		t.Errorf("index = %d", i)
	}
	if g.total != 6 {
		t.Errorf("total = %d", g.total)
	}
}
