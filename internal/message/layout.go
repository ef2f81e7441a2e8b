package message

import "fmt"

// LayoutClass is how a dataset's elements are stored.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

// ChunkIndexType is the structure that maps chunk coordinates to
// addresses. Version 4 layouts store it; older ones always use a version 1
// B-tree.
type ChunkIndexType uint8

const (
	ChunkIndexBTreeV1         ChunkIndexType = 0
	ChunkIndexSingle          ChunkIndexType = 1
	ChunkIndexImplicit        ChunkIndexType = 2
	ChunkIndexFixedArray      ChunkIndexType = 3
	ChunkIndexExtensibleArray ChunkIndexType = 4
	ChunkIndexBTreeV2         ChunkIndexType = 5
)

// Chunked layout flags.
const (
	ChunkDontFilterPartialEdges = 0x01
	ChunkSingleFiltered         = 0x02
)

// DataLayout locates the raw data of a dataset.
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	CompactData []byte

	// Contiguous storage. Size is zero in version 1 and 2 messages.
	Address uint64
	Size    uint64

	// ChunkDims has one entry per dataset dimension. The element size the
	// file appends to it is kept apart.
	ChunkDims      []uint32
	ElementSize    uint32
	ChunkFlags     uint8
	ChunkIndexType ChunkIndexType
	ChunkIndexAddr uint64

	// Filtered single chunk.
	SingleChunkSize       uint64
	SingleChunkFilterMask uint32

	// Fixed and extensible array parameters.
	PageBits      uint8
	MaxBits       uint8
	IndexElements uint8
	MinPointers   uint8
	MinElements   uint8

	// Version 2 B-tree parameters.
	NodeSize     uint32
	SplitPercent uint8
	MergePercent uint8
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

func parseDataLayout(d *decoder) (*DataLayout, error) {
	l := &DataLayout{Version: d.u8()}
	switch l.Version {
	case 1, 2:
		parseLayoutV1(d, l)
	case 3, 4:
		parseLayoutV3(d, l)
	default:
		return nil, fmt.Errorf("version %d", l.Version)
	}
	if d.err != nil {
		return nil, d.err
	}
	return l, nil
}

func parseLayoutV1(d *decoder, l *DataLayout) {
	ndims := int(d.u8())
	l.Class = LayoutClass(d.u8())
	d.skip(5)

	switch l.Class {
	case LayoutContiguous:
		l.Address = d.offset()
		d.skip(4 * ndims)
	case LayoutChunked:
		l.ChunkIndexAddr = d.offset()
		readChunkDims(d, l, ndims, 4)
	case LayoutCompact:
		d.skip(4 * ndims)
		l.CompactData = d.copied(int(d.u32()))
	default:
		d.fail("layout class %d", l.Class)
	}
}

func parseLayoutV3(d *decoder, l *DataLayout) {
	l.Class = LayoutClass(d.u8())

	switch l.Class {
	case LayoutCompact:
		l.CompactData = d.copied(int(d.u16()))
	case LayoutContiguous:
		l.Address = d.offset()
		l.Size = d.length()
	case LayoutChunked:
		if l.Version == 3 {
			ndims := int(d.u8())
			l.ChunkIndexAddr = d.offset()
			readChunkDims(d, l, ndims, 4)
			return
		}
		parseChunkedV4(d, l)
	case LayoutVirtual:
		d.fail("virtual dataset layout")
	default:
		d.fail("layout class %d", l.Class)
	}
}

func parseChunkedV4(d *decoder, l *DataLayout) {
	l.ChunkFlags = d.u8()
	ndims := int(d.u8())
	width := int(d.u8())
	if width < 1 || width > 8 {
		d.fail("chunk dimension width %d", width)
		return
	}
	readChunkDims(d, l, ndims, width)

	l.ChunkIndexType = ChunkIndexType(d.u8())
	switch l.ChunkIndexType {
	case ChunkIndexSingle:
		if l.ChunkFlags&ChunkSingleFiltered != 0 {
			l.SingleChunkSize = d.length()
			l.SingleChunkFilterMask = d.u32()
		}
	case ChunkIndexImplicit:
	case ChunkIndexFixedArray:
		l.PageBits = d.u8()
	case ChunkIndexExtensibleArray:
		l.MaxBits = d.u8()
		l.IndexElements = d.u8()
		l.MinPointers = d.u8()
		l.MinElements = d.u8()
		l.PageBits = d.u8()
	case ChunkIndexBTreeV2:
		l.NodeSize = d.u32()
		l.SplitPercent = d.u8()
		l.MergePercent = d.u8()
	default:
		d.fail("chunk index type %d", l.ChunkIndexType)
		return
	}
	l.ChunkIndexAddr = d.offset()
}

// readChunkDims reads ndims sizes of width bytes. The last is the element
// size.
func readChunkDims(d *decoder, l *DataLayout, ndims, width int) {
	if ndims < 2 {
		d.fail("chunked layout with %d dimensions", ndims)
		return
	}
	l.ChunkDims = make([]uint32, ndims-1)
	for i := range l.ChunkDims {
		l.ChunkDims[i] = uint32(d.uint(width))
		if l.ChunkDims[i] == 0 {
			d.fail("chunk dimension %d is zero", i)
		}
	}
	l.ElementSize = uint32(d.uint(width))
}

// AppendBody encodes compact and contiguous layouts as version 3 and
// chunked layouts as version 4.
func (m *DataLayout) AppendBody(b []byte, s Sizes) []byte {
	if m.Class != LayoutChunked {
		b = append(b, 3, uint8(m.Class))
		if m.Class == LayoutCompact {
			b = appendU16(b, uint16(len(m.CompactData)))
			return append(b, m.CompactData...)
		}
		b = appendUint(b, m.Address, s.Offset)
		return appendUint(b, m.Size, s.Length)
	}

	dims := append(append([]uint32(nil), m.ChunkDims...), m.ElementSize)
	var largest uint32
	for _, dim := range dims {
		largest = max(largest, dim)
	}
	width := minBytes(uint64(largest))

	b = append(b, 4, uint8(m.Class), m.ChunkFlags, uint8(len(dims)), uint8(width))
	for _, dim := range dims {
		b = appendUint(b, uint64(dim), width)
	}
	b = append(b, uint8(m.ChunkIndexType))
	switch m.ChunkIndexType {
	case ChunkIndexSingle:
		if m.ChunkFlags&ChunkSingleFiltered != 0 {
			b = appendUint(b, m.SingleChunkSize, s.Length)
			b = appendU32(b, m.SingleChunkFilterMask)
		}
	case ChunkIndexFixedArray:
		b = append(b, m.PageBits)
	case ChunkIndexExtensibleArray:
		b = append(b, m.MaxBits, m.IndexElements, m.MinPointers, m.MinElements, m.PageBits)
	case ChunkIndexBTreeV2:
		b = appendU32(b, m.NodeSize)
		b = append(b, m.SplitPercent, m.MergePercent)
	}
	return appendUint(b, m.ChunkIndexAddr, s.Offset)
}

// NewCompactLayout stores data inside the object header.
func NewCompactLayout(data []byte) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutCompact, CompactData: data}
}

// NewContiguousLayout points at size bytes starting at address.
func NewContiguousLayout(address, size uint64) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutContiguous, Address: address, Size: size}
}

// NewChunkedLayout describes chunks of chunkDims elements of elementSize
// bytes. The caller fills in the index address and its parameters.
func NewChunkedLayout(chunkDims []uint32, elementSize uint32, index ChunkIndexType) *DataLayout {
	return &DataLayout{
		Version:        4,
		Class:          LayoutChunked,
		ChunkDims:      chunkDims,
		ElementSize:    elementSize,
		ChunkIndexType: index,
	}
}
