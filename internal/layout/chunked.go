package layout

import (
	"fmt"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/btree"
	"github.com/robert-malhotra/go-hashdiff/internal/filter"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// Chunked is data stored in chunks found through an index.
type Chunked struct {
	src      Source
	reader   *binpkg.Reader
	pipeline *filter.Pipeline

	dims       []uint64
	chunk      []uint64
	chunkBytes uint64
}

func NewChunked(src Source, r *binpkg.Reader) (*Chunked, error) {
	l := src.Layout
	dims := src.Dataspace.Dimensions
	if src.Dataspace.IsScalar() {
		dims = []uint64{1}
	}
	if len(l.ChunkDims) != len(dims) {
		return nil, fmt.Errorf("%w: %d chunk dimensions for a rank %d dataset", ErrCorrupt, len(l.ChunkDims), len(dims))
	}
	if l.ElementSize != 0 && l.ElementSize != src.Datatype.Size {
		return nil, fmt.Errorf("%w: chunk element size %d, datatype size %d", ErrCorrupt, l.ElementSize, src.Datatype.Size)
	}

	c := &Chunked{
		src:      src,
		reader:   r,
		pipeline: filter.NewPipeline(src.Filters),
		dims:     dims,
		chunk:    make([]uint64, len(dims)),
	}
	for i, d := range l.ChunkDims {
		c.chunk[i] = uint64(d)
	}
	c.chunkBytes = product(c.chunk) * src.elementSize()
	return c, nil
}

func (c *Chunked) Class() message.LayoutClass { return message.LayoutChunked }

// Read assembles the dataset from its chunks. Chunks that were never
// written read as fill.
func (c *Chunked) Read() ([]byte, error) {
	out := c.src.filled(c.src.dataSize())
	if len(out) == 0 {
		return out, nil
	}

	chunks, err := c.chunks()
	if err != nil {
		return nil, err
	}
	for _, e := range chunks {
		if err := c.place(out, e); err != nil {
			return nil, fmt.Errorf("chunk at %v: %w", e.Offset, err)
		}
	}
	return out, nil
}

// chunks lists the stored chunks.
func (c *Chunked) chunks() ([]btree.ChunkEntry, error) {
	l := c.src.Layout
	if c.reader.IsUndefinedOffset(l.ChunkIndexAddr) {
		return nil, nil
	}
	if l.Version < 4 {
		return btree.ReadChunks(c.reader, l.ChunkIndexAddr, len(c.dims))
	}

	switch l.ChunkIndexType {
	case message.ChunkIndexSingle:
		e := btree.ChunkEntry{Offset: make([]uint64, len(c.dims)), Address: l.ChunkIndexAddr, Size: c.chunkBytes}
		if l.ChunkFlags&message.ChunkSingleFiltered != 0 {
			e.Size = l.SingleChunkSize
			e.FilterMask = l.SingleChunkFilterMask
		}
		return []btree.ChunkEntry{e}, nil

	case message.ChunkIndexImplicit:
		// Every chunk of the maximum extent is allocated, in index order.
		g := newGrid(c.dims, c.src.Dataspace.MaxDims, c.chunk)
		entries := make([]btree.ChunkEntry, g.total)
		for i := range entries {
			entries[i] = btree.ChunkEntry{
				Offset:  g.offset(uint64(i)),
				Address: l.ChunkIndexAddr + uint64(i)*c.chunkBytes,
				Size:    c.chunkBytes,
			}
		}
		return entries, nil

	case message.ChunkIndexFixedArray:
		return c.readFixedArray(l.ChunkIndexAddr)
	case message.ChunkIndexExtensibleArray:
		return c.readExtensibleArray(l.ChunkIndexAddr)
	case message.ChunkIndexBTreeV2:
		return btree.ReadChunksV2(c.reader, l.ChunkIndexAddr, c.chunk, c.chunkBytes)
	}
	return nil, fmt.Errorf("%w: chunk index type %d", ErrUnsupported, l.ChunkIndexType)
}

// place reads, decodes and copies one chunk into out.
func (c *Chunked) place(out []byte, e btree.ChunkEntry) error {
	if len(e.Offset) != len(c.dims) {
		return fmt.Errorf("%w: chunk offset of rank %d", ErrCorrupt, len(e.Offset))
	}
	for d, off := range e.Offset {
		if off%c.chunk[d] != 0 {
			return fmt.Errorf("%w: chunk offset not on a chunk boundary", ErrCorrupt)
		}
		// Allocated beyond the current extent.
		if off >= c.dims[d] {
			return nil
		}
	}

	size := e.Size
	if size == 0 {
		size = c.chunkBytes
	}
	data, err := c.reader.At(int64(e.Address)).ReadBytes(int(size))
	if err != nil {
		return fmt.Errorf("reading %d bytes at %d: %w", size, e.Address, err)
	}
	if !c.unfilteredEdge(e.Offset) {
		if data, err = c.pipeline.Decode(data, e.FilterMask); err != nil {
			return err
		}
	}
	if uint64(len(data)) < c.chunkBytes {
		return fmt.Errorf("%w: chunk holds %d bytes, want %d", ErrCorrupt, len(data), c.chunkBytes)
	}

	copyBlock(out, data, c.dims, c.chunk, e.Offset, c.src.elementSize(), false)
	return nil
}

// unfilteredEdge reports whether the chunk at offset is a partial edge
// chunk the layout stores without filtering.
func (c *Chunked) unfilteredEdge(offset []uint64) bool {
	if c.src.Layout.ChunkFlags&message.ChunkDontFilterPartialEdges == 0 {
		return false
	}
	for d := range offset {
		if offset[d]+c.chunk[d] > c.dims[d] {
			return true
		}
	}
	return false
}

// copyBlock copies the part of the chunk at offset that lies inside dims
// between a row-major array and a chunk buffer, from chunk to array or,
// with toChunk, the other way.
func copyBlock(array, chunk []byte, dims, chunkDims, offset []uint64, size uint64, toChunk bool) {
	rank := len(dims)
	arrayStrides := strides(dims, size)
	chunkStrides := strides(chunkDims, size)
	extent := make([]uint64, rank)
	for d := range extent {
		extent[d] = min(chunkDims[d], dims[d]-offset[d])
	}

	var walk func(d int, a, ch uint64)
	walk = func(d int, a, ch uint64) {
		a += offset[d] * arrayStrides[d]
		if d == rank-1 {
			n := extent[d] * size
			if toChunk {
				copy(chunk[ch:ch+n], array[a:a+n])
			} else {
				copy(array[a:a+n], chunk[ch:ch+n])
			}
			return
		}
		for i := uint64(0); i < extent[d]; i++ {
			walk(d+1, a+i*arrayStrides[d], ch+i*chunkStrides[d])
		}
	}
	walk(0, 0, 0)
}

// grid numbers the chunks of a dataset the way the array indexes and the
// implicit index do: row-major over the chunk counts of the maximum extent,
// with an unlimited dimension moved to the front.
type grid struct {
	chunk []uint64
	order []int    // dimension at each position
	down  []uint64 // index stride at each position
	total uint64   // chunks in the current extent, counted as the index does
}

func newGrid(dims, maxDims, chunk []uint64) grid {
	rank := len(dims)
	counts := make([]uint64, rank)
	unlimited := -1
	for d := range counts {
		extent := dims[d]
		if d < len(maxDims) {
			switch m := maxDims[d]; {
			case m == message.Unlimited:
				if unlimited < 0 {
					unlimited = d
				}
			case m > extent:
				extent = m
			}
		}
		counts[d] = ceilDiv(extent, chunk[d])
	}

	g := grid{chunk: chunk, down: make([]uint64, rank)}
	if unlimited >= 0 {
		g.order = append(g.order, unlimited)
	}
	for d := 0; d < rank; d++ {
		if d != unlimited {
			g.order = append(g.order, d)
		}
	}
	acc := uint64(1)
	for p := rank - 1; p >= 0; p-- {
		g.down[p] = acc
		acc *= counts[g.order[p]]
	}
	g.total = acc
	return g
}

// offset returns the element coordinate of chunk i.
func (g grid) offset(i uint64) []uint64 {
	off := make([]uint64, len(g.order))
	for p, d := range g.order {
		off[d] = i / g.down[p] * g.chunk[d]
		i %= g.down[p]
	}
	return off
}

// index is the inverse of offset.
func (g grid) index(offset []uint64) uint64 {
	var i uint64
	for p, d := range g.order {
		i += offset[d] / g.chunk[d] * g.down[p]
	}
	return i
}
