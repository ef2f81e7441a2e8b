package layout

import (
	"fmt"
	"math"
	"slices"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/btree"
	"github.com/robert-malhotra/go-hashdiff/internal/filter"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// Index parameters the writer uses, the HDF5 library defaults.
const (
	faPageBits = 10

	eaMaxBits  = 32
	eaIdxElems = 4
	eaMinElems = 16
	eaMinPtrs  = 4
	eaPageBits = 10
)

// ChunkWriter stores chunked data and the index that finds it.
type ChunkWriter struct {
	w        *binpkg.Writer
	pipeline *filter.Pipeline
	alloc    func(size int64) uint64
}

// NewChunkWriter returns a writer that passes chunks through pipeline,
// which may be nil, and places them at addresses from alloc.
func NewChunkWriter(w *binpkg.Writer, pipeline *filter.Pipeline, alloc func(size int64) uint64) *ChunkWriter {
	if pipeline == nil {
		pipeline = filter.NewPipeline(nil)
	}
	return &ChunkWriter{w: w, pipeline: pipeline, alloc: alloc}
}

// Write stores data, a row-major array of shape dims, in chunks of shape
// chunkDims and returns the layout message for it. A dataset that fits
// one chunk gets a single chunk index, one with an unlimited dimension in
// maxDims an extensible array and any other a fixed array. Edge chunks are
// padded with zeros.
func (cw *ChunkWriter) Write(data []byte, dims, maxDims, chunkDims []uint64, elementSize uint32) (*message.DataLayout, error) {
	rank := len(dims)
	if rank == 0 || len(chunkDims) != rank {
		return nil, fmt.Errorf("%d chunk dimensions for a rank %d dataset", len(chunkDims), rank)
	}
	dims32 := make([]uint32, rank)
	for d, c := range chunkDims {
		if c == 0 || c > math.MaxUint32 {
			return nil, fmt.Errorf("chunk dimension %d is %d", d, c)
		}
		dims32[d] = uint32(c)
	}
	size := uint64(elementSize)
	if uint64(len(data)) != product(dims)*size {
		return nil, fmt.Errorf("%d bytes of data for shape %v", len(data), dims)
	}

	chunkBytes := product(chunkDims) * size
	counts := make([]uint64, rank)
	for d := range counts {
		counts[d] = ceilDiv(dims[d], chunkDims[d])
	}
	n := product(counts)
	chunks := make([]btree.ChunkEntry, 0, n)
	buf := make([]byte, chunkBytes)
	for i := uint64(0); i < n; i++ {
		offset := make([]uint64, rank)
		rem := i
		for d := rank - 1; d >= 0; d-- {
			offset[d] = rem % counts[d] * chunkDims[d]
			rem /= counts[d]
		}
		clear(buf)
		copyBlock(data, buf, dims, chunkDims, offset, size, true)
		e, err := cw.store(buf, offset)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, e)
	}

	g := newGrid(dims, maxDims, chunkDims)
	filtered := !cw.pipeline.Empty()
	ec, client := entriesCodec(filtered, chunkBytes, cw.w.OffsetSize())

	var l *message.DataLayout
	var err error
	switch {
	case slices.Contains(maxDims, message.Unlimited):
		l = message.NewChunkedLayout(dims32, elementSize, message.ChunkIndexExtensibleArray)
		l.MaxBits, l.IndexElements, l.MinPointers, l.MinElements, l.PageBits = eaMaxBits, eaIdxElems, eaMinPtrs, eaMinElems, eaPageBits
		l.ChunkIndexAddr, err = cw.writeExtensibleArray(chunks, g, ec, client)
	case g.total == 1:
		l = message.NewChunkedLayout(dims32, elementSize, message.ChunkIndexSingle)
		l.ChunkIndexAddr = cw.w.UndefinedOffset()
		if len(chunks) == 1 {
			l.ChunkIndexAddr = chunks[0].Address
			if filtered {
				l.ChunkFlags |= message.ChunkSingleFiltered
				l.SingleChunkSize = chunks[0].Size
				l.SingleChunkFilterMask = chunks[0].FilterMask
			}
		}
	default:
		l = message.NewChunkedLayout(dims32, elementSize, message.ChunkIndexFixedArray)
		l.PageBits = faPageBits
		l.ChunkIndexAddr, err = cw.writeFixedArray(chunks, g, ec, client)
	}
	if err != nil {
		return nil, fmt.Errorf("writing chunk index: %w", err)
	}
	return l, nil
}

func (cw *ChunkWriter) store(chunk []byte, offset []uint64) (btree.ChunkEntry, error) {
	stored, mask, err := cw.pipeline.Encode(chunk)
	if err != nil {
		return btree.ChunkEntry{}, fmt.Errorf("filtering chunk at %v: %w", offset, err)
	}
	addr, err := cw.put(stored)
	if err != nil {
		return btree.ChunkEntry{}, fmt.Errorf("writing chunk at %v: %w", offset, err)
	}
	return btree.ChunkEntry{Offset: offset, FilterMask: mask, Size: uint64(len(stored)), Address: addr}, nil
}

func (cw *ChunkWriter) put(b []byte) (uint64, error) {
	addr := cw.alloc(int64(len(b)))
	return addr, cw.w.At(int64(addr)).WriteBytes(b)
}

// slots places chunks at their index positions; the other n-len(chunks)
// slots are unallocated.
func (cw *ChunkWriter) slots(chunks []btree.ChunkEntry, g grid, n uint64) []btree.ChunkEntry {
	s := make([]btree.ChunkEntry, n)
	for i := range s {
		s[i].Address = cw.w.UndefinedOffset()
	}
	for _, e := range chunks {
		s[g.index(e.Offset)] = e
	}
	return s
}

func (cw *ChunkWriter) writeFixedArray(chunks []btree.ChunkEntry, g grid, ec entryCodec, client uint8) (uint64, error) {
	if len(chunks) == 0 {
		return cw.w.UndefinedOffset(), nil
	}
	o, l := cw.w.OffsetSize(), cw.w.LengthSize()
	count := g.total
	slots := cw.slots(chunks, g, count)
	hdrAddr := cw.alloc(int64(8 + l + o + 4))

	data := appendLE(append([]byte("FADB"), 0, client), hdrAddr, o)
	pageLen := uint64(1) << faPageBits
	if count <= pageLen {
		for _, e := range slots {
			data = ec.append(data, e)
		}
		data = checksummed(data)
	} else {
		pages := ceilDiv(count, pageLen)
		bitmap := make([]byte, ceilDiv(pages, 8))
		for p := uint64(0); p < pages; p++ {
			bitmap[p/8] |= 0x80 >> (p % 8)
		}
		data = checksummed(append(data, bitmap...))
		for p := uint64(0); p < pages; p++ {
			var page []byte
			for _, e := range slots[p*pageLen : min((p+1)*pageLen, count)] {
				page = ec.append(page, e)
			}
			data = append(data, checksummed(page)...)
		}
	}
	dataAddr, err := cw.put(data)
	if err != nil {
		return 0, err
	}

	head := append([]byte("FAHD"), 0, client, uint8(ec.size), faPageBits)
	head = appendLE(head, count, l)
	head = appendLE(head, dataAddr, o)
	return hdrAddr, cw.w.At(int64(hdrAddr)).WriteBytes(checksummed(head))
}

func (cw *ChunkWriter) writeExtensibleArray(chunks []btree.ChunkEntry, g grid, ec entryCodec, client uint8) (uint64, error) {
	if len(chunks) == 0 {
		return cw.w.UndefinedOffset(), nil
	}
	o, l := cw.w.OffsetSize(), cw.w.LengthSize()
	undefined := cw.w.UndefinedOffset()

	var n uint64
	for _, e := range chunks {
		n = max(n, g.index(e.Offset)+1)
	}
	slots := cw.slots(chunks, g, n)
	slot := func(i uint64) btree.ChunkEntry {
		if i < n {
			return slots[i]
		}
		return btree.ChunkEntry{Address: undefined}
	}

	supers, err := newSuperInfo(eaMaxBits, eaMinElems)
	if err != nil {
		return 0, err
	}
	direct := indexBlockSupers(eaMinPtrs)
	dblockPtrs := make([]uint64, 2*(eaMinPtrs-1))
	sblockPtrs := make([]uint64, uint64(len(supers))-direct)
	for i := range dblockPtrs {
		dblockPtrs[i] = undefined
	}
	for i := range sblockPtrs {
		sblockPtrs[i] = undefined
	}

	hdrAddr := cw.alloc(int64(12 + 6*l + o + 4))
	offsetSize := (eaMaxBits + 7) / 8
	// Super blocks, their bytes, data blocks, their bytes.
	var stats [4]uint64

	for u, info := range supers {
		base := eaIdxElems + info.start
		if base >= n {
			break
		}
		if info.elems > 1<<eaPageBits {
			return 0, fmt.Errorf("%d chunks need paged extensible array blocks", n)
		}

		addrs := make([]uint64, info.dblocks)
		for k := range addrs {
			first := base + uint64(k)*info.elems
			if first >= n {
				addrs[k] = undefined
				continue
			}
			b := appendLE(append([]byte("EADB"), 0, client), hdrAddr, o)
			b = appendLE(b, info.start+uint64(k)*info.elems, offsetSize)
			for j := uint64(0); j < info.elems; j++ {
				b = ec.append(b, slot(first+j))
			}
			b = checksummed(b)
			if addrs[k], err = cw.put(b); err != nil {
				return 0, err
			}
			stats[2]++
			stats[3] += uint64(len(b))
		}

		if uint64(u) < direct {
			copy(dblockPtrs[info.firstBlock:], addrs)
			continue
		}
		b := appendLE(append([]byte("EASB"), 0, client), hdrAddr, o)
		b = appendLE(b, info.start, offsetSize)
		for _, a := range addrs {
			b = appendLE(b, a, o)
		}
		b = checksummed(b)
		if sblockPtrs[uint64(u)-direct], err = cw.put(b); err != nil {
			return 0, err
		}
		stats[0]++
		stats[1] += uint64(len(b))
	}

	ib := appendLE(append([]byte("EAIB"), 0, client), hdrAddr, o)
	for i := uint64(0); i < eaIdxElems; i++ {
		ib = ec.append(ib, slot(i))
	}
	for _, a := range append(dblockPtrs, sblockPtrs...) {
		ib = appendLE(ib, a, o)
	}
	ibAddr, err := cw.put(checksummed(ib))
	if err != nil {
		return 0, err
	}

	head := append([]byte("EAHD"), 0, client, uint8(ec.size), eaMaxBits, eaIdxElems, eaMinElems, eaMinPtrs, eaPageBits)
	for _, v := range stats {
		head = appendLE(head, v, l)
	}
	head = appendLE(head, n, l)
	head = appendLE(head, uint64(len(chunks)), l)
	head = appendLE(head, ibAddr, o)
	return hdrAddr, cw.w.At(int64(hdrAddr)).WriteBytes(checksummed(head))
}
