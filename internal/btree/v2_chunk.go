package btree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
)

// ErrChecksumMismatch is returned when a version 2 B-tree header or node
// fails its checksum.
var ErrChecksumMismatch = errors.New("B-tree checksum mismatch")

const (
	recordChunk         = 10
	recordChunkFiltered = 11

	// Signature, version, type and checksum.
	nodePrefixSize = 10
)

type v2Header struct {
	recordType   uint8
	nodeSize     int
	recordSize   int
	depth        int
	root         uint64
	rootRecords  int
	totalRecords uint64

	// Field widths in internal node child pointers.
	nrecSize int
	cumSize  []int
}

// ChunkSizeLength is the width of the stored chunk size field for filtered
// chunks whose unfiltered size is chunkBytes.
func ChunkSizeLength(chunkBytes uint64) int {
	n := 1 + (log2(chunkBytes)+8)/8
	return min(n, 8)
}

func log2(v uint64) int {
	if v == 0 {
		return 0
	}
	return bits.Len64(v) - 1
}

func limitEncSize(v uint64) int { return log2(v)/8 + 1 }

// ReadChunksV2 returns every chunk in the version 2 B-tree at address.
// chunkDims is the chunk shape, without the element dimension, and
// chunkBytes the unfiltered chunk size.
func ReadChunksV2(r *binpkg.Reader, address uint64, chunkDims []uint64, chunkBytes uint64) ([]ChunkEntry, error) {
	h, err := readV2Header(r, address)
	if err != nil {
		return nil, err
	}
	if h.recordType != recordChunk && h.recordType != recordChunkFiltered {
		return nil, fmt.Errorf("%w: B-tree at %d has record type %d, not a chunk index", ErrInvalidNode, address, h.recordType)
	}
	if h.totalRecords == 0 || r.IsUndefinedOffset(h.root) {
		return nil, nil
	}

	d := &v2Decoder{r: r, h: h, dims: chunkDims}
	if h.recordType == recordChunkFiltered {
		d.sizeLen = ChunkSizeLength(chunkBytes)
	}
	want := r.OffsetSize() + 8*len(chunkDims)
	if d.sizeLen > 0 {
		want += d.sizeLen + 4
	}
	if want != h.recordSize {
		return nil, fmt.Errorf("%w: chunk record of %d bytes, want %d", ErrInvalidNode, h.recordSize, want)
	}
	if err := h.initWidths(r.OffsetSize()); err != nil {
		return nil, fmt.Errorf("%w at %d: %w", ErrInvalidNode, address, err)
	}

	if err := d.node(h.root, h.rootRecords, h.depth); err != nil {
		return nil, err
	}
	return d.entries, nil
}

/*
Version 2 B-tree header:

	"BTHD", version (0), type, node size (u32), record size (u16),
	depth (u16), split percent, merge percent, root address (O),
	root record count (u16), total record count (L), checksum
*/
func readV2Header(r *binpkg.Reader, address uint64) (*v2Header, error) {
	size := 4 + 1 + 1 + 4 + 2 + 2 + 1 + 1 + r.OffsetSize() + 2 + r.LengthSize() + 4
	block, err := r.At(int64(address)).ReadBytes(size)
	if err != nil {
		return nil, fmt.Errorf("%w: B-tree header at %d: %w", ErrInvalidNode, address, err)
	}
	if string(block[:4]) != "BTHD" || block[4] != 0 {
		return nil, fmt.Errorf("%w: bad B-tree header at %d", ErrInvalidNode, address)
	}
	if err := verify(block); err != nil {
		return nil, fmt.Errorf("B-tree header at %d: %w", address, err)
	}

	br := r.Over(block[5:])
	h := &v2Header{}
	h.recordType, _ = br.ReadUint8()
	nodeSize, _ := br.ReadUint32()
	recordSize, _ := br.ReadUint16()
	depth, _ := br.ReadUint16()
	br.Skip(2)
	h.root, _ = br.ReadOffset()
	rootRecords, _ := br.ReadUint16()
	h.totalRecords, err = br.ReadLength()
	if err != nil {
		return nil, err
	}
	h.nodeSize = int(nodeSize)
	h.recordSize = int(recordSize)
	h.depth = int(depth)
	h.rootRecords = int(rootRecords)
	return h, nil
}

// initWidths works out the record counts each level can hold, which fix
// the widths of the count fields in child pointers.
func (h *v2Header) initWidths(offsetSize int) error {
	if h.recordSize == 0 || h.nodeSize <= nodePrefixSize {
		return fmt.Errorf("node size %d, record size %d", h.nodeSize, h.recordSize)
	}
	leafMax := uint64((h.nodeSize - nodePrefixSize) / h.recordSize)
	if leafMax == 0 {
		return fmt.Errorf("node size %d holds no records", h.nodeSize)
	}
	h.nrecSize = limitEncSize(leafMax)

	h.cumSize = make([]int, h.depth+1)
	cum := leafMax
	for u := 1; u <= h.depth; u++ {
		ptr := offsetSize + h.nrecSize
		if u > 1 {
			ptr += h.cumSize[u-1]
		}
		maxRec := uint64((h.nodeSize - nodePrefixSize) / (h.recordSize + ptr))
		if maxRec == 0 {
			return fmt.Errorf("node size %d holds no records at depth %d", h.nodeSize, u)
		}
		cum = (maxRec+1)*cum + maxRec
		h.cumSize[u] = limitEncSize(cum)
	}
	return nil
}

type v2Decoder struct {
	r       *binpkg.Reader
	h       *v2Header
	dims    []uint64
	sizeLen int
	entries []ChunkEntry
}

// node reads the node at address holding nrec records at the given depth;
// depth 0 is a leaf.
func (d *v2Decoder) node(address uint64, nrec, depth int) error {
	sig := "BTLF"
	used := nodePrefixSize - 4 + nrec*d.h.recordSize
	ptrSize := 0
	if depth > 0 {
		sig = "BTIN"
		ptrSize = d.r.OffsetSize() + d.h.nrecSize
		if depth > 1 {
			ptrSize += d.h.cumSize[depth-1]
		}
		used += (nrec + 1) * ptrSize
	}
	if used+4 > d.h.nodeSize {
		return fmt.Errorf("%w: %d records overflow the node at %d", ErrInvalidNode, nrec, address)
	}

	block, err := d.r.At(int64(address)).ReadBytes(used + 4)
	if err != nil {
		return fmt.Errorf("%w: node at %d: %w", ErrInvalidNode, address, err)
	}
	if string(block[:4]) != sig || block[5] != d.h.recordType {
		return fmt.Errorf("%w: bad %s node at %d", ErrInvalidNode, sig, address)
	}
	if err := verify(block); err != nil {
		return fmt.Errorf("B-tree node at %d: %w", address, err)
	}

	nr := d.r.Over(block[6:])
	if depth == 0 {
		for i := 0; i < nrec; i++ {
			if err := d.record(nr); err != nil {
				return err
			}
		}
		return nil
	}

	// Internal nodes keep their records between the children, so a record
	// belongs after child i in key order.
	records := make([]*binpkg.Reader, nrec)
	for i := range records {
		records[i] = d.r.Over(block[6+i*d.h.recordSize : 6+(i+1)*d.h.recordSize])
	}
	nr.Skip(int64(nrec * d.h.recordSize))
	for i := 0; i <= nrec; i++ {
		child, _ := nr.ReadOffset()
		childRecords, err := nr.ReadUintN(d.h.nrecSize)
		if err != nil {
			return err
		}
		if depth > 1 {
			nr.Skip(int64(d.h.cumSize[depth-1]))
		}
		if err := d.node(child, int(childRecords), depth-1); err != nil {
			return err
		}
		if i < nrec {
			if err := d.record(records[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

/*
Chunk records:

	type 10: address (O), scaled offsets (rank × u64)
	type 11: address (O), chunk size, filter mask (u32), scaled offsets

Scaled offsets count chunks, not elements.
*/
func (d *v2Decoder) record(rr *binpkg.Reader) error {
	addr, err := rr.ReadOffset()
	if err != nil {
		return err
	}
	e := ChunkEntry{Address: addr, Offset: make([]uint64, len(d.dims))}
	if d.sizeLen > 0 {
		e.Size, _ = rr.ReadUintN(d.sizeLen)
		e.FilterMask, _ = rr.ReadUint32()
	}
	for i := range e.Offset {
		scaled, err := rr.ReadUint64()
		if err != nil {
			return err
		}
		e.Offset[i] = scaled * d.dims[i]
	}
	if !d.r.IsUndefinedOffset(addr) {
		d.entries = append(d.entries, e)
	}
	return nil
}

// verify checks the lookup3 checksum in the last four bytes of block.
func verify(block []byte) error {
	n := len(block) - 4
	if got, want := binpkg.Lookup3Checksum(block[:n]), binary.LittleEndian.Uint32(block[n:]); got != want {
		return fmt.Errorf("%w: computed %#x, stored %#x", ErrChecksumMismatch, got, want)
	}
	return nil
}
