package layout

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/go-hashdiff/internal/btree"
)

// earray holds the parameters of an extensible array and the layout of its
// super blocks, which they determine.
type earray struct {
	c     *Chunked
	ec    entryCodec
	g     grid
	count uint64 // one past the highest index ever set

	idxElems   uint64
	minPtrs    uint64
	pageElems  uint64
	offsetSize int // block offset width in data and super blocks
	supers     []superInfo
}

// superInfo describes super block u: it covers dblocks data blocks of
// elems elements, starting at element start after the index block's own.
type superInfo struct {
	dblocks    uint64
	elems      uint64
	start      uint64
	firstBlock uint64
}

func newSuperInfo(maxBits, minElems uint64) ([]superInfo, error) {
	if minElems == 0 || minElems&(minElems-1) != 0 || maxBits > 64 {
		return nil, fmt.Errorf("%w: extensible array with %d-element data blocks", ErrCorrupt, minElems)
	}
	log := uint64(bits.TrailingZeros64(minElems))
	if maxBits < log {
		return nil, fmt.Errorf("%w: extensible array of %d bits", ErrCorrupt, maxBits)
	}
	n := 1 + maxBits - log
	info := make([]superInfo, n)
	var start, first uint64
	for u := range info {
		info[u] = superInfo{
			dblocks:    1 << (u / 2),
			elems:      (1 << ((u + 1) / 2)) * minElems,
			start:      start,
			firstBlock: first,
		}
		start += info[u].dblocks * info[u].elems
		first += info[u].dblocks
	}
	return info, nil
}

// indexBlockSupers is the number of super blocks whose data blocks the
// index block points at directly.
func indexBlockSupers(minPtrs uint64) uint64 {
	return 2 * uint64(bits.TrailingZeros64(minPtrs))
}

/*
Extensible array header:

	"EAHD", version (0), client, element size, max element bits,
	index block elements, data block min elements, super block min
	pointers, data block page bits, six counters (L), the fifth being
	the max index set, index block address (O), checksum

Index block:

	"EAIB", version, client, header address (O), elements,
	data block addresses (O), super block addresses (O), checksum

Super block:

	"EASB", version, client, header address (O), block offset,
	page bitmaps, data block addresses (O), checksum

Data block:

	"EADB", version, client, header address (O), block offset,
	elements or nothing when paged, checksum

Paged data blocks are followed by their pages, each with a checksum.
*/
func (c *Chunked) readExtensibleArray(addr uint64) ([]btree.ChunkEntry, error) {
	o, l := c.reader.OffsetSize(), c.reader.LengthSize()
	head, err := block(c.reader, addr, 12+6*l+o+4, "EAHD")
	if err != nil {
		return nil, err
	}
	ec, err := newEntryCodec(head[5], int(head[6]), o)
	if err != nil {
		return nil, err
	}
	maxBits := uint64(head[7])
	supers, err := newSuperInfo(maxBits, uint64(head[9]))
	if err != nil {
		return nil, err
	}
	minPtrs := uint64(head[10])
	if minPtrs == 0 || minPtrs&(minPtrs-1) != 0 {
		return nil, fmt.Errorf("%w: extensible array with %d minimum pointers", ErrCorrupt, minPtrs)
	}

	ea := &earray{
		c:          c,
		ec:         ec,
		g:          newGrid(c.dims, c.src.Dataspace.MaxDims, c.chunk),
		count:      leUint(head[12+4*l:], l),
		idxElems:   uint64(head[8]),
		minPtrs:    minPtrs,
		pageElems:  1 << head[11],
		offsetSize: int(maxBits+7) / 8,
		supers:     supers,
	}
	index := leUint(head[12+6*l:], o)
	if c.reader.IsUndefinedOffset(index) || ea.count == 0 {
		return nil, nil
	}
	return ea.read(index)
}

func (ea *earray) read(addr uint64) ([]btree.ChunkEntry, error) {
	r := ea.c.reader
	o := uint64(r.OffsetSize())
	es := uint64(ea.ec.size)

	direct := indexBlockSupers(ea.minPtrs)
	if direct > uint64(len(ea.supers)) {
		return nil, fmt.Errorf("%w: extensible array index block covers %d super blocks of %d", ErrCorrupt, direct, len(ea.supers))
	}
	dblockAddrs := 2 * (ea.minPtrs - 1)
	sblockAddrs := uint64(len(ea.supers)) - direct

	prefix := 6 + o
	size := prefix + ea.idxElems*es + (dblockAddrs+sblockAddrs)*o + 4
	ib, err := block(r, addr, int(size), "EAIB")
	if err != nil {
		return nil, err
	}
	entries := ea.c.collect(nil, ea.ec, ea.g, ib[prefix:], 0, min(ea.idxElems, ea.count))

	ptrs := ib[prefix+ea.idxElems*es:]
	for u, info := range ea.supers {
		base := ea.idxElems + info.start
		if base >= ea.count {
			break
		}

		var addrs []uint64
		var bitmaps []byte
		if uint64(u) < direct {
			for k := uint64(0); k < info.dblocks; k++ {
				addrs = append(addrs, leUint(ptrs[(info.firstBlock+k)*o:], int(o)))
			}
		} else {
			sb := leUint(ptrs[(dblockAddrs+uint64(u)-direct)*o:], int(o))
			if r.IsUndefinedOffset(sb) {
				continue
			}
			if addrs, bitmaps, err = ea.superBlock(sb, info); err != nil {
				return nil, err
			}
		}

		for k, db := range addrs {
			first := base + uint64(k)*info.elems
			if first >= ea.count {
				break
			}
			if r.IsUndefinedOffset(db) {
				continue
			}
			var pages []byte
			if bitmaps != nil {
				n := ea.pageBitmapLen(info)
				pages = bitmaps[uint64(k)*n : uint64(k+1)*n]
			}
			if entries, err = ea.dataBlock(entries, db, first, info, pages); err != nil {
				return nil, err
			}
		}
	}
	return entries, nil
}

func (ea *earray) paged(info superInfo) bool { return info.elems > ea.pageElems }

func (ea *earray) pageBitmapLen(info superInfo) uint64 {
	return ceilDiv(info.elems/ea.pageElems, 8)
}

func (ea *earray) superBlock(addr uint64, info superInfo) ([]uint64, []byte, error) {
	o := uint64(ea.c.reader.OffsetSize())
	prefix := 6 + o + uint64(ea.offsetSize)
	var bitmapLen uint64
	if ea.paged(info) {
		bitmapLen = info.dblocks * ea.pageBitmapLen(info)
	}
	sb, err := block(ea.c.reader, addr, int(prefix+bitmapLen+info.dblocks*o+4), "EASB")
	if err != nil {
		return nil, nil, err
	}
	var bitmaps []byte
	if bitmapLen > 0 {
		bitmaps = sb[prefix : prefix+bitmapLen]
	}
	addrs := make([]uint64, info.dblocks)
	for k := range addrs {
		addrs[k] = leUint(sb[prefix+bitmapLen+uint64(k)*o:], int(o))
	}
	return addrs, bitmaps, nil
}

// dataBlock collects the entries of the data block at addr. pages is the
// page bitmap from its super block; a paged block under the index block
// has all pages.
func (ea *earray) dataBlock(entries []btree.ChunkEntry, addr, first uint64, info superInfo, pages []byte) ([]btree.ChunkEntry, error) {
	r := ea.c.reader
	es := uint64(ea.ec.size)
	prefix := 6 + uint64(r.OffsetSize()) + uint64(ea.offsetSize)

	if !ea.paged(info) {
		db, err := block(r, addr, int(prefix+info.elems*es+4), "EADB")
		if err != nil {
			return nil, err
		}
		return ea.c.collect(entries, ea.ec, ea.g, db[prefix:], first, info.elems), nil
	}

	if _, err := block(r, addr, int(prefix+4), "EADB"); err != nil {
		return nil, err
	}
	pageAddr := addr + prefix + 4
	for p := uint64(0); p < info.elems/ea.pageElems; p++ {
		if pages == nil || bitSet(pages, p) {
			page, err := r.At(int64(pageAddr)).ReadBytes(int(ea.pageElems*es + 4))
			if err != nil {
				return nil, fmt.Errorf("%w: extensible array page at %d: %w", ErrCorrupt, pageAddr, err)
			}
			if err := checked(page, "extensible array page", pageAddr); err != nil {
				return nil, err
			}
			entries = ea.c.collect(entries, ea.ec, ea.g, page, first+p*ea.pageElems, ea.pageElems)
		}
		pageAddr += ea.pageElems*es + 4
	}
	return entries, nil
}
