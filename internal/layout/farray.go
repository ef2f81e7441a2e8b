package layout

import (
	"fmt"

	"github.com/robert-malhotra/go-hashdiff/internal/btree"
)

/*
Fixed array header:

	"FAHD", version (0), client, entry size, page bits, entry count (L),
	data block address (O), checksum

Data block:

	"FADB", version, client, header address (O), entries, checksum

When the entries do not fit on one page of 2^page bits, the data block
holds a bitmap of initialised pages in place of the entries, and the pages
follow it, each with its own checksum.
*/
func (c *Chunked) readFixedArray(addr uint64) ([]btree.ChunkEntry, error) {
	o, l := c.reader.OffsetSize(), c.reader.LengthSize()
	head, err := block(c.reader, addr, 8+l+o+4, "FAHD")
	if err != nil {
		return nil, err
	}
	ec, err := newEntryCodec(head[5], int(head[6]), o)
	if err != nil {
		return nil, err
	}
	pageLen := uint64(1) << head[7]
	count := leUint(head[8:], l)
	dataAddr := leUint(head[8+l:], o)

	g := newGrid(c.dims, c.src.Dataspace.MaxDims, c.chunk)
	es := uint64(ec.size)
	prefix := uint64(6 + o)

	if count <= pageLen {
		data, err := block(c.reader, dataAddr, int(prefix+count*es+4), "FADB")
		if err != nil {
			return nil, err
		}
		return c.collect(nil, ec, g, data[prefix:], 0, count), nil
	}

	pages := ceilDiv(count, pageLen)
	bitmapLen := ceilDiv(pages, 8)
	data, err := block(c.reader, dataAddr, int(prefix+bitmapLen+4), "FADB")
	if err != nil {
		return nil, err
	}
	bitmap := data[prefix : prefix+bitmapLen]

	var entries []btree.ChunkEntry
	pageAddr := dataAddr + prefix + bitmapLen + 4
	for p := uint64(0); p < pages; p++ {
		first := p * pageLen
		n := min(pageLen, count-first)
		if bitSet(bitmap, p) {
			page, err := c.reader.At(int64(pageAddr)).ReadBytes(int(n*es + 4))
			if err != nil {
				return nil, fmt.Errorf("%w: fixed array page at %d: %w", ErrCorrupt, pageAddr, err)
			}
			if err := checked(page, "fixed array page", pageAddr); err != nil {
				return nil, err
			}
			entries = c.collect(entries, ec, g, page, first, n)
		}
		pageAddr += pageLen*es + 4
	}
	return entries, nil
}
