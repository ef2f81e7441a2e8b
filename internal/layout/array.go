package layout

import (
	"fmt"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/btree"
)

// Array index clients.
const (
	clientChunks         = 0
	clientFilteredChunks = 1
)

// entryCodec reads and writes the chunk entries of fixed and extensible
// arrays:
//
//	address (O)
//	address (O), stored size, filter mask (u32)    filtered chunks
type entryCodec struct {
	offsetSize int
	size       int
	sizeLen    int
}

func newEntryCodec(client uint8, entrySize, offsetSize int) (entryCodec, error) {
	ec := entryCodec{offsetSize: offsetSize, size: entrySize}
	switch client {
	case clientChunks:
		if entrySize == offsetSize {
			return ec, nil
		}
	case clientFilteredChunks:
		ec.sizeLen = entrySize - offsetSize - 4
		if ec.sizeLen >= 1 && ec.sizeLen <= 8 {
			return ec, nil
		}
	default:
		return ec, fmt.Errorf("%w: array client %d", ErrUnsupported, client)
	}
	return ec, fmt.Errorf("%w: array entry of %d bytes for client %d", ErrCorrupt, entrySize, client)
}

// entriesCodec is the codec the writer uses.
func entriesCodec(filtered bool, chunkBytes uint64, offsetSize int) (entryCodec, uint8) {
	if !filtered {
		return entryCodec{offsetSize: offsetSize, size: offsetSize}, clientChunks
	}
	n := btree.ChunkSizeLength(chunkBytes)
	return entryCodec{offsetSize: offsetSize, size: offsetSize + n + 4, sizeLen: n}, clientFilteredChunks
}

func (ec entryCodec) decode(raw []byte) btree.ChunkEntry {
	e := btree.ChunkEntry{Address: leUint(raw, ec.offsetSize)}
	if ec.sizeLen > 0 {
		e.Size = leUint(raw[ec.offsetSize:], ec.sizeLen)
		e.FilterMask = uint32(leUint(raw[ec.offsetSize+ec.sizeLen:], 4))
	}
	return e
}

func (ec entryCodec) append(b []byte, e btree.ChunkEntry) []byte {
	b = appendLE(b, e.Address, ec.offsetSize)
	if ec.sizeLen > 0 {
		b = appendLE(b, e.Size, ec.sizeLen)
		b = appendLE(b, uint64(e.FilterMask), 4)
	}
	return b
}

// collect decodes n entries from raw, numbered from first, and keeps the
// allocated ones.
func (c *Chunked) collect(entries []btree.ChunkEntry, ec entryCodec, g grid, raw []byte, first, n uint64) []btree.ChunkEntry {
	for i := uint64(0); i < n; i++ {
		e := ec.decode(raw[i*uint64(ec.size):])
		if c.reader.IsUndefinedOffset(e.Address) {
			continue
		}
		e.Offset = g.offset(first + i)
		entries = append(entries, e)
	}
	return entries
}

// block reads size bytes at addr, checks the signature and the trailing
// checksum.
func block(r *binpkg.Reader, addr uint64, size int, sig string) ([]byte, error) {
	b, err := r.At(int64(addr)).ReadBytes(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at %d: %w", ErrCorrupt, sig, addr, err)
	}
	if string(b[:4]) != sig || b[4] != 0 {
		return nil, fmt.Errorf("%w: expected %s at %d, found %q version %d", ErrCorrupt, sig, addr, b[:4], b[4])
	}
	if err := checked(b, sig, addr); err != nil {
		return nil, err
	}
	return b, nil
}

func leUint(b []byte, n int) uint64 {
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func appendLE(b []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

// bitSet reports bit i of a most-significant-first bitmap.
func bitSet(bitmap []byte, i uint64) bool { return bitmap[i/8]&(0x80>>(i%8)) != 0 }
