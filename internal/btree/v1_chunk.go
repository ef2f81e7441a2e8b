package btree

import (
	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
)

// ChunkEntry locates one stored chunk.
type ChunkEntry struct {
	// Offset is the element coordinate of the chunk's first element.
	Offset []uint64
	// FilterMask has bit i set when filter i was skipped for this chunk.
	FilterMask uint32
	// Size is the stored, possibly filtered, size in bytes.
	Size    uint64
	Address uint64
}

// ReadChunks returns every chunk in the version 1 B-tree at address. rank
// is the dataset's rank; keys carry one more, always zero, coordinate for
// the element.
//
//	key: chunk size (u32), filter mask (u32), rank+1 offsets (u64)
func ReadChunks(r *binpkg.Reader, address uint64, rank int) ([]ChunkEntry, error) {
	var entries []ChunkEntry
	var last ChunkEntry
	readKey := func(nr *binpkg.Reader) error {
		size, _ := nr.ReadUint32()
		mask, _ := nr.ReadUint32()
		offset := make([]uint64, rank+1)
		for i := range offset {
			v, err := nr.ReadUint64()
			if err != nil {
				return err
			}
			offset[i] = v
		}
		last = ChunkEntry{Offset: offset[:rank], FilterMask: mask, Size: uint64(size)}
		return nil
	}
	err := walkV1(r, address, nodeChunk, -1, readKey, func(chunk uint64) error {
		if !r.IsUndefinedOffset(chunk) && last.Size > 0 {
			last.Address = chunk
			entries = append(entries, last)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
