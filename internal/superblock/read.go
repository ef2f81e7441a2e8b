package superblock

import (
	"encoding/binary"
	"fmt"
	"io"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
)

// scratchSymbolTable is the cache type of a symbol table entry whose
// scratch pad holds a B-tree and local heap address.
const scratchSymbolTable = 1

// readV0 parses a version 0 or 1 superblock. br is positioned just past
// the version byte.
//
//	free-space version, root entry version, reserved, shared header version
//	offset size, length size, reserved
//	group leaf K (2), group internal K (2), consistency flags (4)
//	[v1] indexed storage K (2), reserved (2)
//	base, free-space info, EOF, driver info addresses
//	root group symbol table entry
func readV0(r io.ReaderAt, br *binpkg.Reader, version uint8) (*Superblock, error) {
	head, err := br.ReadBytes(15)
	if err != nil {
		return nil, err
	}
	sb := &Superblock{Version: version, OffsetSize: head[4], LengthSize: head[5]}
	if !validSize(sb.OffsetSize) || !validSize(sb.LengthSize) {
		return nil, fmt.Errorf("%w: field sizes %d/%d", ErrInvalidSuperblock, sb.OffsetSize, sb.LengthSize)
	}
	if version == 1 {
		br.Skip(4)
	}

	br = binpkg.NewReader(r, sb.ReaderConfig()).At(br.Pos())
	if sb.BaseAddress, err = br.ReadOffset(); err != nil {
		return nil, err
	}
	br.Skip(int64(sb.OffsetSize)) // free-space info
	if sb.EOFAddress, err = br.ReadOffset(); err != nil {
		return nil, err
	}
	br.Skip(int64(sb.OffsetSize)) // driver info

	br.Skip(int64(sb.OffsetSize)) // link name offset
	if sb.RootGroupAddress, err = br.ReadOffset(); err != nil {
		return nil, err
	}
	cache, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	br.Skip(4)
	if cache == scratchSymbolTable {
		if sb.RootGroupBTreeAddress, err = br.ReadOffset(); err != nil {
			return nil, err
		}
		if sb.RootGroupLocalHeapAddress, err = br.ReadOffset(); err != nil {
			return nil, err
		}
	}
	return sb, nil
}

// readV2 parses a version 2 or 3 superblock and verifies its checksum,
// which covers everything from the signature on.
//
//	offset size, length size, consistency flags
//	base, extension, EOF, root group addresses
//	lookup3 checksum
func readV2(r io.ReaderAt, br *binpkg.Reader, start int64, version uint8) (*Superblock, error) {
	head, err := br.ReadBytes(3)
	if err != nil {
		return nil, err
	}
	sb := &Superblock{Version: version, OffsetSize: head[0], LengthSize: head[1], Flags: head[2]}
	if !validSize(sb.OffsetSize) || !validSize(sb.LengthSize) {
		return nil, fmt.Errorf("%w: field sizes %d/%d", ErrInvalidSuperblock, sb.OffsetSize, sb.LengthSize)
	}

	br = binpkg.NewReader(r, sb.ReaderConfig()).At(br.Pos())
	for _, dst := range []*uint64{&sb.BaseAddress, &sb.ExtensionAddress, &sb.EOFAddress, &sb.RootGroupAddress} {
		if *dst, err = br.ReadOffset(); err != nil {
			return nil, err
		}
	}

	body := make([]byte, br.Pos()-start+4)
	if _, err := r.ReadAt(body, start); err != nil {
		return nil, err
	}
	n := len(body) - 4
	if binary.LittleEndian.Uint32(body[n:]) != binpkg.Lookup3Checksum(body[:n]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidSuperblock)
	}
	return sb, nil
}
