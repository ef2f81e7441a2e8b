package btree

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/heap"
)

// GroupEntry is one member of an old-style group.
type GroupEntry struct {
	Name          string
	ObjectAddress uint64
	// SoftLinkValue is the target path of a soft link, empty for hard
	// links.
	SoftLinkValue string
}

func (e *GroupEntry) IsSoft() bool { return e.SoftLinkValue != "" }

const cacheSoftLink = 2

// ReadGroupEntries returns the members of the group whose B-tree is at
// address. Names are resolved through the group's local heap.
func ReadGroupEntries(r *binpkg.Reader, address uint64, names *heap.Local) ([]GroupEntry, error) {
	var entries []GroupEntry
	skipKey := func(nr *binpkg.Reader) error {
		_, err := nr.ReadLength()
		return err
	}
	err := walkV1(r, address, nodeGroup, -1, skipKey, func(snod uint64) error {
		found, err := readSymbolTableNode(r, snod, names)
		entries = append(entries, found...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

/*
Symbol table node:

	"SNOD", version (1), reserved, number of symbols (u16), entries

Each entry is a name offset (O), an object header address (O), a cache
type (u32), 4 reserved bytes and a 16-byte scratch pad. For soft links
the scratch pad starts with the heap offset of the link value.
*/
func readSymbolTableNode(r *binpkg.Reader, address uint64, names *heap.Local) ([]GroupEntry, error) {
	nr := r.At(int64(address))
	head, err := nr.ReadBytes(8)
	if err != nil {
		return nil, fmt.Errorf("%w: symbol table node at %d: %w", ErrInvalidNode, address, err)
	}
	if string(head[:4]) != "SNOD" || head[4] != 1 {
		return nil, fmt.Errorf("%w: bad symbol table node at %d", ErrInvalidNode, address)
	}
	count := int(binary.LittleEndian.Uint16(head[6:]))

	entrySize := 2*nr.OffsetSize() + 8 + 16
	block, err := nr.ReadBytes(count * entrySize)
	if err != nil {
		return nil, fmt.Errorf("%w: symbol table node at %d: %w", ErrInvalidNode, address, err)
	}
	er := r.Over(block)

	entries := make([]GroupEntry, 0, count)
	for i := 0; i < count; i++ {
		nameOffset, _ := er.ReadOffset()
		objAddr, _ := er.ReadOffset()
		cache, _ := er.ReadUint32()
		er.Skip(4)
		scratch, err := er.ReadBytes(16)
		if err != nil {
			return nil, err
		}

		e := GroupEntry{Name: names.Name(nameOffset), ObjectAddress: objAddr}
		if e.Name == "" {
			continue
		}
		if cache == cacheSoftLink {
			e.SoftLinkValue = names.Name(uint64(binary.LittleEndian.Uint32(scratch)))
			e.ObjectAddress = 0
		}
		entries = append(entries, e)
	}
	return entries, nil
}
