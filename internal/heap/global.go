package heap

import (
	"fmt"

	"github.com/robert-malhotra/go-hashdiff/internal/binary"
)

// ID locates one object in a global heap collection.
type ID struct {
	Collection uint64
	Index      uint32
}

// IDSize is the encoded size of an ID.
func IDSize(offsetSize int) int {
	return offsetSize + 4
}

// ParseID decodes an ID: the collection address followed by a 4-byte
// object index.
func ParseID(b []byte, offsetSize int) (ID, error) {
	if len(b) < IDSize(offsetSize) {
		return ID{}, fmt.Errorf("global heap ID: need %d bytes, have %d", IDSize(offsetSize), len(b))
	}
	var id ID
	for i := offsetSize - 1; i >= 0; i-- {
		id.Collection = id.Collection<<8 | uint64(b[i])
	}
	for i := 3; i >= 0; i-- {
		id.Index = id.Index<<8 | uint32(b[offsetSize+i])
	}
	return id, nil
}

// Append encodes id onto b.
func (id ID) Append(b []byte, offsetSize int) []byte {
	for i := 0; i < offsetSize; i++ {
		b = append(b, byte(id.Collection>>(8*i)))
	}
	return append(b, byte(id.Index), byte(id.Index>>8), byte(id.Index>>16), byte(id.Index>>24))
}

// IsNull reports whether id references nothing.
func (id ID) IsNull() bool {
	return id.Collection == 0
}

// objectHeader is index (2), reference count (2), reserved (4) before the
// length-sized object size.
const objectHeader = 8

// Collection is a parsed global heap collection.
type Collection struct {
	objects map[uint16][]byte
}

// ReadCollection reads the collection at address.
//
//	"GCOL", version 1, reserved (3), collection size (L)
//	objects, each padded to 8 bytes, until index 0 or the size runs out
func ReadCollection(r *binary.Reader, address uint64) (*Collection, error) {
	if address == 0 || r.IsUndefinedOffset(address) {
		return nil, fmt.Errorf("global heap: invalid address %#x", address)
	}
	hr := r.At(int64(address))
	head, err := hr.ReadBytes(8)
	if err != nil {
		return nil, fmt.Errorf("reading global heap: %w", err)
	}
	if string(head[:4]) != "GCOL" {
		return nil, fmt.Errorf("global heap at %#x: bad signature %q", address, head[:4])
	}
	if head[4] != 1 {
		return nil, fmt.Errorf("global heap at %#x: unsupported version %d", address, head[4])
	}
	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}

	c := &Collection{objects: make(map[uint16][]byte)}
	end := int64(address) + int64(size)
	for hr.Pos()+objectHeader+int64(hr.LengthSize()) <= end {
		index, err := hr.ReadUint16()
		if err != nil {
			return nil, err
		}
		if index == 0 {
			break
		}
		hr.Skip(6)
		n, err := hr.ReadLength()
		if err != nil {
			return nil, err
		}
		if hr.Pos()+int64(n) > end {
			return nil, fmt.Errorf("global heap at %#x: object %d overruns the collection", address, index)
		}
		data, err := hr.ReadBytes(int(n))
		if err != nil {
			return nil, err
		}
		c.objects[index] = data
		hr.Skip(int64(pad8(int(n)) - int(n)))
	}
	return c, nil
}

// Object returns the object stored under index.
func (c *Collection) Object(index uint16) ([]byte, error) {
	data, ok := c.objects[index]
	if !ok {
		return nil, fmt.Errorf("global heap: no object %d", index)
	}
	return data, nil
}

// Resolver reads heap objects by ID, parsing each collection once.
type Resolver struct {
	r    *binary.Reader
	cols map[uint64]*Collection
}

// NewResolver returns a Resolver reading through r.
func NewResolver(r *binary.Reader) *Resolver {
	return &Resolver{r: r, cols: make(map[uint64]*Collection)}
}

// Object returns the bytes id refers to. The result must not be modified.
func (res *Resolver) Object(id ID) ([]byte, error) {
	c, ok := res.cols[id.Collection]
	if !ok {
		var err error
		if c, err = ReadCollection(res.r, id.Collection); err != nil {
			return nil, err
		}
		res.cols[id.Collection] = c
	}
	return c.Object(uint16(id.Index))
}
