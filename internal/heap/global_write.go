package heap

import (
	"github.com/robert-malhotra/go-hashdiff/internal/binary"
)

// minCollection is the smallest collection size the HDF5 library accepts.
const minCollection = 4096

// Builder accumulates objects for one global heap collection.
type Builder struct {
	objects [][]byte
}

// Add queues data and returns its 1-based object index.
func (b *Builder) Add(data []byte) uint32 {
	b.objects = append(b.objects, data)
	return uint32(len(b.objects))
}

// Len returns the number of queued objects.
func (b *Builder) Len() int { return len(b.objects) }

// Write allocates and writes the collection, returning its address. An
// empty Builder writes nothing and returns 0.
func (b *Builder) Write(w *binary.Writer, allocate func(size int64) uint64) (uint64, error) {
	if len(b.objects) == 0 {
		return 0, nil
	}

	ls := w.LengthSize()
	size := 8 + ls
	for _, obj := range b.objects {
		size += objectHeader + ls + pad8(len(obj))
	}
	// Free space marker: index 0 plus its header.
	size += objectHeader + ls
	size = max(pad8(size), minCollection)

	addr := allocate(int64(size))
	cw := w.At(int64(addr))
	if err := cw.WriteBytes([]byte{'G', 'C', 'O', 'L', 1, 0, 0, 0}); err != nil {
		return 0, err
	}
	if err := cw.WriteLength(uint64(size)); err != nil {
		return 0, err
	}
	for i, obj := range b.objects {
		if err := cw.WriteUint16(uint16(i + 1)); err != nil {
			return 0, err
		}
		if err := cw.WriteUint16(1); err != nil {
			return 0, err
		}
		if err := cw.WriteZeros(4); err != nil {
			return 0, err
		}
		if err := cw.WriteLength(uint64(len(obj))); err != nil {
			return 0, err
		}
		if err := cw.WriteBytes(obj); err != nil {
			return 0, err
		}
		if err := cw.WriteZeros(pad8(len(obj)) - len(obj)); err != nil {
			return 0, err
		}
	}

	// The free space object spans the rest of the collection, its size
	// counting its own header.
	free := int64(addr) + int64(size) - cw.Pos()
	if err := cw.WriteZeros(objectHeader); err != nil {
		return 0, err
	}
	if err := cw.WriteLength(uint64(free)); err != nil {
		return 0, err
	}
	return addr, cw.WriteZeros(int(int64(addr) + int64(size) - cw.Pos()))
}

func pad8(n int) int {
	return (n + 7) &^ 7
}
