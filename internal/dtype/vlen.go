package dtype

import (
	"encoding/binary"
	"fmt"

	"github.com/robert-malhotra/go-hashdiff/internal/heap"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// descriptorSize is the size of a variable-length element: a count and a
// global heap ID.
func (d *Decoder) descriptorSize() int {
	return 4 + heap.IDSize(d.offsetSize)
}

// Sequences resolves n variable-length descriptors and returns the stored
// bytes of each, cut to count elements of elemSize bytes. Null descriptors
// give a nil entry.
func (d *Decoder) Sequences(data []byte, n uint64, elemSize int) ([][]byte, error) {
	size := d.descriptorSize()
	if uint64(len(data)) < n*uint64(size) {
		return nil, fmt.Errorf("%d variable-length elements need %d bytes, have %d", n, n*uint64(size), len(data))
	}
	out := make([][]byte, n)
	for i := range out {
		desc := data[i*size : (i+1)*size]
		count := binary.LittleEndian.Uint32(desc)
		id, err := heap.ParseID(desc[4:], d.offsetSize)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if id.IsNull() || count == 0 {
			continue
		}
		if d.heap == nil {
			return nil, fmt.Errorf("element %d: variable-length data needs a file reader", i)
		}
		obj, err := d.heap.Object(id)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if want := int(count) * elemSize; want <= len(obj) {
			obj = obj[:want]
		} else if elemSize > 1 {
			return nil, fmt.Errorf("element %d: heap object holds %d bytes, need %d", i, len(obj), want)
		}
		out[i] = obj
	}
	return out, nil
}

func (d *Decoder) strings(data []byte, n uint64) ([]string, error) {
	seqs, err := d.Sequences(data, n, 1)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i, s := range seqs {
		out[i] = trimString(s, message.PadNullTerm)
	}
	return out, nil
}

func (d *Decoder) sequences(dt *message.Datatype, data []byte, n uint64) ([]any, error) {
	base := dt.VarLenType
	if base == nil || base.Size == 0 {
		return nil, fmt.Errorf("%w: sequence without a base type", ErrUnsupported)
	}
	seqs, err := d.Sequences(data, n, int(base.Size))
	if err != nil {
		return nil, err
	}
	out := make([]any, n)
	for i, s := range seqs {
		v, err := d.Values(base, s, uint64(len(s)/int(base.Size)))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// ObjectReferences decodes object references, each a little-endian file
// address of offsetSize bytes.
func ObjectReferences(data []byte, offsetSize int) []uint64 {
	if offsetSize <= 0 {
		return nil
	}
	return each(data[:len(data)/offsetSize*offsetSize], offsetSize, func(b []byte) uint64 {
		var v uint64
		for j := offsetSize - 1; j >= 0; j-- {
			v = v<<8 | uint64(b[j])
		}
		return v
	})
}

// Reference is the file address of the object an object reference points
// to. It is kept apart from uint64 so that readers can resolve it.
type Reference uint64

func references(data []byte, offsetSize int) []Reference {
	addrs := ObjectReferences(data, offsetSize)
	out := make([]Reference, len(addrs))
	for i, a := range addrs {
		out[i] = Reference(a)
	}
	return out
}
