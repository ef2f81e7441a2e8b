package layout

import (
	"encoding/binary"
	"errors"
	"fmt"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

var (
	// ErrCorrupt is returned when stored data disagrees with the dataset's
	// shape or an index structure is damaged.
	ErrCorrupt = errors.New("corrupt dataset storage")
	// ErrUnsupported is returned for layouts and indexes this package
	// cannot read.
	ErrUnsupported = errors.New("unsupported dataset storage")
)

// Layout reads a dataset's raw elements.
type Layout interface {
	// Read returns every element in row-major order, in the file's
	// encoding of the datatype.
	Read() ([]byte, error)
	Class() message.LayoutClass
}

// Source is what a layout needs from a dataset's object header. Filters and
// Fill may be nil.
type Source struct {
	Layout    *message.DataLayout
	Dataspace *message.Dataspace
	Datatype  *message.Datatype
	Filters   *message.FilterPipeline
	Fill      *message.FillValue
}

// New returns the reader for src's layout class.
func New(src Source, r *binpkg.Reader) (Layout, error) {
	if src.Layout == nil || src.Dataspace == nil || src.Datatype == nil {
		return nil, fmt.Errorf("%w: dataset without layout, dataspace or datatype", ErrCorrupt)
	}

	switch src.Layout.Class {
	case message.LayoutCompact:
		return NewCompact(src), nil
	case message.LayoutContiguous:
		return NewContiguous(src, r), nil
	case message.LayoutChunked:
		return NewChunked(src, r)
	}
	return nil, fmt.Errorf("%w: layout class %d", ErrUnsupported, src.Layout.Class)
}

func (s Source) elementSize() uint64 { return uint64(s.Datatype.Size) }

func (s Source) dataSize() uint64 { return s.Dataspace.NumElements() * s.elementSize() }

// filled returns n bytes of the fill value. Without a defined value the
// bytes are zero.
func (s Source) filled(n uint64) []byte {
	out := make([]byte, n)
	if s.Fill == nil || !s.Fill.Defined || len(s.Fill.Value) == 0 {
		return out
	}
	v := s.Fill.Value
	for i := 0; i+len(v) <= len(out); i += len(v) {
		copy(out[i:], v)
	}
	return out
}

// strides returns the byte stride of each dimension of a row-major array
// of shape with elements of size bytes.
func strides(shape []uint64, size uint64) []uint64 {
	s := make([]uint64, len(shape))
	acc := size
	for d := len(shape) - 1; d >= 0; d-- {
		s[d] = acc
		acc *= shape[d]
	}
	return s
}

func product(v []uint64) uint64 {
	n := uint64(1)
	for _, x := range v {
		n *= x
	}
	return n
}

func ceilDiv(a, b uint64) uint64 { return (a + b - 1) / b }

// checked verifies the lookup3 checksum in the last four bytes of block.
func checked(block []byte, what string, addr uint64) error {
	n := len(block) - 4
	if n < 0 || binpkg.Lookup3Checksum(block[:n]) != binary.LittleEndian.Uint32(block[n:]) {
		return fmt.Errorf("%w: %s at %d fails its checksum", ErrCorrupt, what, addr)
	}
	return nil
}

func checksummed(b []byte) []byte {
	return binary.LittleEndian.AppendUint32(b, binpkg.Lookup3Checksum(b))
}
