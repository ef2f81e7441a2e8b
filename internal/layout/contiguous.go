package layout

import (
	"fmt"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// Contiguous is data stored in one block of the file.
type Contiguous struct {
	src    Source
	reader *binpkg.Reader
}

func NewContiguous(src Source, r *binpkg.Reader) *Contiguous {
	return &Contiguous{src: src, reader: r}
}

func (c *Contiguous) Class() message.LayoutClass { return message.LayoutContiguous }

// Read reads the block. A block that was never allocated reads as fill.
func (c *Contiguous) Read() ([]byte, error) {
	size := c.src.dataSize()
	addr := c.src.Layout.Address
	if c.reader.IsUndefinedOffset(addr) {
		return c.src.filled(size), nil
	}
	if stored := c.src.Layout.Size; stored != 0 && stored < size {
		return nil, fmt.Errorf("%w: contiguous block of %d bytes, dataset needs %d", ErrCorrupt, stored, size)
	}
	if size == 0 {
		return []byte{}, nil
	}

	data, err := c.reader.At(int64(addr)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("reading contiguous data at %d: %w", addr, err)
	}
	return data, nil
}
