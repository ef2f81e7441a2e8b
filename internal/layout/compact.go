package layout

import (
	"fmt"

	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// Compact is data stored in the object header.
type Compact struct {
	src Source
}

func NewCompact(src Source) *Compact { return &Compact{src: src} }

func (c *Compact) Class() message.LayoutClass { return message.LayoutCompact }

// Read returns a copy of the header's data.
func (c *Compact) Read() ([]byte, error) {
	data := c.src.Layout.CompactData
	want := c.src.dataSize()
	if uint64(len(data)) < want {
		return nil, fmt.Errorf("%w: compact data holds %d bytes, dataset needs %d", ErrCorrupt, len(data), want)
	}
	return append([]byte(nil), data[:want]...), nil
}
