package object

import (
	"errors"
	"fmt"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

var (
	signatureV2           = []byte("OHDR")
	signatureContinuation = []byte("OCHK")
)

var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksumMismatch   = errors.New("object header checksum mismatch")
)

const (
	// Limits on what a corrupt header can make the reader do.
	maxBlockSize = 1 << 26

	maxBlocks      = 1024
	maxSharedDepth = 8
)

// Header is a decoded object header.
type Header struct {
	Version  uint8
	Address  uint64
	Flags    uint8
	RefCount uint32
	ModTime  uint32

	// Messages holds every non-NIL message in file order, with continuation
	// blocks followed and shared messages replaced by their targets.
	Messages []message.Message
}

// Read decodes the object header at address.
func Read(r *binpkg.Reader, address uint64) (*Header, error) {
	h, err := read(r, address)
	if err == nil {
		err = h.resolveShared(r, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}
	return h, nil
}

func read(r *binpkg.Reader, address uint64) (*Header, error) {
	peek, err := r.At(int64(address)).Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	switch {
	case string(peek) == string(signatureV2):
		return readV2(r, address)
	case peek[0] == 1:
		return readV1(r, address)
	}
	return nil, fmt.Errorf("%w: no header signature or version", ErrInvalidHeader)
}

// collector gathers messages across the header's blocks.
type collector struct {
	r       *binpkg.Reader
	h       *Header
	pending []*message.Continuation
	seen    map[uint64]bool
}

func newCollector(r *binpkg.Reader, h *Header) *collector {
	return &collector{r: r, h: h, seen: make(map[uint64]bool)}
}

func (c *collector) add(typ message.Type, flags uint8, data []byte) error {
	switch typ {
	case message.TypeNIL:
		return nil
	case message.TypeObjectHeaderContinuation:
		cont, err := message.ParseContinuation(data, c.r)
		if err != nil {
			return err
		}
		if c.seen[cont.Offset] || len(c.seen) >= maxBlocks {
			return fmt.Errorf("%w: continuation cycle at %d", ErrInvalidHeader, cont.Offset)
		}
		c.seen[cont.Offset] = true
		c.pending = append(c.pending, cont)
		return nil
	}
	msg, err := message.Parse(typ, data, flags, c.r)
	if err != nil {
		return err
	}
	c.h.Messages = append(c.h.Messages, msg)
	return nil
}

// next pops the next continuation block to read.
func (c *collector) next() (*message.Continuation, bool) {
	if len(c.pending) == 0 {
		return nil, false
	}
	cont := c.pending[0]
	c.pending = c.pending[1:]
	return cont, true
}

func readBlock(r *binpkg.Reader, address, size uint64) ([]byte, error) {
	if size > maxBlockSize {
		return nil, fmt.Errorf("%w: block of %d bytes", ErrInvalidHeader, size)
	}
	b, err := r.At(int64(address)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: block at %d: %w", ErrInvalidHeader, address, err)
	}
	return b, nil
}

// resolveShared replaces shared messages, including the shared datatypes of
// attributes, with the messages they point at.
func (h *Header) resolveShared(r *binpkg.Reader, depth int) error {
	for i, msg := range h.Messages {
		switch m := msg.(type) {
		case *message.Shared:
			target, err := sharedTarget(r, m, depth)
			if err != nil {
				return err
			}
			h.Messages[i] = target
		case *message.Attribute:
			if m.SharedType == nil {
				continue
			}
			target, err := sharedTarget(r, m.SharedType, depth)
			if err != nil {
				return fmt.Errorf("attribute %q: %w", m.Name, err)
			}
			dt, ok := target.(*message.Datatype)
			if !ok {
				return fmt.Errorf("%w: attribute %q shares a %s", ErrInvalidHeader, m.Name, target.Type())
			}
			m.Datatype = dt
		}
	}
	return nil
}

func sharedTarget(r *binpkg.Reader, s *message.Shared, depth int) (message.Message, error) {
	if depth >= maxSharedDepth {
		return nil, fmt.Errorf("%w: shared %s chain too deep", ErrInvalidHeader, s.Of)
	}
	owner, err := read(r, s.Address)
	if err != nil {
		return nil, fmt.Errorf("shared %s at %d: %w", s.Of, s.Address, err)
	}
	if err := owner.resolveShared(r, depth+1); err != nil {
		return nil, err
	}
	msg := owner.GetMessage(s.Of)
	if msg == nil {
		return nil, fmt.Errorf("%w: object at %d holds no %s", ErrInvalidHeader, s.Address, s.Of)
	}
	return msg, nil
}

// GetMessage returns the first message of type typ, or nil.
func (h *Header) GetMessage(typ message.Type) message.Message {
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			return msg
		}
	}
	return nil
}

// GetMessages returns all messages of type typ.
func (h *Header) GetMessages(typ message.Type) []message.Message {
	var result []message.Message
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			result = append(result, msg)
		}
	}
	return result
}

func first[M message.Message](h *Header, typ message.Type) M {
	m, _ := h.GetMessage(typ).(M)
	return m
}

func all[M message.Message](h *Header, typ message.Type) []M {
	var result []M
	for _, msg := range h.Messages {
		if m, ok := msg.(M); ok && msg.Type() == typ {
			result = append(result, m)
		}
	}
	return result
}

func (h *Header) Dataspace() *message.Dataspace {
	return first[*message.Dataspace](h, message.TypeDataspace)
}

func (h *Header) Datatype() *message.Datatype {
	return first[*message.Datatype](h, message.TypeDatatype)
}

func (h *Header) DataLayout() *message.DataLayout {
	return first[*message.DataLayout](h, message.TypeDataLayout)
}

func (h *Header) FilterPipeline() *message.FilterPipeline {
	return first[*message.FilterPipeline](h, message.TypeFilterPipeline)
}

func (h *Header) LinkInfo() *message.LinkInfo {
	return first[*message.LinkInfo](h, message.TypeLinkInfo)
}

func (h *Header) AttributeInfo() *message.AttributeInfo {
	return first[*message.AttributeInfo](h, message.TypeAttributeInfo)
}

func (h *Header) SymbolTable() *message.SymbolTable {
	return first[*message.SymbolTable](h, message.TypeSymbolTable)
}

// FillValue returns the fill value message, preferring the current form
// over the pre-1.6 one when a header carries both.
func (h *Header) FillValue() *message.FillValue {
	var found *message.FillValue
	for _, fv := range all[*message.FillValue](h, message.TypeFillValue) {
		if found == nil || fv.Version > found.Version {
			found = fv
		}
	}
	return found
}

func (h *Header) Links() []*message.Link {
	return all[*message.Link](h, message.TypeLink)
}

func (h *Header) Attributes() []*message.Attribute {
	return all[*message.Attribute](h, message.TypeAttribute)
}

// IsDataset reports whether the header describes a dataset. Committed
// datatypes carry a datatype but no dataspace.
func (h *Header) IsDataset() bool {
	return h.Dataspace() != nil && h.DataLayout() != nil
}
