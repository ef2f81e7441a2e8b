package message

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-hashdiff/internal/binary"
)

// Type is the header message type number.
type Type uint16

const (
	TypeNIL                      Type = 0x0000
	TypeDataspace                Type = 0x0001
	TypeLinkInfo                 Type = 0x0002
	TypeDatatype                 Type = 0x0003
	TypeFillValueOld             Type = 0x0004
	TypeFillValue                Type = 0x0005
	TypeLink                     Type = 0x0006
	TypeExternalDataFiles        Type = 0x0007
	TypeDataLayout               Type = 0x0008
	TypeGroupInfo                Type = 0x000A
	TypeFilterPipeline           Type = 0x000B
	TypeAttribute                Type = 0x000C
	TypeObjectComment            Type = 0x000D
	TypeObjectModTime            Type = 0x000E
	TypeObjectHeaderContinuation Type = 0x0010
	TypeSymbolTable              Type = 0x0011
	TypeObjectModTimeOld         Type = 0x0012
	TypeAttributeInfo            Type = 0x0015
	TypeObjectRefCount           Type = 0x0016
)

var typeNames = map[Type]string{
	TypeDataspace:                "dataspace",
	TypeLinkInfo:                 "link info",
	TypeDatatype:                 "datatype",
	TypeFillValueOld:             "old fill value",
	TypeFillValue:                "fill value",
	TypeLink:                     "link",
	TypeExternalDataFiles:        "external data files",
	TypeDataLayout:               "data layout",
	TypeGroupInfo:                "group info",
	TypeFilterPipeline:           "filter pipeline",
	TypeAttribute:                "attribute",
	TypeObjectHeaderContinuation: "continuation",
	TypeSymbolTable:              "symbol table",
	TypeAttributeInfo:            "attribute info",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type 0x%04x", uint16(t))
}

// Header message flags.
const (
	FlagConstant = 0x01
	FlagShared   = 0x02
)

// ErrMalformed is returned for a message body that cannot be decoded.
var ErrMalformed = errors.New("malformed header message")

// Message is implemented by every decoded header message.
type Message interface {
	Type() Type
}

// Parse decodes the body of a header message. Shared messages decode to
// *Shared; the caller resolves them.
func Parse(typ Type, data []byte, flags uint8, r *binary.Reader) (Message, error) {
	parse, ok := parsers[typ]
	if flags&FlagShared != 0 {
		parse, ok = func(d *decoder) (Message, error) { return parseShared(typ, d) }, true
	}
	if !ok {
		return &Unknown{typ: typ, data: data}, nil
	}
	m, err := parse(newDecoder(data, r))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, typ, err)
	}
	return m, nil
}

var parsers = map[Type]func(*decoder) (Message, error){
	TypeDataspace:                decodeWith(parseDataspace),
	TypeDatatype:                 decodeWith(parseDatatype),
	TypeDataLayout:               decodeWith(parseDataLayout),
	TypeFilterPipeline:           decodeWith(parseFilterPipeline),
	TypeFillValue:                decodeWith(parseFillValue),
	TypeFillValueOld:             decodeWith(parseFillValueOld),
	TypeAttribute:                decodeWith(parseAttribute),
	TypeLink:                     decodeWith(parseLink),
	TypeLinkInfo:                 decodeWith(parseLinkInfo),
	TypeAttributeInfo:            decodeWith(parseAttributeInfo),
	TypeSymbolTable:              decodeWith(parseSymbolTable),
	TypeObjectHeaderContinuation: decodeWith(parseContinuation),
}

// decodeWith adapts a typed parser. A failed parse yields a nil interface,
// never a typed nil.
func decodeWith[M Message](parse func(*decoder) (M, error)) func(*decoder) (Message, error) {
	return func(d *decoder) (Message, error) {
		m, err := parse(d)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Unknown holds a message this package does not decode.
type Unknown struct {
	typ  Type
	data []byte
}

func (m *Unknown) Type() Type   { return m.typ }
func (m *Unknown) Data() []byte { return m.data }

// Continuation points at the next block of header messages.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeObjectHeaderContinuation }

func parseContinuation(d *decoder) (*Continuation, error) {
	c := &Continuation{Offset: d.offset(), Length: d.length()}
	return c, d.err
}

// ParseContinuation decodes a continuation message body.
func ParseContinuation(data []byte, r *binary.Reader) (*Continuation, error) {
	c, err := parseContinuation(newDecoder(data, r))
	if err != nil {
		return nil, fmt.Errorf("%w: continuation: %w", ErrMalformed, err)
	}
	return c, nil
}

// Shared stands in for a message stored once and referenced from several
// headers. Address is the object header that holds the real message.
type Shared struct {
	Of      Type
	Version uint8
	Address uint64
}

func (m *Shared) Type() Type { return m.Of }

const (
	sharedInHeap   = 1
	sharedInObject = 2
)

func parseShared(typ Type, d *decoder) (*Shared, error) {
	s := &Shared{Of: typ, Version: d.u8()}
	kind := d.u8()
	switch s.Version {
	case 1:
		d.skip(6)
	case 2:
	case 3:
		if kind == sharedInHeap {
			return nil, fmt.Errorf("shared message in the shared message heap")
		}
		if kind != sharedInObject {
			return nil, fmt.Errorf("shared message kind %d", kind)
		}
	default:
		return nil, fmt.Errorf("shared message version %d", s.Version)
	}
	s.Address = d.offset()
	return s, d.err
}

// AppendBody encodes a version 3 reference to a message in another object
// header. The header writer sets FlagShared for it.
func (m *Shared) AppendBody(b []byte, s Sizes) []byte {
	b = append(b, 3, sharedInObject)
	return appendUint(b, m.Address, s.Offset)
}

// NewSharedDatatype refers to the datatype committed at address.
func NewSharedDatatype(address uint64) *Shared {
	return &Shared{Of: TypeDatatype, Version: 3, Address: address}
}
