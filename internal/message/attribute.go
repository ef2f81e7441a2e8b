package message

import "fmt"

// Attribute is a named value attached to a group or dataset.
type Attribute struct {
	Version   uint8
	Name      string
	CharSet   CharacterSet
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte

	// SharedType is set instead of Datatype when the attribute refers to
	// a committed datatype.
	SharedType *Shared
}

func (m *Attribute) Type() Type { return TypeAttribute }

const (
	attrSharedType  = 0x01
	attrSharedSpace = 0x02
)

func parseAttribute(d *decoder) (*Attribute, error) {
	a := &Attribute{Version: d.u8()}
	flags := d.u8()
	nameSize := int(d.u16())
	typeSize := int(d.u16())
	spaceSize := int(d.u16())

	switch a.Version {
	case 1:
		flags = 0
	case 2:
	case 3:
		a.CharSet = CharacterSet(d.u8())
	default:
		return nil, fmt.Errorf("version %d", a.Version)
	}
	if flags&attrSharedSpace != 0 {
		return nil, fmt.Errorf("shared dataspace in attribute")
	}

	// Version 1 pads each part to eight bytes.
	padded := func(n int) int {
		if a.Version == 1 && n%8 != 0 {
			return n + 8 - n%8
		}
		return n
	}

	a.Name = d.name(padded(nameSize))
	td := d.sub(padded(typeSize))
	sd := d.sub(padded(spaceSize))
	if d.err != nil {
		return nil, d.err
	}

	var err error
	if flags&attrSharedType != 0 {
		a.SharedType, err = parseShared(TypeDatatype, td)
	} else {
		a.Datatype, err = parseDatatype(td)
	}
	if err != nil {
		return nil, fmt.Errorf("attribute %q datatype: %w", a.Name, err)
	}
	if a.Dataspace, err = parseDataspace(sd); err != nil {
		return nil, fmt.Errorf("attribute %q dataspace: %w", a.Name, err)
	}

	a.Data = d.copied(d.remaining())
	return a, d.err
}

// AppendBody encodes the attribute as version 3. SharedType, when set, is
// written in place of Datatype.
func (m *Attribute) AppendBody(b []byte, s Sizes) []byte {
	var dt []byte
	var flags uint8
	if m.SharedType != nil {
		dt = m.SharedType.AppendBody(nil, s)
		flags = attrSharedType
	} else {
		dt = m.Datatype.AppendBody(nil, s)
	}
	ds := m.Dataspace.AppendBody(nil, s)
	b = append(b, 3, flags)
	b = appendU16(b, uint16(len(m.Name)+1))
	b = appendU16(b, uint16(len(dt)))
	b = appendU16(b, uint16(len(ds)))
	b = append(b, uint8(m.CharSet))
	b = append(append(b, m.Name...), 0)
	b = append(b, dt...)
	b = append(b, ds...)
	return append(b, m.Data...)
}

// NewAttribute returns an attribute holding data, already encoded as dt.
func NewAttribute(name string, dt *Datatype, ds *Dataspace, data []byte) *Attribute {
	return &Attribute{
		Version:   3,
		Name:      name,
		Datatype:  dt,
		Dataspace: ds,
		Data:      data,
	}
}

// AttributeInfo says where an object keeps attributes that do not fit in
// its header. FractalHeapAddress is undefined for compact storage.
type AttributeInfo struct {
	Version              uint8
	Flags                uint8
	MaxCreationIndex     uint16
	FractalHeapAddress   uint64
	NameIndexAddress     uint64
	CreationOrderAddress uint64
}

func (m *AttributeInfo) Type() Type { return TypeAttributeInfo }

func parseAttributeInfo(d *decoder) (*AttributeInfo, error) {
	ai := &AttributeInfo{Version: d.u8(), Flags: d.u8()}
	if ai.Version != 0 {
		return nil, fmt.Errorf("version %d", ai.Version)
	}
	if ai.Flags&0x01 != 0 {
		ai.MaxCreationIndex = d.u16()
	}
	ai.FractalHeapAddress = d.offset()
	ai.NameIndexAddress = d.offset()
	if ai.Flags&0x02 != 0 {
		ai.CreationOrderAddress = d.offset()
	}
	if d.err != nil {
		return nil, d.err
	}
	return ai, nil
}
