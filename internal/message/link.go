package message

import (
	"bytes"
	"fmt"
)

// LinkType is the kind of a link message.
type LinkType uint8

const (
	LinkTypeHard     LinkType = 0
	LinkTypeSoft     LinkType = 1
	LinkTypeExternal LinkType = 64
)

// Link names a member of a group.
type Link struct {
	Version       uint8
	LinkType      LinkType
	CreationOrder uint64
	Name          string
	CharSet       CharacterSet

	ObjectAddress uint64
	SoftLinkValue string
	ExternalFile  string
	ExternalPath  string
}

func (m *Link) Type() Type { return TypeLink }

func (m *Link) IsHard() bool { return m.LinkType == LinkTypeHard }
func (m *Link) IsSoft() bool { return m.LinkType == LinkTypeSoft }
func (m *Link) IsExternal() bool { return m.LinkType == LinkTypeExternal }

const (
	linkOrderPresent   = 0x04
	linkTypePresent    = 0x08
	linkCharsetPresent = 0x10
)

func parseLink(d *decoder) (*Link, error) {
	l := &Link{Version: d.u8()}
	if l.Version != 1 {
		return nil, fmt.Errorf("version %d", l.Version)
	}
	flags := d.u8()
	if flags&linkTypePresent != 0 {
		l.LinkType = LinkType(d.u8())
	}
	if flags&linkOrderPresent != 0 {
		l.CreationOrder = d.u64()
	}
	if flags&linkCharsetPresent != 0 {
		l.CharSet = CharacterSet(d.u8())
	}
	l.Name = string(d.bytes(int(d.uint(1 << (flags & 0x03)))))

	switch l.LinkType {
	case LinkTypeHard:
		l.ObjectAddress = d.offset()
	case LinkTypeSoft:
		l.SoftLinkValue = string(d.bytes(int(d.u16())))
	case LinkTypeExternal:
		v := d.bytes(int(d.u16()))
		if d.err == nil {
			parts := bytes.SplitN(bytes.TrimRight(v[min(1, len(v)):], "\x00"), []byte{0}, 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("external link %q without object path", l.Name)
			}
			l.ExternalFile, l.ExternalPath = string(parts[0]), string(parts[1])
		}
	default:
		return nil, fmt.Errorf("link %q of type %d", l.Name, l.LinkType)
	}
	if d.err != nil {
		return nil, d.err
	}
	return l, nil
}

// AppendBody encodes the link. The type is omitted for hard links.
func (m *Link) AppendBody(b []byte, s Sizes) []byte {
	width := minBytes(uint64(len(m.Name)))
	flags := uint8(0)
	for w := width; w > 1; w >>= 1 {
		flags++
	}
	if m.LinkType != LinkTypeHard {
		flags |= linkTypePresent
	}
	if m.CharSet != CharsetASCII {
		flags |= linkCharsetPresent
	}

	b = append(b, 1, flags)
	if m.LinkType != LinkTypeHard {
		b = append(b, uint8(m.LinkType))
	}
	if m.CharSet != CharsetASCII {
		b = append(b, uint8(m.CharSet))
	}
	b = appendUint(b, uint64(len(m.Name)), width)
	b = append(b, m.Name...)

	switch m.LinkType {
	case LinkTypeHard:
		b = appendUint(b, m.ObjectAddress, s.Offset)
	case LinkTypeSoft:
		b = appendU16(b, uint16(len(m.SoftLinkValue)))
		b = append(b, m.SoftLinkValue...)
	case LinkTypeExternal:
		b = appendU16(b, uint16(1+len(m.ExternalFile)+1+len(m.ExternalPath)+1))
		b = append(b, 0)
		b = append(append(b, m.ExternalFile...), 0)
		b = append(append(b, m.ExternalPath...), 0)
	}
	return b
}

// NewHardLink links name to the object header at address.
func NewHardLink(name string, address uint64) *Link {
	return &Link{Version: 1, LinkType: LinkTypeHard, Name: name, ObjectAddress: address}
}

// NewSoftLink links name to an absolute path in the same file.
func NewSoftLink(name, target string) *Link {
	return &Link{Version: 1, LinkType: LinkTypeSoft, Name: name, SoftLinkValue: target}
}

// LinkInfo describes how a new-style group stores its links. Links live in
// link messages while FractalHeapAddress is undefined.
type LinkInfo struct {
	Version              uint8
	Flags                uint8
	MaxCreationIndex     uint64
	FractalHeapAddress   uint64
	NameIndexAddress     uint64
	CreationOrderAddress uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

func parseLinkInfo(d *decoder) (*LinkInfo, error) {
	li := &LinkInfo{Version: d.u8(), Flags: d.u8()}
	if li.Version != 0 {
		return nil, fmt.Errorf("version %d", li.Version)
	}
	if li.Flags&0x01 != 0 {
		li.MaxCreationIndex = d.u64()
	}
	li.FractalHeapAddress = d.offset()
	li.NameIndexAddress = d.offset()
	if li.Flags&0x02 != 0 {
		li.CreationOrderAddress = d.offset()
	}
	if d.err != nil {
		return nil, d.err
	}
	return li, nil
}

func (m *LinkInfo) AppendBody(b []byte, s Sizes) []byte {
	b = append(b, 0, m.Flags)
	if m.Flags&0x01 != 0 {
		b = appendUint(b, m.MaxCreationIndex, 8)
	}
	b = appendUint(b, m.FractalHeapAddress, s.Offset)
	b = appendUint(b, m.NameIndexAddress, s.Offset)
	if m.Flags&0x02 != 0 {
		b = appendUint(b, m.CreationOrderAddress, s.Offset)
	}
	return b
}

// NewLinkInfo returns the link info of a group with compact link storage.
func NewLinkInfo() *LinkInfo {
	return &LinkInfo{FractalHeapAddress: undefined, NameIndexAddress: undefined}
}

// undefined is the all-ones address; appendUint truncates it to the
// file's offset width.
const undefined = ^uint64(0)

// GroupInfo carries a new-style group's storage hints. Only the empty
// form is written.
type GroupInfo struct{}

func (m *GroupInfo) Type() Type { return TypeGroupInfo }

func (m *GroupInfo) AppendBody(b []byte, s Sizes) []byte {
	return append(b, 0, 0)
}

func NewGroupInfo() *GroupInfo { return &GroupInfo{} }

// SymbolTable points an old-style group at its B-tree and local heap.
type SymbolTable struct {
	BTreeAddress     uint64
	LocalHeapAddress uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

func parseSymbolTable(d *decoder) (*SymbolTable, error) {
	st := &SymbolTable{BTreeAddress: d.offset(), LocalHeapAddress: d.offset()}
	if d.err != nil {
		return nil, d.err
	}
	return st, nil
}
