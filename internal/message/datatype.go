package message

import "fmt"

// DatatypeClass is the class of an HDF5 datatype.
type DatatypeClass uint8

const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloatPoint DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

var classNames = [...]string{
	"integer", "float", "time", "string", "bitfield", "opaque",
	"compound", "reference", "enum", "variable-length", "array",
}

func (c DatatypeClass) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class %d", uint8(c))
}

// ByteOrder is the byte order of numeric elements.
type ByteOrder uint8

const (
	OrderLE  ByteOrder = 0
	OrderBE  ByteOrder = 1
	OrderVAX ByteOrder = 2
)

// StringPadding says how a fixed-length string fills its element.
type StringPadding uint8

const (
	PadNullTerm StringPadding = 0
	PadNullPad  StringPadding = 1
	PadSpacePad StringPadding = 2
)

// CharacterSet is the encoding of string elements.
type CharacterSet uint8

const (
	CharsetASCII CharacterSet = 0
	CharsetUTF8  CharacterSet = 1
)

// Reference kinds.
const (
	RefObject = 0
	RefRegion = 1
)

// Datatype describes the elements of a dataset or attribute.
type Datatype struct {
	Class     DatatypeClass
	Version   uint8
	ClassBits uint32
	Size      uint32

	// Integers, floats and bitfields.
	ByteOrder    ByteOrder
	Signed       bool
	BitOffset    uint16
	BitPrecision uint16

	// Strings, including variable-length ones.
	StringPadding StringPadding
	CharSet       CharacterSet

	Members []CompoundMember

	// Arrays and enums are built on BaseType.
	ArrayDims []uint32
	BaseType  *Datatype

	// EnumNames[i] is the name of the value stored in EnumValues[i].
	EnumNames  []string
	EnumValues [][]byte

	VarLenType     *Datatype
	IsVarLenString bool

	Tag           string
	ReferenceKind uint8
}

// CompoundMember is one field of a compound datatype.
type CompoundMember struct {
	Name       string
	ByteOffset uint32
	Type       *Datatype
}

func (m *Datatype) Type() Type { return TypeDatatype }

// IsString reports whether elements are strings, fixed or variable length.
func (m *Datatype) IsString() bool {
	return m.Class == ClassString || (m.Class == ClassVarLen && m.IsVarLenString)
}

func parseDatatype(d *decoder) (*Datatype, error) {
	dt := readDatatype(d)
	if d.err != nil {
		return nil, d.err
	}
	return dt, nil
}

// readDatatype decodes one datatype, recursing into member and base types.
func readDatatype(d *decoder) *Datatype {
	head := d.u8()
	bits := d.uint(3)
	dt := &Datatype{
		Class:     DatatypeClass(head & 0x0F),
		Version:   head >> 4,
		ClassBits: uint32(bits),
		Size:      d.u32(),
	}
	if d.err != nil {
		return nil
	}
	if dt.Version < 1 || dt.Version > 4 {
		d.fail("datatype version %d", dt.Version)
		return nil
	}

	switch dt.Class {
	case ClassFixedPoint, ClassBitfield:
		dt.ByteOrder = ByteOrder(bits & 0x01)
		dt.Signed = dt.Class == ClassFixedPoint && bits&0x08 != 0
		dt.BitOffset = d.u16()
		dt.BitPrecision = d.u16()

	case ClassFloatPoint:
		dt.ByteOrder = ByteOrder(bits & 0x01)
		if bits&0x40 != 0 {
			dt.ByteOrder = OrderVAX
		}
		dt.BitOffset = d.u16()
		dt.BitPrecision = d.u16()
		d.skip(8)

	case ClassTime:
		dt.ByteOrder = ByteOrder(bits & 0x01)
		dt.BitPrecision = d.u16()

	case ClassString:
		dt.StringPadding = StringPadding(bits & 0x0F)
		dt.CharSet = CharacterSet((bits >> 4) & 0x0F)

	case ClassOpaque:
		dt.Tag = d.name(int(bits & 0xFF))

	case ClassCompound:
		readMembers(d, dt, int(bits&0xFFFF))

	case ClassReference:
		dt.ReferenceKind = uint8(bits & 0x0F)

	case ClassEnum:
		readEnum(d, dt, int(bits&0xFFFF))

	case ClassVarLen:
		dt.IsVarLenString = bits&0x0F == 1
		dt.StringPadding = StringPadding((bits >> 4) & 0x0F)
		dt.CharSet = CharacterSet((bits >> 8) & 0x0F)
		dt.VarLenType = readDatatype(d)

	case ClassArray:
		ndims := int(d.u8())
		if dt.Version < 3 {
			d.skip(3)
		}
		dt.ArrayDims = make([]uint32, ndims)
		for i := range dt.ArrayDims {
			dt.ArrayDims[i] = d.u32()
		}
		if dt.Version < 3 {
			d.skip(4 * ndims)
		}
		dt.BaseType = readDatatype(d)

	default:
		d.fail("datatype class %d", dt.Class)
	}
	return dt
}

// readMembers decodes the fields of a compound datatype. Versions 1 and 2
// pad names to eight bytes; version 1 also carries array dimensions per
// member.
func readMembers(d *decoder, dt *Datatype, n int) {
	offsetBytes := memberOffsetBytes(dt.Size)
	dt.Members = make([]CompoundMember, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		var m CompoundMember
		m.Name = readName(d, dt.Version)

		if dt.Version >= 3 {
			m.ByteOffset = uint32(d.uint(offsetBytes))
			m.Type = readDatatype(d)
			dt.Members = append(dt.Members, m)
			continue
		}

		m.ByteOffset = d.u32()
		var dims []uint32
		if dt.Version == 1 {
			rank := int(d.u8())
			d.skip(3 + 4 + 4)
			all := make([]uint32, 4)
			for j := range all {
				all[j] = d.u32()
			}
			if rank > 4 {
				d.fail("compound member %q of rank %d", m.Name, rank)
				return
			}
			dims = all[:rank]
		}
		m.Type = readDatatype(d)
		if len(dims) > 0 && m.Type != nil {
			m.Type = NewArrayDatatype(dims, m.Type)
		}
		dt.Members = append(dt.Members, m)
	}
}

func readEnum(d *decoder, dt *Datatype, n int) {
	dt.BaseType = readDatatype(d)
	if d.err != nil {
		return
	}
	dt.ByteOrder = dt.BaseType.ByteOrder
	dt.Signed = dt.BaseType.Signed
	dt.EnumNames = make([]string, n)
	for i := range dt.EnumNames {
		dt.EnumNames[i] = readName(d, dt.Version)
	}
	dt.EnumValues = make([][]byte, n)
	for i := range dt.EnumValues {
		dt.EnumValues[i] = d.copied(int(dt.BaseType.Size))
	}
}

// readName reads a NUL-terminated name, padded to a multiple of eight
// bytes before datatype version 3.
func readName(d *decoder, version uint8) string {
	start := d.pos
	s := d.cstring()
	if version < 3 {
		if n := (d.pos - start) % 8; n != 0 {
			d.skip(8 - n)
		}
	}
	return s
}
