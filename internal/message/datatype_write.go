package message

import "math/bits"

// AppendBody encodes the datatype. Compound, enum and array types use
// version 3, everything else version 1.
func (m *Datatype) AppendBody(b []byte, s Sizes) []byte {
	version := uint8(1)
	switch m.Class {
	case ClassCompound, ClassEnum, ClassArray:
		version = 3
	}

	classBits := m.ClassBits
	switch m.Class {
	case ClassCompound:
		classBits = uint32(len(m.Members))
	case ClassEnum:
		classBits = uint32(len(m.EnumNames))
	}
	b = append(b, uint8(m.Class)|version<<4, byte(classBits), byte(classBits>>8), byte(classBits>>16))
	b = appendU32(b, m.Size)

	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		b = appendU16(b, m.BitOffset)
		b = appendU16(b, m.BitPrecision)

	case ClassFloatPoint:
		b = appendFloatProperties(b, m.Size)

	case ClassOpaque:
		tag := make([]byte, classBits&0xFF)
		copy(tag, m.Tag)
		b = append(b, tag...)

	case ClassCompound:
		offsetBytes := memberOffsetBytes(m.Size)
		for _, member := range m.Members {
			b = append(append(b, member.Name...), 0)
			b = appendUint(b, uint64(member.ByteOffset), offsetBytes)
			b = member.Type.AppendBody(b, s)
		}

	case ClassEnum:
		b = m.BaseType.AppendBody(b, s)
		for _, name := range m.EnumNames {
			b = append(append(b, name...), 0)
		}
		for _, v := range m.EnumValues {
			b = append(b, v...)
		}

	case ClassVarLen:
		b = m.VarLenType.AppendBody(b, s)

	case ClassArray:
		b = append(b, uint8(len(m.ArrayDims)))
		for _, dim := range m.ArrayDims {
			b = appendU32(b, dim)
		}
		b = m.BaseType.AppendBody(b, s)
	}
	return b
}

// appendFloatProperties writes the IEEE 754 bit layout for 4 and 8 byte
// floats.
func appendFloatProperties(b []byte, size uint32) []byte {
	switch size {
	case 4:
		b = append(b, 0, 0, 32, 0, 23, 8, 0, 23)
		return appendU32(b, 127)
	case 8:
		b = append(b, 0, 0, 64, 0, 52, 11, 0, 52)
		return appendU32(b, 1023)
	}
	return append(b, make([]byte, 12)...)
}

// memberOffsetBytes is the width of a member offset in a version 3
// compound: the fewest bytes that can hold the compound size.
func memberOffsetBytes(size uint32) int {
	if size == 0 {
		return 1
	}
	return (bits.Len32(size)-1)/8 + 1
}

// NewFixedPointDatatype returns an integer type of size bytes.
func NewFixedPointDatatype(size uint32, signed bool, order ByteOrder) *Datatype {
	classBits := uint32(order)
	if signed {
		classBits |= 0x08
	}
	return &Datatype{
		Class:        ClassFixedPoint,
		Version:      1,
		ClassBits:    classBits,
		Size:         size,
		ByteOrder:    order,
		Signed:       signed,
		BitPrecision: uint16(size * 8),
	}
}

// NewFloatDatatype returns an IEEE 754 float type of 4 or 8 bytes.
func NewFloatDatatype(size uint32, order ByteOrder) *Datatype {
	// Mantissa normalization "implied" in bits 4-5, sign bit position in
	// the second byte.
	classBits := uint32(order) | 0x20 | (size*8-1)<<8
	return &Datatype{
		Class:        ClassFloatPoint,
		Version:      1,
		ClassBits:    classBits,
		Size:         size,
		ByteOrder:    order,
		BitPrecision: uint16(size * 8),
	}
}

// NewStringDatatype returns a fixed-length string type.
func NewStringDatatype(size uint32, padding StringPadding, charset CharacterSet) *Datatype {
	return &Datatype{
		Class:         ClassString,
		Version:       1,
		ClassBits:     uint32(padding) | uint32(charset)<<4,
		Size:          size,
		StringPadding: padding,
		CharSet:       charset,
	}
}

// NewVarLenStringDatatype returns a variable-length string type. Elements
// are a length and a global heap ID, 4+offsetSize+4 bytes.
func NewVarLenStringDatatype(charset CharacterSet, offsetSize int) *Datatype {
	return &Datatype{
		Class:          ClassVarLen,
		Version:        1,
		ClassBits:      1 | uint32(PadNullTerm)<<4 | uint32(charset)<<8,
		Size:           uint32(4 + offsetSize + 4),
		VarLenType:     NewFixedPointDatatype(1, false, OrderLE),
		IsVarLenString: true,
		CharSet:        charset,
	}
}

// NewVarLenSequenceDatatype returns a variable-length sequence of base.
func NewVarLenSequenceDatatype(base *Datatype, offsetSize int) *Datatype {
	return &Datatype{
		Class:      ClassVarLen,
		Version:    1,
		Size:       uint32(4 + offsetSize + 4),
		VarLenType: base,
	}
}

// NewObjectReferenceDatatype returns the type of object references, which
// are file addresses of offsetSize bytes.
func NewObjectReferenceDatatype(offsetSize int) *Datatype {
	return &Datatype{
		Class:         ClassReference,
		Version:       1,
		Size:          uint32(offsetSize),
		ReferenceKind: RefObject,
	}
}

// NewArrayDatatype returns a fixed-size array of base.
func NewArrayDatatype(dims []uint32, base *Datatype) *Datatype {
	n := uint32(1)
	for _, d := range dims {
		n *= d
	}
	return &Datatype{
		Class:     ClassArray,
		Version:   3,
		Size:      n * base.Size,
		ArrayDims: dims,
		BaseType:  base,
	}
}

// NewEnumDatatype returns an enum over base. values[i] is the encoded
// value named names[i].
func NewEnumDatatype(base *Datatype, names []string, values [][]byte) *Datatype {
	return &Datatype{
		Class:      ClassEnum,
		Version:    3,
		Size:       base.Size,
		ByteOrder:  base.ByteOrder,
		Signed:     base.Signed,
		BaseType:   base,
		EnumNames:  names,
		EnumValues: values,
	}
}

// NewCompoundDatatype returns a compound of size bytes.
func NewCompoundDatatype(size uint32, members []CompoundMember) *Datatype {
	return &Datatype{
		Class:   ClassCompound,
		Version: 3,
		Size:    size,
		Members: members,
	}
}
