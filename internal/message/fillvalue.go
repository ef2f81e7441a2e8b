package message

import "fmt"

// FillValue gives the value of elements that were never written.
type FillValue struct {
	Version   uint8
	AllocTime uint8
	WriteTime uint8
	Defined   bool
	// Value is nil when the library default, all zero bytes, applies.
	Value []byte
}

func (m *FillValue) Type() Type { return TypeFillValue }

func parseFillValue(d *decoder) (*FillValue, error) {
	fv := &FillValue{Version: d.u8()}
	switch fv.Version {
	case 1, 2:
		fv.AllocTime = d.u8()
		fv.WriteTime = d.u8()
		fv.Defined = d.u8() != 0
		if fv.Version == 2 && !fv.Defined {
			break
		}
		if size := int(d.u32()); size > 0 {
			fv.Value = d.copied(size)
		}
	case 3:
		flags := d.u8()
		fv.AllocTime = flags & 0x03
		fv.WriteTime = (flags >> 2) & 0x03
		fv.Defined = flags&0x10 == 0
		if flags&0x20 != 0 {
			fv.Value = d.copied(int(d.u32()))
		}
	default:
		return nil, fmt.Errorf("version %d", fv.Version)
	}
	if d.err != nil {
		return nil, d.err
	}
	return fv, nil
}

// AppendBody encodes the fill value as version 3.
func (m *FillValue) AppendBody(b []byte, s Sizes) []byte {
	flags := m.AllocTime&0x03 | (m.WriteTime&0x03)<<2
	if !m.Defined {
		flags |= 0x10
	}
	if m.Value != nil {
		flags |= 0x20
	}
	b = append(b, 3, flags)
	if m.Value != nil {
		b = appendU32(b, uint32(len(m.Value)))
		b = append(b, m.Value...)
	}
	return b
}

// NewFillValue returns a fill value message holding value, encoded as the
// dataset's datatype. Space is allocated incrementally and the value is
// written when it is set.
func NewFillValue(value []byte) *FillValue {
	return &FillValue{Version: 3, AllocTime: 3, WriteTime: 2, Defined: true, Value: value}
}

// parseFillValueOld decodes the pre-1.6 fill value message, which is
// only a size and a value.
func parseFillValueOld(d *decoder) (*FillValue, error) {
	fv := &FillValue{Defined: true}
	if size := int(d.u32()); size > 0 {
		fv.Value = d.copied(size)
	}
	if d.err != nil {
		return nil, d.err
	}
	return fv, nil
}
