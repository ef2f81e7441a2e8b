package message

import "fmt"

// DataspaceType distinguishes scalar, simple and null dataspaces.
type DataspaceType uint8

const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// Unlimited is the maximum size of a dimension that can grow without
// bound.
const Unlimited = ^uint64(0)

// Dataspace gives the shape of a dataset or attribute.
type Dataspace struct {
	Version    uint8
	Rank       int
	SpaceType  DataspaceType
	Dimensions []uint64
	// MaxDims is nil unless the file records maximum dimensions.
	MaxDims []uint64
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// NumElements returns the number of elements the dataspace holds.
func (m *Dataspace) NumElements() uint64 {
	switch m.SpaceType {
	case DataspaceScalar:
		return 1
	case DataspaceSimple:
		n := uint64(1)
		for _, d := range m.Dimensions {
			n *= d
		}
		return n
	}
	return 0
}

func (m *Dataspace) IsScalar() bool { return m.SpaceType == DataspaceScalar }
func (m *Dataspace) IsNull() bool { return m.SpaceType == DataspaceNull }

func parseDataspace(d *decoder) (*Dataspace, error) {
	ds := &Dataspace{Version: d.u8(), Rank: int(d.u8())}
	flags := d.u8()

	switch ds.Version {
	case 1:
		d.skip(5)
		ds.SpaceType = DataspaceSimple
		if ds.Rank == 0 {
			ds.SpaceType = DataspaceScalar
		}
	case 2:
		ds.SpaceType = DataspaceType(d.u8())
	default:
		return nil, fmt.Errorf("version %d", ds.Version)
	}
	if ds.SpaceType > DataspaceNull {
		return nil, fmt.Errorf("dataspace type %d", ds.SpaceType)
	}
	if ds.SpaceType != DataspaceSimple {
		ds.Rank = 0
		return ds, d.err
	}

	ds.Dimensions = make([]uint64, ds.Rank)
	for i := range ds.Dimensions {
		ds.Dimensions[i] = d.length()
	}
	if flags&0x01 != 0 {
		ds.MaxDims = make([]uint64, ds.Rank)
		all := uint64(1)<<(8*uint(d.lengthSize)) - 1
		if d.lengthSize >= 8 {
			all = Unlimited
		}
		for i := range ds.MaxDims {
			if ds.MaxDims[i] = d.length(); ds.MaxDims[i] == all {
				ds.MaxDims[i] = Unlimited
			}
		}
	}
	return ds, d.err
}

// AppendBody encodes the dataspace as version 2.
func (m *Dataspace) AppendBody(b []byte, s Sizes) []byte {
	var flags uint8
	if len(m.MaxDims) > 0 {
		flags = 0x01
	}
	b = append(b, 2, uint8(m.Rank), flags, uint8(m.SpaceType))
	for _, dim := range m.Dimensions {
		b = appendUint(b, dim, s.Length)
	}
	for _, dim := range m.MaxDims {
		// Truncating Unlimited leaves all ones at any width.
		b = appendUint(b, dim, s.Length)
	}
	return b
}

// NewDataspace returns a simple dataspace. maxDims may be nil; a zero or
// Unlimited entry makes that dimension unlimited.
func NewDataspace(dims, maxDims []uint64) *Dataspace {
	if maxDims != nil {
		maxDims = append([]uint64(nil), maxDims...)
		for i, m := range maxDims {
			if m == 0 {
				maxDims[i] = Unlimited
			}
		}
	}
	return &Dataspace{
		Version:    2,
		Rank:       len(dims),
		SpaceType:  DataspaceSimple,
		Dimensions: dims,
		MaxDims:    maxDims,
	}
}

// NewScalarDataspace returns the dataspace of a single element.
func NewScalarDataspace() *Dataspace {
	return &Dataspace{Version: 2, SpaceType: DataspaceScalar}
}
