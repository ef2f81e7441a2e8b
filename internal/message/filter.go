package message

import "fmt"

// Filter identifiers.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSZIP        uint16 = 4
	FilterNBit        uint16 = 5
	FilterScaleOffset uint16 = 6
)

// FilterOptional marks a filter that may be skipped when it fails.
const FilterOptional = 0x0001

// FilterInfo is one stage of a filter pipeline.
type FilterInfo struct {
	ID         uint16
	Flags      uint16
	Name       string
	ClientData []uint32
}

func (f *FilterInfo) IsOptional() bool { return f.Flags&FilterOptional != 0 }

// FilterPipeline lists the filters applied, in order, to every chunk of a
// dataset.
type FilterPipeline struct {
	Version uint8
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

func parseFilterPipeline(d *decoder) (*FilterPipeline, error) {
	fp := &FilterPipeline{Version: d.u8()}
	n := int(d.u8())
	switch fp.Version {
	case 1:
		d.skip(6)
	case 2:
	default:
		return nil, fmt.Errorf("version %d", fp.Version)
	}

	fp.Filters = make([]FilterInfo, n)
	for i := range fp.Filters {
		f := &fp.Filters[i]
		f.ID = d.u16()

		var nameLen int
		if fp.Version == 1 || f.ID >= 256 {
			nameLen = int(d.u16())
		}
		f.Flags = d.u16()
		values := int(d.u16())
		if nameLen > 0 {
			// Version 1 pads the name to eight bytes.
			if fp.Version == 1 && nameLen%8 != 0 {
				nameLen += 8 - nameLen%8
			}
			f.Name = d.name(nameLen)
		}

		f.ClientData = make([]uint32, values)
		for j := range f.ClientData {
			f.ClientData[j] = d.u32()
		}
		if fp.Version == 1 && values%2 != 0 {
			d.skip(4)
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return fp, nil
}

// AppendBody encodes the pipeline as version 2. Only registered filters
// (IDs below 256) are written without names.
func (m *FilterPipeline) AppendBody(b []byte, s Sizes) []byte {
	b = append(b, 2, uint8(len(m.Filters)))
	for _, f := range m.Filters {
		b = appendU16(b, f.ID)
		if f.ID >= 256 {
			name := append([]byte(f.Name), 0)
			b = appendU16(b, uint16(len(name)))
			b = appendU16(b, f.Flags)
			b = appendU16(b, uint16(len(f.ClientData)))
			b = append(b, name...)
		} else {
			b = appendU16(b, f.Flags)
			b = appendU16(b, uint16(len(f.ClientData)))
		}
		for _, v := range f.ClientData {
			b = appendU32(b, v)
		}
	}
	return b
}
