package geotiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

const (
	magicClassic = 42
	magicBig     = 43

	// maxFieldSize bounds the out-of-line data of a single field.
	maxFieldSize = 1 << 28
)

// field is one IFD entry with its value bytes in file byte order.
type field struct {
	Tag   uint16
	Type  uint16
	Count uint64
	data  []byte
}

// ifd is a parsed image file directory.
type ifd struct {
	order  binary.ByteOrder
	fields map[uint16]*field
}

// readHeader checks the byte-order mark and magic number, and returns a
// reader configured for the file plus the offset of the first IFD.
func readHeader(ra io.ReaderAt) (*binpkg.Reader, uint64, error) {
	var mark [4]byte
	if _, err := ra.ReadAt(mark[:], 0); err != nil {
		return nil, 0, fmt.Errorf("%w: reading header: %v", structure.ErrUnreadable, err)
	}

	var order binary.ByteOrder
	switch string(mark[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, 0, fmt.Errorf("%w: no TIFF byte-order mark", structure.ErrUnreadable)
	}

	cfg := binpkg.Config{ByteOrder: order, OffsetSize: 4, LengthSize: 4}
	switch order.Uint16(mark[2:]) {
	case magicClassic:
	case magicBig:
		cfg.OffsetSize, cfg.LengthSize = 8, 8
	default:
		return nil, 0, fmt.Errorf("%w: bad TIFF magic number", structure.ErrUnreadable)
	}

	r := binpkg.NewReader(ra, cfg).At(4)
	if cfg.OffsetSize == 8 {
		size, err := r.ReadUint16()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: reading BigTIFF header: %v", structure.ErrUnreadable, err)
		}
		if size != 8 {
			return nil, 0, fmt.Errorf("%w: BigTIFF offset size %d", structure.ErrUnreadable, size)
		}
		r.Skip(2)
	}
	off, err := r.ReadOffset()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading first IFD offset: %v", structure.ErrUnreadable, err)
	}
	return r, off, nil
}

// readIFD parses the directory at off. Values that do not fit in the entry
// are fetched from their offsets.
func readIFD(r *binpkg.Reader, off uint64) (*ifd, error) {
	big := r.OffsetSize() == 8
	inline := 4
	if big {
		inline = 8
	}

	d := r.At(int64(off))
	var count uint64
	var err error
	if big {
		count, err = d.ReadUint64()
	} else {
		var c uint16
		c, err = d.ReadUint16()
		count = uint64(c)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading IFD at %d: %v", structure.ErrUnreadable, off, err)
	}

	dir := &ifd{order: r.ByteOrder(), fields: make(map[uint16]*field, count)}
	for i := uint64(0); i < count; i++ {
		f := &field{}
		if f.Tag, err = d.ReadUint16(); err != nil {
			return nil, fmt.Errorf("%w: reading IFD entry: %v", structure.ErrUnreadable, err)
		}
		if f.Type, err = d.ReadUint16(); err != nil {
			return nil, fmt.Errorf("%w: reading IFD entry: %v", structure.ErrUnreadable, err)
		}
		if f.Count, err = d.ReadLength(); err != nil {
			return nil, fmt.Errorf("%w: reading IFD entry: %v", structure.ErrUnreadable, err)
		}
		value, err := d.ReadBytes(inline)
		if err != nil {
			return nil, fmt.Errorf("%w: reading IFD entry: %v", structure.ErrUnreadable, err)
		}

		size, ok := typeSizes[f.Type]
		if !ok {
			// Unknown types are skipped, as readers are required to.
			continue
		}
		if f.Count > maxFieldSize/uint64(size) {
			return nil, fmt.Errorf("%w: tag %d holds %d values", structure.ErrUnreadable, f.Tag, f.Count)
		}
		n := int(f.Count) * size
		if n <= inline {
			f.data = value[:n]
		} else {
			at := r.At(int64(decodeOffset(r.ByteOrder(), value)))
			if f.data, err = at.ReadBytes(n); err != nil {
				return nil, fmt.Errorf("%w: reading tag %d: %v", structure.ErrUnreadable, f.Tag, err)
			}
		}
		dir.fields[f.Tag] = f
	}
	return dir, nil
}

func decodeOffset(order binary.ByteOrder, b []byte) uint64 {
	if len(b) == 8 {
		return order.Uint64(b)
	}
	return uint64(order.Uint32(b))
}

// has reports whether tag is present.
func (d *ifd) has(tag uint16) bool {
	_, ok := d.fields[tag]
	return ok
}

// uints returns the values of an integer field.
func (d *ifd) uints(tag uint16) ([]uint64, bool) {
	f, ok := d.fields[tag]
	if !ok {
		return nil, false
	}
	size := typeSizes[f.Type]
	out := make([]uint64, 0, f.Count)
	for i := 0; i+size <= len(f.data); i += size {
		b := f.data[i : i+size]
		switch f.Type {
		case typeByte, typeUndefined:
			out = append(out, uint64(b[0]))
		case typeSByte:
			out = append(out, uint64(int8(b[0])))
		case typeShort:
			out = append(out, uint64(d.order.Uint16(b)))
		case typeSShort:
			out = append(out, uint64(int16(d.order.Uint16(b))))
		case typeLong, typeIFD:
			out = append(out, uint64(d.order.Uint32(b)))
		case typeSLong:
			out = append(out, uint64(int32(d.order.Uint32(b))))
		case typeLong8, typeIFD8, typeSLong8:
			out = append(out, d.order.Uint64(b))
		default:
			return nil, false
		}
	}
	return out, true
}

// uint returns the first value of an integer field, or def when absent.
func (d *ifd) uint(tag uint16, def uint64) uint64 {
	v, ok := d.uints(tag)
	if !ok || len(v) == 0 {
		return def
	}
	return v[0]
}

// floats returns the values of a numeric field as float64.
func (d *ifd) floats(tag uint16) ([]float64, bool) {
	f, ok := d.fields[tag]
	if !ok {
		return nil, false
	}
	size := typeSizes[f.Type]
	out := make([]float64, 0, f.Count)
	for i := 0; i+size <= len(f.data); i += size {
		b := f.data[i : i+size]
		switch f.Type {
		case typeDouble:
			out = append(out, math.Float64frombits(d.order.Uint64(b)))
		case typeFloat:
			out = append(out, float64(math.Float32frombits(d.order.Uint32(b))))
		case typeRational:
			out = append(out, float64(d.order.Uint32(b))/float64(d.order.Uint32(b[4:])))
		case typeSRational:
			out = append(out, float64(int32(d.order.Uint32(b)))/float64(int32(d.order.Uint32(b[4:]))))
		default:
			ints, ok := d.uints(tag)
			if !ok {
				return nil, false
			}
			out = out[:0]
			for _, v := range ints {
				if f.Type == typeSByte || f.Type == typeSShort || f.Type == typeSLong || f.Type == typeSLong8 {
					out = append(out, float64(int64(v)))
				} else {
					out = append(out, float64(v))
				}
			}
			return out, true
		}
	}
	return out, true
}

// ascii returns an ASCII field with trailing NULs removed.
func (d *ifd) ascii(tag uint16) (string, bool) {
	f, ok := d.fields[tag]
	if !ok || f.Type != typeASCII {
		return "", false
	}
	return strings.TrimRight(string(f.data), "\x00"), true
}
