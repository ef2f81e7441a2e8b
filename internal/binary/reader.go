package binary

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Config fixes the byte order and field widths of one file.
type Config struct {
	ByteOrder  binary.ByteOrder
	OffsetSize int // 2, 4 or 8
	LengthSize int // 2, 4 or 8
}

// DefaultConfig is the layout assumed before a superblock has been read:
// little-endian with 8-byte offsets and lengths.
func DefaultConfig() Config {
	return Config{ByteOrder: binary.LittleEndian, OffsetSize: 8, LengthSize: 8}
}

// allOnes is the value with the low size bytes set, which HDF5 uses for an
// undefined address or length.
func allOnes(size int) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(size)) - 1
}

// uintOf decodes a size-byte unsigned integer. Widths other than 1, 2, 4
// and 8 are read little-endian.
func uintOf(order binary.ByteOrder, b []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	case 8:
		return order.Uint64(b)
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Reader is a cursor over an io.ReaderAt.
type Reader struct {
	src io.ReaderAt
	cfg Config
	pos int64
}

// NewReader returns a Reader at offset 0.
func NewReader(src io.ReaderAt, cfg Config) *Reader {
	return &Reader{src: src, cfg: cfg}
}

// At returns a Reader over the same source positioned at offset.
func (r *Reader) At(offset int64) *Reader {
	return &Reader{src: r.src, cfg: r.cfg, pos: offset}
}

// Over returns a Reader over b with the same configuration as r, for
// decoding a block already read into memory.
func (r *Reader) Over(b []byte) *Reader {
	return &Reader{src: bytes.NewReader(b), cfg: r.cfg}
}

func (r *Reader) Pos() int64 { return r.pos }
func (r *Reader) OffsetSize() int { return r.cfg.OffsetSize }
func (r *Reader) LengthSize() int { return r.cfg.LengthSize }
func (r *Reader) ByteOrder() binary.ByteOrder { return r.cfg.ByteOrder }

// Skip moves the cursor n bytes forward.
func (r *Reader) Skip(n int64) { r.pos += n }

// Align moves the cursor to the next multiple of alignment.
func (r *Reader) Align(alignment int64) {
	if alignment > 1 {
		r.pos += (alignment - r.pos%alignment) % alignment
	}
}

// Peek returns the next n bytes without consuming them.
func (r *Reader) Peek(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := r.src.ReadAt(buf, r.pos); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadBytes consumes exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf, err := r.Peek(n)
	if err != nil {
		return nil, err
	}
	r.pos += int64(len(buf))
	return buf, nil
}

// ReadUintN consumes an n-byte unsigned integer.
func (r *Reader) ReadUintN(n int) (uint64, error) {
	buf, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return uintOf(r.cfg.ByteOrder, buf, n), nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	v, err := r.ReadUintN(1)
	return uint8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.ReadUintN(2)
	return uint16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.ReadUintN(4)
	return uint32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	return r.ReadUintN(8)
}

// ReadOffset consumes a file address.
func (r *Reader) ReadOffset() (uint64, error) {
	return r.ReadUintN(r.cfg.OffsetSize)
}

// ReadLength consumes a length field.
func (r *Reader) ReadLength() (uint64, error) {
	return r.ReadUintN(r.cfg.LengthSize)
}

// IsUndefinedOffset reports whether offset is the all-ones address that
// marks "no object".
func (r *Reader) IsUndefinedOffset(offset uint64) bool {
	return offset == allOnes(r.cfg.OffsetSize)
}
