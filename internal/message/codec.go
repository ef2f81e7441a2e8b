package message

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-hashdiff/internal/binary"
)

var errTruncated = errors.New("body truncated")

// decoder walks a little-endian message body. The first failure sticks in
// err and later reads return zero values, so a parser checks err once.
type decoder struct {
	buf        []byte
	pos        int
	offsetSize int
	lengthSize int
	err        error
}

func newDecoder(data []byte, r *binary.Reader) *decoder {
	return &decoder{buf: data, offsetSize: r.OffsetSize(), lengthSize: r.LengthSize()}
}

// sub returns a decoder over the next n bytes and advances past them.
func (d *decoder) sub(n int) *decoder {
	b := d.bytes(n)
	return &decoder{buf: b, offsetSize: d.offsetSize, lengthSize: d.lengthSize, err: d.err}
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf)-d.pos {
		d.err = errTruncated
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) uint(n int) uint64 {
	var v uint64
	b := d.bytes(n)
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (d *decoder) u8() uint8 { return uint8(d.uint(1)) }
func (d *decoder) u16() uint16 { return uint16(d.uint(2)) }
func (d *decoder) u32() uint32 { return uint32(d.uint(4)) }
func (d *decoder) u64() uint64 { return d.uint(8) }
func (d *decoder) offset() uint64 { return d.uint(d.offsetSize) }
func (d *decoder) length() uint64 { return d.uint(d.lengthSize) }
func (d *decoder) skip(n int) { d.bytes(n) }
func (d *decoder) remaining() int { return len(d.buf) - d.pos }

// align skips to the next multiple of n from the start of the body.
func (d *decoder) align(n int) {
	if r := d.pos % n; r != 0 {
		d.skip(n - r)
	}
}

// cstring reads a NUL-terminated string and consumes the terminator.
func (d *decoder) cstring() string {
	if d.err != nil {
		return ""
	}
	i := bytes.IndexByte(d.buf[d.pos:], 0)
	if i < 0 {
		d.err = errTruncated
		return ""
	}
	s := string(d.buf[d.pos : d.pos+i])
	d.pos += i + 1
	return s
}

// name reads an n-byte field holding a string, dropping NUL padding.
func (d *decoder) name(n int) string {
	b := d.bytes(n)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// copied returns a copy of the next n bytes, detached from the header
// buffer.
func (d *decoder) copied(n int) []byte {
	b := d.bytes(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Sizes carries the file's address and length widths into encoders.
type Sizes struct {
	Offset int
	Length int
}

// SizesOf returns the widths a writer was configured with.
func SizesOf(w *binary.Writer) Sizes {
	return Sizes{Offset: w.OffsetSize(), Length: w.LengthSize()}
}

// Encoder is implemented by messages that can be written to a header.
type Encoder interface {
	Message
	// AppendBody appends the encoded message body to b.
	AppendBody(b []byte, s Sizes) []byte
}

// EncodedSize returns the length of m's body.
func EncodedSize(m Encoder, s Sizes) int {
	return len(m.AppendBody(nil, s))
}

func appendUint(b []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

func appendU16(b []byte, v uint16) []byte { return appendUint(b, uint64(v), 2) }
func appendU32(b []byte, v uint32) []byte { return appendUint(b, uint64(v), 4) }

// minBytes returns the smallest of 1, 2, 4 or 8 bytes that holds v.
func minBytes(v uint64) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFFFF:
		return 4
	}
	return 8
}
