package binary

import (
	"encoding/binary"
	"io"
)

// Writer is a cursor over an io.WriterAt.
type Writer struct {
	dst io.WriterAt
	cfg Config
	pos int64
}

// NewWriter returns a Writer at offset 0.
func NewWriter(dst io.WriterAt, cfg Config) *Writer {
	return &Writer{dst: dst, cfg: cfg}
}

// At returns a Writer over the same destination positioned at offset.
func (w *Writer) At(offset int64) *Writer {
	return &Writer{dst: w.dst, cfg: w.cfg, pos: offset}
}

func (w *Writer) Pos() int64 { return w.pos }
func (w *Writer) OffsetSize() int { return w.cfg.OffsetSize }
func (w *Writer) LengthSize() int { return w.cfg.LengthSize }
func (w *Writer) ByteOrder() binary.ByteOrder { return w.cfg.ByteOrder }

// Skip moves the cursor n bytes forward without writing.
func (w *Writer) Skip(n int64) { w.pos += n }

// Align moves the cursor to the next multiple of alignment without
// writing.
func (w *Writer) Align(alignment int64) {
	if alignment > 1 {
		w.pos += (alignment - w.pos%alignment) % alignment
	}
}

// WriteBytes writes data at the cursor.
func (w *Writer) WriteBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.dst.WriteAt(data, w.pos)
	w.pos += int64(n)
	return err
}

// WriteZeros writes n zero bytes.
func (w *Writer) WriteZeros(n int) error {
	if n <= 0 {
		return nil
	}
	return w.WriteBytes(make([]byte, n))
}

// WriteUintN writes v in n bytes. Widths other than 1, 2, 4 and 8 are
// written little-endian.
func (w *Writer) WriteUintN(v uint64, n int) error {
	buf := make([]byte, n)
	switch n {
	case 1:
		buf[0] = byte(v)
	case 2:
		w.cfg.ByteOrder.PutUint16(buf, uint16(v))
	case 4:
		w.cfg.ByteOrder.PutUint32(buf, uint32(v))
	case 8:
		w.cfg.ByteOrder.PutUint64(buf, v)
	default:
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
	}
	return w.WriteBytes(buf)
}

func (w *Writer) WriteUint8(v uint8) error { return w.WriteUintN(uint64(v), 1) }
func (w *Writer) WriteUint16(v uint16) error { return w.WriteUintN(uint64(v), 2) }
func (w *Writer) WriteUint32(v uint32) error { return w.WriteUintN(uint64(v), 4) }
func (w *Writer) WriteUint64(v uint64) error { return w.WriteUintN(v, 8) }

// WriteOffset writes a file address.
func (w *Writer) WriteOffset(v uint64) error {
	return w.WriteUintN(v, w.cfg.OffsetSize)
}

// WriteLength writes a length field.
func (w *Writer) WriteLength(v uint64) error {
	return w.WriteUintN(v, w.cfg.LengthSize)
}

// UndefinedOffset is the all-ones address for this file's offset width.
func (w *Writer) UndefinedOffset() uint64 {
	return allOnes(w.cfg.OffsetSize)
}

// seekWriterAt adapts an io.WriteSeeker, such as a billy.File, to
// io.WriterAt. It is not safe for concurrent use.
type seekWriterAt struct {
	ws io.WriteSeeker
}

// NewSeekableWriterAt returns an io.WriterAt that seeks ws before each
// write.
func NewSeekableWriterAt(ws io.WriteSeeker) io.WriterAt {
	return seekWriterAt{ws: ws}
}

func (s seekWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if _, err := s.ws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.ws.Write(p)
}
