package object

import (
	"encoding/binary"
	"fmt"
	"math"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// MinGroupChunkSize is the chunk size the HDF5 library reserves for a new
// group header. Group headers are padded up to it with a NIL message.
const MinGroupChunkSize = 120

// WriteHeader writes a version 2 object header holding msgs at the
// writer's position and returns its size.
func WriteHeader(w *binpkg.Writer, msgs []message.Encoder) (int64, error) {
	return WriteHeaderWithMinChunk(w, msgs, 0)
}

// WriteHeaderWithMinChunk is WriteHeader with chunk 0 padded to at least
// minChunkSize bytes.
func WriteHeaderWithMinChunk(w *binpkg.Writer, msgs []message.Encoder, minChunkSize int) (int64, error) {
	b, err := encodeHeader(msgs, message.SizesOf(w), minChunkSize)
	if err != nil {
		return 0, err
	}
	if err := w.WriteBytes(b); err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// HeaderSize returns the number of bytes WriteHeader would write.
func HeaderSize(w *binpkg.Writer, msgs []message.Encoder) int {
	return HeaderSizeWithMinChunk(w, msgs, 0)
}

func HeaderSizeWithMinChunk(w *binpkg.Writer, msgs []message.Encoder, minChunkSize int) int {
	b, err := encodeHeader(msgs, message.SizesOf(w), minChunkSize)
	if err != nil {
		return 0
	}
	return len(b)
}

func encodeHeader(msgs []message.Encoder, s message.Sizes, minChunkSize int) ([]byte, error) {
	var chunk []byte
	for _, m := range msgs {
		body := m.AppendBody(nil, s)
		if len(body) > math.MaxUint16 {
			return nil, fmt.Errorf("%s message of %d bytes does not fit in a header", m.Type(), len(body))
		}
		var flags uint8
		if _, ok := m.(*message.Shared); ok {
			flags = message.FlagShared
		}
		chunk = append(chunk, uint8(m.Type()))
		chunk = binary.LittleEndian.AppendUint16(chunk, uint16(len(body)))
		chunk = append(chunk, flags)
		chunk = append(chunk, body...)
	}

	switch pad := minChunkSize - len(chunk); {
	case pad >= 4:
		chunk = append(chunk, uint8(message.TypeNIL))
		chunk = binary.LittleEndian.AppendUint16(chunk, uint16(pad-4))
		chunk = append(chunk, 0)
		chunk = append(chunk, make([]byte, pad-4)...)
	case pad > 0:
		// Too short for a NIL message; readers treat it as a gap.
		chunk = append(chunk, make([]byte, pad)...)
	}

	code, width := sizeFieldWidth(uint64(len(chunk)))
	b := append([]byte(nil), signatureV2...)
	b = append(b, 2, code)
	for i := 0; i < width; i++ {
		b = append(b, byte(len(chunk)>>(8*i)))
	}
	b = append(b, chunk...)
	return binary.LittleEndian.AppendUint32(b, binpkg.Lookup3Checksum(b)), nil
}

// sizeFieldWidth returns the flag bits and byte width of the chunk 0 size
// field that can hold size.
func sizeFieldWidth(size uint64) (uint8, int) {
	switch {
	case size <= math.MaxUint8:
		return 0, 1
	case size <= math.MaxUint16:
		return 1, 2
	case size <= math.MaxUint32:
		return 2, 4
	}
	return 3, 8
}

// NewGroupHeader returns the messages of a new-style group with compact
// link storage.
func NewGroupHeader(links []*message.Link) []message.Encoder {
	msgs := []message.Encoder{message.NewLinkInfo(), message.NewGroupInfo()}
	for _, l := range links {
		msgs = append(msgs, l)
	}
	return msgs
}

// NewDatasetHeader returns the messages of a dataset. extra holds optional
// messages such as a fill value, a filter pipeline or attributes.
func NewDatasetHeader(ds *message.Dataspace, dt *message.Datatype, layout *message.DataLayout, extra ...message.Encoder) []message.Encoder {
	return append([]message.Encoder{ds, dt, layout}, extra...)
}
