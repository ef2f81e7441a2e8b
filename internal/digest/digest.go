// Package digest turns canonical byte streams into hex-encoded SHA-256
// digests.
package digest

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/minio/sha256-simd"
)

// HexLen is the length of a digest string.
const HexLen = 2 * sha256.Size

// Tag identifies the channel a part was produced by.
type Tag byte

const (
	TagMetadata   Tag = 'M'
	TagDimensions Tag = 'D'
	TagArray      Tag = 'A'
)

// Part is one tagged input to Sum.
type Part struct {
	Tag  Tag
	Data []byte
}

// Metadata, Dimensions and Array build parts with the matching tag.
func Metadata(b []byte) Part   { return Part{Tag: TagMetadata, Data: b} }
func Dimensions(b []byte) Part { return Part{Tag: TagDimensions, Data: b} }
func Array(b []byte) Part      { return Part{Tag: TagArray, Data: b} }

// Sum hashes parts in order. Each part is written as its tag, its length
// as a little-endian uint64, then its data, so distinct part lists never
// produce the same stream.
func Sum(parts ...Part) string {
	h := sha256.New()
	var hdr [9]byte
	for _, p := range parts {
		hdr[0] = byte(p.Tag)
		binary.LittleEndian.PutUint64(hdr[1:], uint64(len(p.Data)))
		h.Write(hdr[:])
		h.Write(p.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SumBytes hashes b directly.
func SumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
