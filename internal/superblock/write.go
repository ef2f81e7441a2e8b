package superblock

import (
	"encoding/binary"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
)

// Size returns the encoded size of a version 2 or 3 superblock.
func (sb *Superblock) Size() int {
	return len(Signature) + 4 + 4*int(sb.OffsetSize) + 4
}

// Write encodes sb as a version 2 or 3 superblock at w's cursor. A zero
// ExtensionAddress is written as undefined.
func (sb *Superblock) Write(w *binpkg.Writer) (int64, error) {
	version := max(sb.Version, 2)
	osize := int(sb.OffsetSize)

	buf := make([]byte, 0, sb.Size())
	buf = append(buf, Signature...)
	buf = append(buf, version, sb.OffsetSize, sb.LengthSize, sb.Flags)

	ext := sb.ExtensionAddress
	if ext == 0 {
		ext = w.UndefinedOffset()
	}
	for _, addr := range []uint64{sb.BaseAddress, ext, sb.EOFAddress, sb.RootGroupAddress} {
		buf = appendUint(buf, addr, osize)
	}
	buf = binary.LittleEndian.AppendUint32(buf, binpkg.Lookup3Checksum(buf))

	if err := w.WriteBytes(buf); err != nil {
		return 0, err
	}
	return int64(len(buf)), nil
}

func appendUint(b []byte, v uint64, size int) []byte {
	for i := 0; i < size; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}
