package filter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// Fletcher32Filter appends a Fletcher-32 checksum on encode and verifies
// and strips it on decode.
type Fletcher32Filter struct{}

func NewFletcher32(clientData []uint32) *Fletcher32Filter {
	return &Fletcher32Filter{}
}

func (f *Fletcher32Filter) ID() uint16 { return message.FilterFletcher32 }

func (f *Fletcher32Filter) Encode(input []byte) ([]byte, error) {
	out := append([]byte(nil), input...)
	return binary.LittleEndian.AppendUint32(out, binpkg.Fletcher32(input)), nil
}

func (f *Fletcher32Filter) Decode(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, errors.New("chunk shorter than its checksum")
	}
	data := input[:len(input)-4]
	stored := binary.LittleEndian.Uint32(input[len(input)-4:])
	computed := binpkg.Fletcher32(data)

	// Files from HDF5 1.6.0 to 1.6.2 store the checksum byte-swapped.
	if stored != computed && stored != bits.ReverseBytes32(computed) {
		return nil, fmt.Errorf("checksum mismatch: stored 0x%08x, computed 0x%08x", stored, computed)
	}
	return data, nil
}
