package filter

import (
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// Shuffle regroups the bytes of fixed-size elements: the first byte of
// every element, then the second, and so on. Client data holds the element
// size. Bytes past the last whole element are left in place.
type Shuffle struct {
	elemSize int
}

func NewShuffle(clientData []uint32) *Shuffle {
	elemSize := 1
	if len(clientData) > 0 && clientData[0] > 0 {
		elemSize = int(clientData[0])
	}
	return &Shuffle{elemSize: elemSize}
}

func (f *Shuffle) ID() uint16 { return message.FilterShuffle }

func (f *Shuffle) Encode(input []byte) ([]byte, error) {
	return f.transpose(input, true), nil
}

func (f *Shuffle) Decode(input []byte) ([]byte, error) {
	return f.transpose(input, false), nil
}

func (f *Shuffle) transpose(input []byte, shuffle bool) []byte {
	n := len(input) / f.elemSize
	if f.elemSize <= 1 || n <= 1 {
		return input
	}
	output := make([]byte, len(input))
	for i := 0; i < n; i++ {
		for j := 0; j < f.elemSize; j++ {
			elem, plane := i*f.elemSize+j, j*n+i
			if shuffle {
				output[plane] = input[elem]
			} else {
				output[elem] = input[plane]
			}
		}
	}
	copy(output[n*f.elemSize:], input[n*f.elemSize:])
	return output
}
