package heap

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/go-hashdiff/internal/binary"
)

// Local is a local heap: a block of NUL-terminated strings addressed by
// offset.
type Local struct {
	data []byte
}

// ReadLocal reads the local heap at address.
//
//	"HEAP", version 0, reserved (3)
//	data segment size (L), free list head (L), data segment address (O)
func ReadLocal(r *binary.Reader, address uint64) (*Local, error) {
	hr := r.At(int64(address))
	head, err := hr.ReadBytes(8)
	if err != nil {
		return nil, fmt.Errorf("reading local heap: %w", err)
	}
	if string(head[:4]) != "HEAP" {
		return nil, fmt.Errorf("local heap at %#x: bad signature %q", address, head[:4])
	}
	if head[4] != 0 {
		return nil, fmt.Errorf("local heap at %#x: unsupported version %d", address, head[4])
	}

	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	hr.Skip(int64(hr.LengthSize()))
	dataAddr, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}

	data, err := r.At(int64(dataAddr)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("reading local heap data: %w", err)
	}
	return &Local{data: data}, nil
}

// Name returns the string starting at offset, or "" when offset is out of
// range.
func (h *Local) Name(offset uint64) string {
	if offset >= uint64(len(h.data)) {
		return ""
	}
	s := h.data[offset:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}
