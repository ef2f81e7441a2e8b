package object

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

/*
Version 1 object header:

	0   1  version (1)
	1   1  reserved
	2   2  number of messages
	4   4  reference count
	8   4  size of the first message block
	12  4  padding to 8 bytes
	16     messages

Each message is an 8-byte header (type u16, size u16, flags u8, 3 reserved)
followed by its body, padded to a multiple of eight bytes. Continuation
blocks hold messages only.
*/

const v1PrefixSize = 16

func readV1(r *binpkg.Reader, address uint64) (*Header, error) {
	prefix, err := readBlock(r, address, v1PrefixSize)
	if err != nil {
		return nil, err
	}
	if prefix[0] != 1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, prefix[0])
	}

	h := &Header{
		Version:  1,
		Address:  address,
		RefCount: binary.LittleEndian.Uint32(prefix[4:]),
	}
	c := newCollector(r, h)

	size := uint64(binary.LittleEndian.Uint32(prefix[8:]))
	addr := address + v1PrefixSize
	for {
		block, err := readBlock(r, addr, size)
		if err != nil {
			return nil, err
		}
		if err := parseV1Block(c, block); err != nil {
			return nil, err
		}
		cont, ok := c.next()
		if !ok {
			return h, nil
		}
		addr, size = cont.Offset, cont.Length
	}
}

func parseV1Block(c *collector, block []byte) error {
	for pos := 0; len(block)-pos >= 8; {
		typ := message.Type(binary.LittleEndian.Uint16(block[pos:]))
		size := int(binary.LittleEndian.Uint16(block[pos+2:]))
		flags := block[pos+4]
		pos += 8
		if size > len(block)-pos {
			return fmt.Errorf("%w: %s message of %d bytes overruns its block", ErrInvalidHeader, typ, size)
		}
		if err := c.add(typ, flags, block[pos:pos+size]); err != nil {
			return err
		}
		pos += (size + 7) &^ 7
	}
	return nil
}
