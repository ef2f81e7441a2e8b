package object

import (
	"bytes"
	"encoding/binary"
	"fmt"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

/*
Version 2 object header:

	"OHDR", version (2), flags
	access, modification, change and birth times  (flag 0x20)
	max compact and min dense attribute counts    (flag 0x10)
	size of chunk 0, 1 << (flags & 0x03) bytes
	messages
	checksum

Each message is type u8, size u16, flags u8 and, with flag 0x04, a u16
creation order, then its body. A tail shorter than a message header is a
gap. Continuation blocks are "OCHK", messages, checksum.
*/

const (
	flagTrackOrder = 0x04
	flagPhase      = 0x10
	flagTimes      = 0x20
)

func readV2(r *binpkg.Reader, address uint64) (*Header, error) {
	fixed, err := readBlock(r, address, 6)
	if err != nil {
		return nil, err
	}
	if fixed[4] != 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, fixed[4])
	}
	flags := fixed[5]

	prefixSize := 6
	if flags&flagTimes != 0 {
		prefixSize += 16
	}
	if flags&flagPhase != 0 {
		prefixSize += 4
	}
	width := 1 << (flags & 0x03)
	prefixSize += width

	prefix, err := readBlock(r, address, uint64(prefixSize))
	if err != nil {
		return nil, err
	}
	var chunkSize uint64
	for i := width - 1; i >= 0; i-- {
		chunkSize = chunkSize<<8 | uint64(prefix[prefixSize-width+i])
	}
	if chunkSize > maxBlockSize {
		return nil, fmt.Errorf("%w: chunk of %d bytes", ErrInvalidHeader, chunkSize)
	}

	h := &Header{Version: 2, Address: address, Flags: flags}
	if flags&flagTimes != 0 {
		h.ModTime = binary.LittleEndian.Uint32(prefix[10:])
	}
	c := newCollector(r, h)

	chunk, err := readChecked(r, address, uint64(prefixSize)+chunkSize+4)
	if err != nil {
		return nil, err
	}
	if err := parseV2Block(c, chunk[prefixSize:], flags&flagTrackOrder != 0); err != nil {
		return nil, err
	}

	for {
		cont, ok := c.next()
		if !ok {
			return h, nil
		}
		block, err := readChecked(r, cont.Offset, cont.Length)
		if err != nil {
			return nil, err
		}
		if !bytes.HasPrefix(block, signatureContinuation) {
			return nil, fmt.Errorf("%w: bad continuation signature at %d", ErrInvalidHeader, cont.Offset)
		}
		if err := parseV2Block(c, block[len(signatureContinuation):], flags&flagTrackOrder != 0); err != nil {
			return nil, err
		}
	}
}

// readChecked reads a block that ends in a lookup3 checksum of everything
// before it and returns the block without the checksum.
func readChecked(r *binpkg.Reader, address, size uint64) ([]byte, error) {
	if size < 8 {
		return nil, fmt.Errorf("%w: block of %d bytes at %d", ErrInvalidHeader, size, address)
	}
	b, err := readBlock(r, address, size)
	if err != nil {
		return nil, err
	}
	body, sum := b[:len(b)-4], binary.LittleEndian.Uint32(b[len(b)-4:])
	if binpkg.Lookup3Checksum(body) != sum {
		return nil, fmt.Errorf("%w: block at %d", ErrChecksumMismatch, address)
	}
	return body, nil
}

func parseV2Block(c *collector, block []byte, trackOrder bool) error {
	headerSize := 4
	if trackOrder {
		headerSize += 2
	}
	for pos := 0; len(block)-pos >= headerSize; {
		typ := message.Type(block[pos])
		size := int(binary.LittleEndian.Uint16(block[pos+1:]))
		flags := block[pos+3]
		pos += headerSize
		if size > len(block)-pos {
			return fmt.Errorf("%w: %s message of %d bytes overruns its block", ErrInvalidHeader, typ, size)
		}
		if err := c.add(typ, flags, block[pos:pos+size]); err != nil {
			return err
		}
		pos += size
	}
	return nil
}
