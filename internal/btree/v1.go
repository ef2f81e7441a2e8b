package btree

import (
	"errors"
	"fmt"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
)

// ErrInvalidNode is returned for a node with a bad signature, version or
// shape.
var ErrInvalidNode = errors.New("invalid B-tree node")

const (
	nodeGroup = 0
	nodeChunk = 1
)

// v1Node is a version 1 node with its reader left at the first key.
type v1Node struct {
	level   int
	entries int
	r       *binpkg.Reader
}

func readV1Node(r *binpkg.Reader, address uint64, nodeType uint8) (*v1Node, error) {
	nr := r.At(int64(address))
	head, err := nr.ReadBytes(8)
	if err != nil {
		return nil, fmt.Errorf("%w at %d: %w", ErrInvalidNode, address, err)
	}
	if string(head[:4]) != "TREE" {
		return nil, fmt.Errorf("%w at %d: signature %q", ErrInvalidNode, address, head[:4])
	}
	if head[4] != nodeType {
		return nil, fmt.Errorf("%w at %d: node type %d, want %d", ErrInvalidNode, address, head[4], nodeType)
	}
	// Left and right siblings.
	nr.Skip(2 * int64(nr.OffsetSize()))

	return &v1Node{
		level:   int(head[5]),
		entries: int(head[6]) | int(head[7])<<8,
		r:       nr,
	}, nil
}

// walkV1 visits the children of every leaf under the node at address, in
// key order. key reads and discards one key.
func walkV1(r *binpkg.Reader, address uint64, nodeType uint8, level int, key func(*binpkg.Reader) error, leaf func(child uint64) error) error {
	n, err := readV1Node(r, address, nodeType)
	if err != nil {
		return err
	}
	if level >= 0 && n.level != level {
		return fmt.Errorf("%w at %d: level %d, want %d", ErrInvalidNode, address, n.level, level)
	}
	for i := 0; i < n.entries; i++ {
		if err := key(n.r); err != nil {
			return err
		}
		child, err := n.r.ReadOffset()
		if err != nil {
			return err
		}
		if n.level == 0 {
			err = leaf(child)
		} else {
			err = walkV1(r, child, nodeType, n.level-1, key, leaf)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
