// Package structure defines the format-neutral view of a scientific data
// file that every reader produces: a flat sequence of nodes addressed by
// slash-separated paths.
package structure

import (
	"errors"
	"path"
	"strings"
)

var (
	// ErrUnreadable is returned when a file cannot be parsed as the format
	// its reader expects.
	ErrUnreadable = errors.New("file is not readable as the expected format")

	// ErrMissingStructure is returned when a file parses but lacks an
	// element the format requires.
	ErrMissingStructure = errors.New("file lacks required structure")
)

// Kind classifies a node.
type Kind int

const (
	KindGroup Kind = iota
	KindVariable
	KindBand
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindVariable:
		return "variable"
	case KindBand:
		return "band"
	default:
		return "unknown"
	}
}

// Node is one addressable unit of a file.
type Node struct {
	// Path is absolute; "/" is the root group.
	Path string
	Kind Kind

	// Attributes maps attribute names to scalars (numbers, strings,
	// references), typed slices of them, or compound maps.
	Attributes map[string]any

	// Dimensions names the axes of a variable in order, or the dimensions
	// declared in a group.
	Dimensions []string

	// Array is the payload of a variable or band; nil for groups.
	Array *Array
}

// Array is an n-dimensional payload stored row-major.
type Array struct {
	Shape []uint64

	// Values is a typed slice: []int8 ... []uint64, []float32, []float64,
	// []string or []Reference. Structured elements come as [][]byte
	// (opaque), []map[string]any (compound, one map per element) or []any
	// (fixed arrays and variable-length sequences, one slice per element).
	Values any

	// Fill is the missing-value marker as a scalar of the element type, or
	// nil when the format declares none.
	Fill any
}

// Reference is an object reference resolved to the absolute path of its
// target. It is empty when the target is not a node.
type Reference string

// Visitor receives each node a reader produces. Returning an error stops
// the traversal and is returned by the reader.
type Visitor func(*Node) error

// JoinPath returns the absolute path of name inside parent.
func JoinPath(parent, name string) string {
	if parent == "" {
		parent = "/"
	}
	return path.Join(parent, name)
}

// Clean normalises p to an absolute slash path without a trailing slash.
func Clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Covers reports whether the skip path selects p: p is the skip path
// itself or lies below it. Both are cleaned first, so "grid" and "/grid/"
// cover "/grid/temperature".
func Covers(skip, p string) bool {
	skip, p = Clean(skip), Clean(p)
	if skip == "/" {
		return true
	}
	return p == skip || strings.HasPrefix(p, skip+"/")
}

// CoveredByAny reports whether any of skips covers p.
func CoveredByAny(skips []string, p string) bool {
	for _, s := range skips {
		if Covers(s, p) {
			return true
		}
	}
	return false
}
