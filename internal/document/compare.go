package document

import (
	"path"
	"sort"

	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

// DiffKind classifies a difference between two documents.
type DiffKind string

const (
	// DiffMissing marks a path present only in the reference.
	DiffMissing DiffKind = "missing"
	// DiffUnexpected marks a path present only in the actual document.
	DiffUnexpected DiffKind = "unexpected"
	// DiffChanged marks a path whose digests differ.
	DiffChanged DiffKind = "changed"
	// DiffShape marks a path holding a digest on one side and a nested
	// document on the other.
	DiffShape DiffKind = "shape"
)

// Difference is one mismatching path. Actual and Reference hold the digests
// on each side, empty where the side is absent or nested.
type Difference struct {
	Path      string
	Kind      DiffKind
	Actual    string
	Reference string
}

// Comparison is the outcome of Compare.
type Comparison struct {
	Differences []Difference
	// Compared counts the digest pairs that were checked.
	Compared int
}

// Equal reports whether the documents matched.
func (c *Comparison) Equal() bool {
	return len(c.Differences) == 0
}

// Paths returns the differing paths in order.
func (c *Comparison) Paths() []string {
	out := make([]string, len(c.Differences))
	for i, d := range c.Differences {
		out[i] = d.Path
	}
	return out
}

// Compare checks actual against reference key by key at every level.
// Digests must match exactly. Paths covered by skip are ignored on both
// sides.
func Compare(actual, reference Document, skip []string) *Comparison {
	c := &Comparison{}
	compareLevel(c, "", actual, reference, skip)
	sort.Slice(c.Differences, func(i, j int) bool {
		return c.Differences[i].Path < c.Differences[j].Path
	})
	return c
}

func compareLevel(c *Comparison, prefix string, actual, reference Document, skip []string) {
	keys := make(map[string]struct{}, len(actual)+len(reference))
	for k := range actual {
		keys[k] = struct{}{}
	}
	for k := range reference {
		keys[k] = struct{}{}
	}

	for k := range keys {
		p := joinKey(prefix, k)
		if structure.CoveredByAny(skip, p) {
			continue
		}
		a, inActual := actual[k]
		r, inRef := reference[k]
		switch {
		case !inActual:
			c.Differences = append(c.Differences, Difference{Path: p, Kind: DiffMissing, Reference: r.Digest})
		case !inRef:
			c.Differences = append(c.Differences, Difference{Path: p, Kind: DiffUnexpected, Actual: a.Digest})
		case a.IsDoc() && r.IsDoc():
			compareLevel(c, p, a.Doc, r.Doc, skip)
		case a.IsDoc() != r.IsDoc():
			c.Differences = append(c.Differences, Difference{Path: p, Kind: DiffShape, Actual: a.Digest, Reference: r.Digest})
		default:
			c.Compared++
			if a.Digest != r.Digest {
				c.Differences = append(c.Differences, Difference{Path: p, Kind: DiffChanged, Actual: a.Digest, Reference: r.Digest})
			}
		}
	}
}

// joinKey builds the path of key inside a nested document. Top-level keys
// are used as they are.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}
