package document

import "fmt"

// Builder collects path digests into a flat document.
type Builder struct {
	doc Document
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{doc: Document{}}
}

// Add records the digest for path.
func (b *Builder) Add(path, digest string) error {
	if _, ok := b.doc[path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, path)
	}
	b.doc[path] = Entry{Digest: digest}
	return nil
}

// Len returns the number of paths added so far.
func (b *Builder) Len() int {
	return len(b.doc)
}

// Document returns a copy of the document built so far.
func (b *Builder) Document() Document {
	return b.doc.Clone()
}
