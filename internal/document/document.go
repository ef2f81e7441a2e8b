// Package document holds hash documents: JSON objects mapping structural
// paths to digests, optionally nested.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-billy/v5"
)

var (
	// ErrMalformed is returned when a document does not have the expected
	// shape.
	ErrMalformed = errors.New("malformed hash document")

	// ErrDuplicate is returned when a path is added twice.
	ErrDuplicate = errors.New("duplicate path")
)

// MinDigestLen is the shortest digest accepted on load: 128 bits as hex.
const MinDigestLen = 32

// Entry is either a digest or a nested document.
type Entry struct {
	Digest string
	Doc    Document
}

// IsDoc reports whether the entry is a nested document.
func (e Entry) IsDoc() bool {
	return e.Doc != nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if e.IsDoc() {
		return json.Marshal(e.Doc)
	}
	return json.Marshal(e.Digest)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value", ErrMalformed)
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if !ValidDigest(s) {
			return fmt.Errorf("%w: %q is not a hex digest", ErrMalformed, s)
		}
		*e = Entry{Digest: strings.ToLower(s)}
		return nil
	case '{':
		doc := Document{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		*e = Entry{Doc: doc}
		return nil
	}
	return fmt.Errorf("%w: value %s is neither a digest nor an object", ErrMalformed, truncate(data))
}

// Document maps keys to entries. Encoding sorts keys at every level.
type Document map[string]Entry

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, e := range d {
		if e.IsDoc() {
			e = Entry{Doc: e.Doc.Clone()}
		}
		out[k] = e
	}
	return out
}

// Digest returns the digest stored directly under key.
func (d Document) Digest(key string) (string, bool) {
	e, ok := d[key]
	if !ok || e.IsDoc() {
		return "", false
	}
	return e.Digest, true
}

// ValidDigest reports whether s looks like a hex digest of at least 128
// bits.
func ValidDigest(s string) bool {
	if len(s) < MinDigestLen || len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Decode parses a document from JSON.
func Decode(data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: top level must be an object", ErrMalformed)
	}
	doc := Document{}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := doc.validate(""); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d Document) validate(prefix string) error {
	for k, e := range d {
		switch {
		case e.IsDoc():
			if err := e.Doc.validate(joinKey(prefix, k)); err != nil {
				return err
			}
		case !ValidDigest(e.Digest):
			return fmt.Errorf("%w: %s has no digest", ErrMalformed, joinKey(prefix, k))
		}
	}
	return nil
}

// Load reads and parses a document.
func Load(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading hash document: %w", err)
	}
	return Decode(data)
}

// LoadFile reads the document stored at path on fsys.
func LoadFile(fsys billy.Filesystem, path string) (Document, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening hash document: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Encode returns doc as indented JSON with sorted keys and a trailing
// newline.
func Encode(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Write encodes doc to w.
func Write(w io.Writer, doc Document) error {
	b, err := Encode(doc)
	if err != nil {
		return fmt.Errorf("encoding hash document: %w", err)
	}
	_, err = w.Write(b)
	return err
}

// WriteFile writes doc to path on fsys, replacing any existing file.
func WriteFile(fsys billy.Filesystem, path string, doc Document) (err error) {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("creating hash document: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(f, doc)
}

func truncate(b []byte) string {
	const max = 32
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
