// Package filters holds the versioned table of attribute names that are
// excluded from hashing, per file format.
package filters

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/cases"
)

// Version is the table layout this package understands.
const Version = 1

//go:embed filters.toml
var defaultTable []byte

// ErrInvalid is returned for tables that do not parse or validate.
var ErrInvalid = errors.New("invalid filter table")

// Section lists excluded attribute names.
type Section struct {
	Exclude []string `toml:"exclude"`
}

// Table maps formats to the attribute names they exclude. A Table is not
// modified after Load returns.
type Table struct {
	Version int                `toml:"version"`
	Common  Section            `toml:"common"`
	Formats map[string]Section `toml:"formats"`
}

var (
	defaultOnce sync.Once
	defaultTab  *Table
	defaultErr  error
)

// Default returns the embedded table, parsed once per process.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTab, defaultErr = Load(strings.NewReader(string(defaultTable)))
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("embedded filter table: %v", defaultErr))
	}
	return defaultTab
}

// Load parses and validates a table.
func Load(r io.Reader) (*Table, error) {
	var t Table
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadFile parses the table stored at path on fsys.
func LoadFile(fsys billy.Filesystem, path string) (*Table, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open filter table: %w", err)
	}
	defer f.Close()

	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func (t *Table) validate() error {
	if t.Version != Version {
		return fmt.Errorf("%w: version %d, want %d", ErrInvalid, t.Version, Version)
	}
	check := func(where string, names []string) error {
		for _, n := range names {
			if strings.TrimSpace(n) == "" {
				return fmt.Errorf("%w: empty name in %s", ErrInvalid, where)
			}
		}
		return nil
	}
	if err := check("common", t.Common.Exclude); err != nil {
		return err
	}
	for format, s := range t.Formats {
		if err := check("formats."+format, s.Exclude); err != nil {
			return err
		}
	}
	return nil
}

// For returns the names excluded for format, plus extra. Unknown formats
// get the common names only.
func (t *Table) For(format string, extra ...string) Set {
	s := Set{names: make(map[string]struct{})}
	s.add(t.Common.Exclude...)
	s.add(t.Formats[format].Exclude...)
	s.add(extra...)
	return s
}

// Set is an immutable set of excluded attribute names, compared
// case-insensitively.
type Set struct {
	names map[string]struct{}
}

// NewSet builds a set from names.
func NewSet(names ...string) Set {
	s := Set{names: make(map[string]struct{})}
	s.add(names...)
	return s
}

func (s Set) add(names ...string) {
	fold := cases.Fold()
	for _, n := range names {
		s.names[fold.String(n)] = struct{}{}
	}
}

// Excludes reports whether the attribute name is filtered out.
func (s Set) Excludes(name string) bool {
	if len(s.names) == 0 {
		return false
	}
	_, ok := s.names[cases.Fold().String(name)]
	return ok
}

// Names returns the folded names in sorted order.
func (s Set) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of names.
func (s Set) Len() int {
	return len(s.names)
}
