package hashdiff

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/robert-malhotra/go-hashdiff/internal/filters"
)

// Option configures a hashing or comparison call.
type Option func(*options)

type options struct {
	fsys      billy.Filesystem
	osDefault bool
	logger    *slog.Logger
	table     *filters.Table
	format    Format
	skipAttrs []string
	skipPaths []string
}

func newOptions(opts []Option) *options {
	o := &options{
		fsys:      osfs.New("/"),
		osDefault: true,
		logger:    slog.New(slog.DiscardHandler),
		table:     filters.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// resolve maps a caller path onto the filesystem. Paths on the default OS
// filesystem are made absolute first, since it is rooted at "/".
func (o *options) resolve(name string) string {
	if !o.osDefault {
		return name
	}
	if abs, err := filepath.Abs(name); err == nil {
		return filepath.ToSlash(abs)
	}
	return name
}

// WithFilesystem reads and writes through fsys instead of the OS
// filesystem.
func WithFilesystem(fsys billy.Filesystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
			o.osDefault = false
		}
	}
}

// WithLogger sets the logger that receives debug events. Nothing is logged
// by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFilterTable replaces the built-in attribute filter table.
func WithFilterTable(t *FilterTable) Option {
	return func(o *options) {
		if t != nil {
			o.table = t
		}
	}
}

// WithFormat skips detection and reads the file as f.
func WithFormat(f Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithSkippedAttributes excludes the named attributes from every node's
// metadata, in addition to those of the filter table. Names match
// case-insensitively.
func WithSkippedAttributes(names ...string) Option {
	return func(o *options) {
		o.skipAttrs = append(o.skipAttrs, names...)
	}
}

// WithSkippedPaths leaves the named groups or variables, and everything
// below them, out of generated documents and out of comparisons.
func WithSkippedPaths(paths ...string) Option {
	return func(o *options) {
		o.skipPaths = append(o.skipPaths, paths...)
	}
}

// FilterTable lists the attributes excluded from hashing, per format.
type FilterTable = filters.Table

// DefaultFilterTable returns the built-in filter table.
func DefaultFilterTable() *FilterTable {
	return filters.Default()
}

// LoadFilterTable parses a filter table in TOML.
func LoadFilterTable(r io.Reader) (*FilterTable, error) {
	return filters.Load(r)
}

// LoadFilterTableFile parses the filter table at name on fsys.
func LoadFilterTableFile(fsys billy.Filesystem, name string) (*FilterTable, error) {
	return filters.LoadFile(fsys, name)
}

// withFormat returns opts plus WithFormat(f) without touching the
// caller's backing array.
func withFormat(opts []Option, f Format) []Option {
	return append(opts[:len(opts):len(opts)], WithFormat(f))
}
