package hashdiff

import (
	"fmt"
	"io"

	"github.com/robert-malhotra/go-hashdiff/internal/canonical"
	"github.com/robert-malhotra/go-hashdiff/internal/digest"
	"github.com/robert-malhotra/go-hashdiff/internal/document"
	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

// Document maps node paths to hex digests. Generated documents are flat;
// loaded reference documents may nest.
type Document = document.Document

// Comparison is the outcome of comparing a document with a reference.
type Comparison = document.Comparison

// Difference is one path that did not match.
type Difference = document.Difference

// DiffKind classifies a Difference.
type DiffKind = document.DiffKind

const (
	DiffMissing    = document.DiffMissing
	DiffUnexpected = document.DiffUnexpected
	DiffChanged    = document.DiffChanged
	DiffShape      = document.DiffShape
)

// GetHashes returns the hash document of the file at path, detecting its
// format unless WithFormat is given.
func GetHashes(path string, opts ...Option) (Document, error) {
	return newOptions(opts).hashes(path)
}

// GetHashesFromH5File returns the hash document of an HDF5 file.
func GetHashesFromH5File(path string, opts ...Option) (Document, error) {
	return GetHashes(path, withFormat(opts, FormatHDF5)...)
}

// GetHashesFromNC4File returns the hash document of a netCDF-4 file.
func GetHashesFromNC4File(path string, opts ...Option) (Document, error) {
	return GetHashes(path, withFormat(opts, FormatNetCDF4)...)
}

// GetHashFromGeoTIFFFile returns the hash document of a GeoTIFF file.
func GetHashFromGeoTIFFFile(path string, opts ...Option) (Document, error) {
	return GetHashes(path, withFormat(opts, FormatGeoTIFF)...)
}

// CreateHashFile hashes the file at path and writes the document as JSON
// to out. Nothing is written when hashing fails.
func CreateHashFile(path, out string, opts ...Option) error {
	o := newOptions(opts)
	doc, err := o.hashes(path)
	if err != nil {
		return err
	}
	if err := document.WriteFile(o.fsys, o.resolve(out), doc); err != nil {
		return fmt.Errorf("writing hash file: %w", err)
	}
	o.logger.Debug("wrote hash file", "path", out, "entries", len(doc))
	return nil
}

// CreateH5HashFile writes the hash document of an HDF5 file to out.
func CreateH5HashFile(path, out string, opts ...Option) error {
	return CreateHashFile(path, out, withFormat(opts, FormatHDF5)...)
}

// CreateNC4HashFile writes the hash document of a netCDF-4 file to out.
func CreateNC4HashFile(path, out string, opts ...Option) error {
	return CreateHashFile(path, out, withFormat(opts, FormatNetCDF4)...)
}

// CreateGeoTIFFHashFile writes the hash document of a GeoTIFF file to out.
func CreateGeoTIFFHashFile(path, out string, opts ...Option) error {
	return CreateHashFile(path, out, withFormat(opts, FormatGeoTIFF)...)
}

// WriteDocument writes doc as indented JSON with sorted keys.
func WriteDocument(w io.Writer, doc Document) error {
	return document.Write(w, doc)
}

// ReadDocument parses a hash document. Malformed input yields a
// *ReferenceDocumentError.
func ReadDocument(r io.Reader) (Document, error) {
	doc, err := document.Load(r)
	if err != nil {
		return nil, &ReferenceDocumentError{Err: err}
	}
	return doc, nil
}

// ReadHashFile loads the hash document stored at path.
func ReadHashFile(path string, opts ...Option) (Document, error) {
	o := newOptions(opts)
	return o.reference(path)
}

// CompareFile hashes the file at path and compares the result with the
// reference document stored at ref.
func CompareFile(path, ref string, opts ...Option) (*Comparison, error) {
	o := newOptions(opts)
	reference, err := o.reference(ref)
	if err != nil {
		return nil, err
	}
	return o.compareFile(path, reference)
}

// CompareFileWithDocument hashes the file at path and compares the result
// with an in-memory reference document.
func CompareFileWithDocument(path string, reference Document, opts ...Option) (*Comparison, error) {
	return newOptions(opts).compareFile(path, reference)
}

// CompareDocuments compares two hash documents. Only WithSkippedPaths and
// WithLogger apply.
func CompareDocuments(actual, reference Document, opts ...Option) *Comparison {
	o := newOptions(opts)
	return o.compare(actual, reference)
}

// MatchesReferenceHashFile reports whether the file at path hashes to the
// reference document stored at ref. A mismatch is not an error.
func MatchesReferenceHashFile(path, ref string, opts ...Option) (bool, error) {
	c, err := CompareFile(path, ref, opts...)
	if err != nil {
		return false, err
	}
	return c.Equal(), nil
}

// H5MatchesReferenceHashFile is MatchesReferenceHashFile for HDF5 files.
func H5MatchesReferenceHashFile(path, ref string, opts ...Option) (bool, error) {
	return MatchesReferenceHashFile(path, ref, withFormat(opts, FormatHDF5)...)
}

// NC4MatchesReferenceHashFile is MatchesReferenceHashFile for netCDF-4
// files.
func NC4MatchesReferenceHashFile(path, ref string, opts ...Option) (bool, error) {
	return MatchesReferenceHashFile(path, ref, withFormat(opts, FormatNetCDF4)...)
}

// GeoTIFFMatchesReferenceHashFile is MatchesReferenceHashFile for GeoTIFF
// files.
func GeoTIFFMatchesReferenceHashFile(path, ref string, opts ...Option) (bool, error) {
	return MatchesReferenceHashFile(path, ref, withFormat(opts, FormatGeoTIFF)...)
}

func (o *options) detect(name string) (Format, error) {
	if o.format != FormatUnknown {
		return o.format, nil
	}
	f, err := DetectFormat(o.fsys, name)
	if err != nil {
		return FormatUnknown, err
	}
	o.logger.Debug("detected format", "path", name, "format", f)
	return f, nil
}

// Node is one group, variable or band as it is hashed.
type Node = structure.Node

// Walk reads the file at path and calls visit for each node that would be
// hashed, in document order. Skipped paths are not visited.
func Walk(path string, visit func(*Node) error, opts ...Option) error {
	o := newOptions(opts)
	name, format, err := o.target(path)
	if err != nil {
		return err
	}
	return o.read(path, name, format, visit)
}

// target resolves path on the filesystem and settles its format. An HDF5
// file written by the netCDF-4 library is read as netCDF-4 so that both
// entry points agree on it.
func (o *options) target(path string) (string, Format, error) {
	name := o.resolve(path)
	format, err := o.detect(name)
	if err != nil {
		return "", FormatUnknown, err
	}
	if format == FormatHDF5 && isNetCDF4(o.fsys, name) {
		o.logger.Debug("reading HDF5 file as netCDF-4", "path", name, "marker", ncProperties)
		format = FormatNetCDF4
	}
	return name, format, nil
}

func (o *options) read(path, name string, format Format, visit func(*Node) error) error {
	rd, err := readerFor(format)
	if err != nil {
		return &UnsupportedFormatError{Path: path, Err: err}
	}
	err = rd.Read(o.fsys, name, func(n *structure.Node) error {
		if structure.CoveredByAny(o.skipPaths, n.Path) {
			o.logger.Debug("skipped node", "path", n.Path)
			return nil
		}
		return visit(n)
	})
	if err != nil {
		return classify(path, format, err)
	}
	return nil
}

func (o *options) hashes(path string) (Document, error) {
	name, format, err := o.target(path)
	if err != nil {
		return nil, err
	}

	c := canonical.New(o.table.For(format.String(), o.skipAttrs...))
	b := document.NewBuilder()
	err = o.read(path, name, format, func(n *structure.Node) error {
		parts, err := c.Parts(n)
		if err != nil {
			return err
		}
		sum := digest.Sum(parts...)
		o.logger.Debug("hashed node", "path", n.Path, "kind", n.Kind, "digest", sum)
		return b.Add(n.Path, sum)
	})
	if err != nil {
		return nil, err
	}

	o.logger.Debug("built hash document", "path", path, "format", format, "entries", b.Len())
	return b.Document(), nil
}

func (o *options) reference(path string) (Document, error) {
	doc, err := document.LoadFile(o.fsys, o.resolve(path))
	if err != nil {
		return nil, &ReferenceDocumentError{Path: path, Err: err}
	}
	return doc, nil
}

func (o *options) compareFile(path string, reference Document) (*Comparison, error) {
	actual, err := o.hashes(path)
	if err != nil {
		return nil, err
	}
	return o.compare(actual, reference), nil
}

func (o *options) compare(actual, reference Document) *Comparison {
	c := document.Compare(actual, reference, o.skipPaths)
	o.logger.Debug("compared documents",
		"equal", c.Equal(), "compared", c.Compared, "differences", len(c.Differences))
	return c
}
