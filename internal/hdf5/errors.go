// Package hdf5 provides a pure Go reader for the HDF5 files hashdiff traverses,
// plus the minimal write path used to produce fixtures.
package hdf5

import "errors"

// Common errors
var (
	ErrNotHDF5     = errors.New("not an HDF5 file")
	ErrNotFound    = errors.New("object not found")
	ErrNotDataset  = errors.New("object is not a dataset")
	ErrNotGroup    = errors.New("object is not a group")
	ErrUnsupported = errors.New("unsupported feature")
	ErrClosed      = errors.New("file is closed")
	ErrLinkDepth   = errors.New("maximum link depth exceeded")
	ErrReadOnly    = errors.New("file is not writable")

	// ErrNamedDatatype is returned when a link leads to a committed
	// datatype, which is neither a group nor a dataset.
	ErrNamedDatatype = errors.New("object is a named datatype")
)

// MaxLinkDepth is the maximum number of soft/external links that can be followed
// in a single path resolution. This prevents stack overflow from deeply nested links.
const MaxLinkDepth = 100
