package hdf5

import (
	"errors"
	"fmt"
	"path"

	"github.com/robert-malhotra/go-hashdiff/internal/dtype"
	"github.com/robert-malhotra/go-hashdiff/internal/layout"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
	"github.com/robert-malhotra/go-hashdiff/internal/object"
)

// Dataset represents an HDF5 dataset.
type Dataset struct {
	file      *File
	path      string
	addr      uint64
	header    *object.Header
	dataspace *message.Dataspace
	datatype  *message.Datatype
	layout    layout.Layout

	// Write support fields
	dataAddr    uint64
	dataSize    uint64
	numElements uint64
}

// newDataset creates a Dataset from an object header.
func newDataset(f *File, path string, header *object.Header) (*Dataset, error) {
	ds := &Dataset{
		file:   f,
		path:   path,
		addr:   header.Address,
		header: header,
	}

	ds.dataspace = header.Dataspace()
	if ds.dataspace == nil {
		return nil, fmt.Errorf("dataset %s missing dataspace message", path)
	}

	ds.datatype = header.Datatype()
	if ds.datatype == nil {
		return nil, fmt.Errorf("dataset %s missing datatype message", path)
	}

	layoutMsg := header.DataLayout()
	if layoutMsg == nil {
		return nil, fmt.Errorf("dataset %s missing layout message", path)
	}

	var err error
	ds.layout, err = layout.New(layout.Source{
		Layout:    layoutMsg,
		Dataspace: ds.dataspace,
		Datatype:  ds.datatype,
		Filters:   header.FilterPipeline(),
		Fill:      header.FillValue(),
	}, f.reader)
	if err != nil {
		return nil, fmt.Errorf("creating layout for %s: %w", path, err)
	}

	return ds, nil
}

// Name returns the dataset name (last component of path).
func (d *Dataset) Name() string {
	return path.Base(d.path)
}

// Path returns the full path to this dataset.
func (d *Dataset) Path() string {
	return d.path
}

// Address returns the file address of the dataset's object header. Object
// references stored in attributes point at this address.
func (d *Dataset) Address() uint64 {
	return d.addr
}

// Shape returns the dimensions of the dataset; nil for a scalar.
func (d *Dataset) Shape() []uint64 {
	if d.dataspace.IsScalar() {
		return nil
	}
	return d.dataspace.Dimensions
}

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int {
	return d.dataspace.Rank
}

// NumElements returns the total number of elements.
func (d *Dataset) NumElements() uint64 {
	return d.dataspace.NumElements()
}

// Values reads the whole dataset into a Go slice, decoded as
// dtype.Decoder.Values describes: the sized integer or float slice for
// numeric data and []string for strings.
func (d *Dataset) Values() (any, error) {
	raw, err := d.layout.Read()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.path, err)
	}
	vals, err := d.file.decoder.Values(d.datatype, raw, d.dataspace.NumElements())
	if err != nil {
		if errors.Is(err, dtype.ErrUnsupported) {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnsupported, d.path, err)
		}
		return nil, fmt.Errorf("decoding %s: %w", d.path, err)
	}
	return vals, nil
}

// Attributes returns the dataset's attributes sorted by name.
func (d *Dataset) Attributes() ([]*Attribute, error) {
	return d.file.attributes(d.header)
}

// Attr returns an attribute by name, or nil if not found.
func (d *Dataset) Attr(name string) *Attribute {
	return d.file.attr(d.header, name)
}
