package hdf5

import (
	"errors"
	"fmt"
	"sort"

	"github.com/robert-malhotra/go-hashdiff/internal/dtype"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
	"github.com/robert-malhotra/go-hashdiff/internal/object"
)

// Attribute represents an HDF5 attribute attached to a dataset or group.
type Attribute struct {
	msg     *message.Attribute
	decoder *dtype.Decoder
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.msg.Name
}

// Shape returns the dimensions of the attribute value.
func (a *Attribute) Shape() []uint64 {
	if a.msg.Dataspace == nil || a.msg.Dataspace.IsScalar() {
		return nil
	}
	return a.msg.Dataspace.Dimensions
}

// NumElements returns the total number of elements.
func (a *Attribute) NumElements() uint64 {
	if a.msg.Dataspace == nil {
		return 1
	}
	return a.msg.Dataspace.NumElements()
}

// IsScalar returns true if the attribute is a scalar value.
func (a *Attribute) IsScalar() bool {
	if a.msg.Dataspace == nil {
		return true
	}
	return a.msg.Dataspace.IsScalar()
}

// Value reads the attribute and returns it as a typed Go value:
//   - integers as the matching sized Go integer type
//   - floats as float32 or float64
//   - strings (fixed or variable length) as string
//   - compounds as map[string]any
//   - object references as dtype.Reference addresses
//
// Scalar attributes return a single value, all others a slice. A null
// dataspace gives nil.
func (a *Attribute) Value() (any, error) {
	if a.msg.Datatype == nil {
		return nil, fmt.Errorf("attribute %q has no datatype", a.msg.Name)
	}
	if a.msg.Dataspace != nil && a.msg.Dataspace.IsNull() {
		return nil, nil
	}

	values, err := a.decoder.Values(a.msg.Datatype, a.msg.Data, a.NumElements())
	if err != nil {
		if errors.Is(err, dtype.ErrUnsupported) {
			return nil, fmt.Errorf("%w: attribute %q: %w", ErrUnsupported, a.msg.Name, err)
		}
		return nil, fmt.Errorf("attribute %q: %w", a.msg.Name, err)
	}
	if a.IsScalar() {
		return dtype.First(values), nil
	}
	return values, nil
}

// ObjectReferences decodes an attribute holding object references, either
// directly or as variable-length sequences of references, as netCDF-4 does
// for DIMENSION_LIST. Each entry of the result lists the addresses of one
// element.
func (a *Attribute) ObjectReferences() ([][]uint64, error) {
	dt := a.msg.Datatype
	if dt == nil {
		return nil, fmt.Errorf("attribute %q has no datatype", a.msg.Name)
	}

	switch {
	case dt.Class == message.ClassReference:
		refs, err := a.decoder.Values(dt, a.msg.Data, a.NumElements())
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.msg.Name, err)
		}
		out := make([][]uint64, 0, a.NumElements())
		for _, r := range refs.([]dtype.Reference) {
			out = append(out, []uint64{uint64(r)})
		}
		return out, nil

	case dt.Class == message.ClassVarLen && !dt.IsVarLenString &&
		dt.VarLenType != nil && dt.VarLenType.Class == message.ClassReference:
		seqs, err := a.decoder.Sequences(a.msg.Data, a.NumElements(), int(dt.VarLenType.Size))
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.msg.Name, err)
		}
		out := make([][]uint64, len(seqs))
		for i, seq := range seqs {
			out[i] = dtype.ObjectReferences(seq, int(dt.VarLenType.Size))
		}
		return out, nil

	default:
		return nil, fmt.Errorf("attribute %q does not hold object references", a.msg.Name)
	}
}

// attributes collects the attribute messages of header sorted by name.
func (f *File) attributes(header *object.Header) ([]*Attribute, error) {
	if err := f.checkCompactStorage(header); err != nil {
		return nil, err
	}
	msgs := header.Attributes()
	attrs := make([]*Attribute, 0, len(msgs))
	for _, msg := range msgs {
		attrs = append(attrs, &Attribute{msg: msg, decoder: f.decoder})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name() < attrs[j].Name() })
	return attrs, nil
}

func (f *File) attr(header *object.Header, name string) *Attribute {
	for _, msg := range header.Attributes() {
		if msg.Name == name {
			return &Attribute{msg: msg, decoder: f.decoder}
		}
	}
	return nil
}

// checkCompactStorage rejects objects whose links or attributes live in a
// fractal heap (dense storage); only compact storage is traversed.
func (f *File) checkCompactStorage(header *object.Header) error {
	if li := header.LinkInfo(); li != nil && !f.reader.IsUndefinedOffset(li.FractalHeapAddress) {
		return fmt.Errorf("%w: dense link storage", ErrUnsupported)
	}
	if ai := header.AttributeInfo(); ai != nil && !f.reader.IsUndefinedOffset(ai.FractalHeapAddress) {
		return fmt.Errorf("%w: dense attribute storage", ErrUnsupported)
	}
	return nil
}
