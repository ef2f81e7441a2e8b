package hdf5

import (
	"fmt"
	"path"
	"reflect"

	"github.com/robert-malhotra/go-hashdiff/internal/dtype"
	"github.com/robert-malhotra/go-hashdiff/internal/filter"
	"github.com/robert-malhotra/go-hashdiff/internal/heap"
	"github.com/robert-malhotra/go-hashdiff/internal/layout"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
	"github.com/robert-malhotra/go-hashdiff/internal/object"
)

// CreateDataset creates a new dataset holding data. Dimensions come from
// the nesting of data (a scalar becomes a one-element dataset) and the
// datatype from its element type. Strings are stored fixed-length.
func (g *Group) CreateDataset(name string, data any, opts ...DatasetOption) (*Dataset, error) {
	if !g.file.writable {
		return nil, ErrReadOnly
	}
	if name == "" {
		return nil, fmt.Errorf("dataset name cannot be empty")
	}

	options := defaultDatasetOptions()
	for _, opt := range opts {
		opt(options)
	}

	dataVal := reflect.ValueOf(data)
	if dataVal.Kind() == reflect.Ptr {
		dataVal = dataVal.Elem()
	}

	dims, elemType, err := inferDimensionsAndType(dataVal)
	if err != nil {
		return nil, fmt.Errorf("inferring dimensions: %w", err)
	}
	flat := flatten(dataVal, elemType)

	datatype, err := datatypeFor(elemType, flat)
	if err != nil {
		return nil, fmt.Errorf("creating datatype: %w", err)
	}
	rawData, err := dtype.Encode(datatype, flat.Interface())
	if err != nil {
		return nil, fmt.Errorf("encoding data: %w", err)
	}

	dataspace := message.NewDataspace(dims, options.maxDims)
	dataLayout, extra, err := g.writeData(rawData, dataspace, datatype, options)
	if err != nil {
		return nil, err
	}

	return g.writeDataset(name, dataspace, datatype, dataLayout, options, extra...)
}

// datatypeFor picks the datatype of elements of type t. Strings are stored
// fixed-length, sized by the longest of values.
func datatypeFor(t reflect.Type, values reflect.Value) (*message.Datatype, error) {
	if t.Kind() != reflect.String {
		return dtype.For(t)
	}
	strs := make([]string, values.Len())
	for i := range strs {
		strs[i] = values.Index(i).String()
	}
	return dtype.StringType(strs), nil
}

// CreateDatasetWithType creates a new contiguous dataset with explicit
// dimensions and datatype. Its data is supplied later through Write.
func (g *Group) CreateDatasetWithType(name string, dims []uint64, dt *message.Datatype, opts ...DatasetOption) (*Dataset, error) {
	if !g.file.writable {
		return nil, ErrReadOnly
	}
	if name == "" {
		return nil, fmt.Errorf("dataset name cannot be empty")
	}

	options := defaultDatasetOptions()
	for _, opt := range opts {
		opt(options)
	}

	numElements := uint64(1)
	for _, d := range dims {
		numElements *= d
	}
	dataSize := uint64(dt.Size) * numElements
	dataAddr := g.file.allocate(int64(dataSize))

	ds, err := g.writeDataset(name, message.NewDataspace(dims, options.maxDims), dt,
		message.NewContiguousLayout(dataAddr, dataSize), options)
	if err != nil {
		return nil, err
	}

	ds.dataAddr = dataAddr
	ds.dataSize = dataSize
	ds.numElements = numElements
	return ds, nil
}

// Write writes data to a dataset that was created with CreateDatasetWithType.
func (ds *Dataset) Write(data any) error {
	if !ds.file.writable {
		return ErrReadOnly
	}
	if ds.dataAddr == 0 {
		return fmt.Errorf("dataset %s was not created for writing", ds.path)
	}

	rawData, err := dtype.Encode(ds.datatype, data)
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}
	if uint64(len(rawData)) != ds.dataSize {
		return fmt.Errorf("data size mismatch: expected %d, got %d", ds.dataSize, len(rawData))
	}

	return ds.file.writer.At(int64(ds.dataAddr)).WriteBytes(rawData)
}

// writeData stores the encoded elements and returns the matching layout
// with the filter pipeline and fill value messages that go with it.
func (g *Group) writeData(rawData []byte, dataspace *message.Dataspace, datatype *message.Datatype, options *datasetOptions) (*message.DataLayout, []message.Encoder, error) {
	var extra []message.Encoder
	if options.fill != nil {
		value, err := dtype.Encode(datatype, options.fill)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding fill value: %w", err)
		}
		if len(value) != int(datatype.Size) {
			return nil, nil, fmt.Errorf("fill value %v is not a single element", options.fill)
		}
		extra = append(extra, message.NewFillValue(value))
	}

	if options.chunks == nil {
		if options.deflate > 0 {
			return nil, nil, fmt.Errorf("compression needs a chunked layout")
		}
		dataSize := uint64(len(rawData))
		dataAddr := g.file.allocate(int64(dataSize))
		if err := g.file.writer.At(int64(dataAddr)).WriteBytes(rawData); err != nil {
			return nil, nil, fmt.Errorf("writing data: %w", err)
		}
		return message.NewContiguousLayout(dataAddr, dataSize), extra, nil
	}

	var pipeline *filter.Pipeline
	if options.deflate > 0 {
		pipeline = filter.Standard(int(datatype.Size), options.deflate)
		extra = append(extra, pipeline.Message())
	}
	cw := layout.NewChunkWriter(g.file.writer, pipeline, g.file.allocate)
	dl, err := cw.Write(rawData, dataspace.Dimensions, dataspace.MaxDims, options.chunks, datatype.Size)
	if err != nil {
		return nil, nil, fmt.Errorf("writing chunks: %w", err)
	}
	return dl, extra, nil
}

// writeDataset writes the dataset object header with its attributes and
// links it into g.
func (g *Group) writeDataset(name string, dataspace *message.Dataspace, datatype *message.Datatype, dataLayout *message.DataLayout, options *datasetOptions, extra ...message.Encoder) (*Dataset, error) {
	messages := object.NewDatasetHeader(dataspace, datatype, dataLayout, extra...)

	for _, attr := range options.attributes {
		var attrMsg *message.Attribute
		var err error
		if attr.refs != nil {
			attrMsg, err = g.file.createReferenceListAttribute(attr.name, attr.refs)
		} else {
			attrMsg, err = createAttributeMessage(attr.name, attr.value)
		}
		if err != nil {
			return nil, fmt.Errorf("creating attribute %q: %w", attr.name, err)
		}
		messages = append(messages, attrMsg)
	}

	headerSize := object.HeaderSize(g.file.writer, messages)
	datasetAddr := g.file.allocate(int64(headerSize))

	if _, err := object.WriteHeader(g.file.writer.At(int64(datasetAddr)), messages); err != nil {
		return nil, fmt.Errorf("writing dataset header: %w", err)
	}

	if err := g.addLink(message.NewHardLink(name, datasetAddr)); err != nil {
		return nil, fmt.Errorf("adding link to parent: %w", err)
	}

	return &Dataset{
		file:      g.file,
		path:      path.Join(g.path, name),
		addr:      datasetAddr,
		dataspace: dataspace,
		datatype:  datatype,
	}, nil
}

// inferDimensionsAndType infers the dimensions and element type from a Go value.
func inferDimensionsAndType(val reflect.Value) ([]uint64, reflect.Type, error) {
	var dims []uint64
	current := val

	for {
		switch current.Kind() {
		case reflect.Slice, reflect.Array:
			dims = append(dims, uint64(current.Len()))
			if current.Len() == 0 {
				return dims, current.Type().Elem(), nil
			}
			current = current.Index(0)
		case reflect.Invalid:
			return nil, nil, fmt.Errorf("nil data")
		default:
			if len(dims) == 0 {
				dims = []uint64{1}
			}
			return dims, current.Type(), nil
		}
	}
}

// flatten copies a possibly nested slice into a flat slice of elemType in
// row-major order.
func flatten(val reflect.Value, elemType reflect.Type) reflect.Value {
	out := reflect.MakeSlice(reflect.SliceOf(elemType), 0, 0)
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
			for i := 0; i < v.Len(); i++ {
				walk(v.Index(i))
			}
			return
		}
		out = reflect.Append(out, v)
	}
	walk(val)
	return out
}

// createReferenceListAttribute stores each list of object references in the
// global heap and returns a variable-length attribute pointing at them.
func (f *File) createReferenceListAttribute(name string, refs [][]uint64) (*message.Attribute, error) {
	offsetSize := f.OffsetSize()
	var hb heap.Builder
	for _, list := range refs {
		buf := make([]byte, 0, len(list)*offsetSize)
		for _, addr := range list {
			buf = appendUint(buf, addr, offsetSize)
		}
		hb.Add(buf)
	}

	addr, err := hb.Write(f.writer, f.allocate)
	if err != nil {
		return nil, fmt.Errorf("writing global heap: %w", err)
	}

	dt := message.NewVarLenSequenceDatatype(message.NewObjectReferenceDatatype(offsetSize), offsetSize)
	data := make([]byte, 0, len(refs)*int(dt.Size))
	for i, list := range refs {
		data = appendUint(data, uint64(len(list)), 4)
		data = heap.ID{Collection: addr, Index: uint32(i + 1)}.Append(data, offsetSize)
	}

	return message.NewAttribute(name, dt, message.NewDataspace([]uint64{uint64(len(refs))}, nil), data), nil
}

func appendUint(b []byte, v uint64, size int) []byte {
	for i := 0; i < size; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

// createAttributeMessage creates an attribute message from a name and value.
func createAttributeMessage(name string, value any) (*message.Attribute, error) {
	val := reflect.ValueOf(value)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() == reflect.String {
		return createStringAttribute(name, val.String())
	}
	if val.Kind() == reflect.Slice && val.Type().Elem().Kind() == reflect.String {
		return createStringArrayAttribute(name, val)
	}

	var dims []uint64
	var elemType reflect.Type

	switch val.Kind() {
	case reflect.Slice, reflect.Array:
		dims = []uint64{uint64(val.Len())}
		elemType = val.Type().Elem()
	case reflect.Invalid:
		return nil, fmt.Errorf("nil attribute value")
	default:
		elemType = val.Type()
	}

	datatype, err := dtype.For(elemType)
	if err != nil {
		return nil, fmt.Errorf("unsupported attribute type %v: %w", elemType, err)
	}

	dataspace := message.NewScalarDataspace()
	if dims != nil {
		dataspace = message.NewDataspace(dims, nil)
	}

	data, err := dtype.Encode(datatype, val.Interface())
	if err != nil {
		return nil, fmt.Errorf("encoding attribute value: %w", err)
	}

	return message.NewAttribute(name, datatype, dataspace, data), nil
}

// createStringAttribute creates an attribute with a fixed-length string value.
func createStringAttribute(name string, s string) (*message.Attribute, error) {
	strLen := len(s) + 1

	datatype := message.NewStringDatatype(uint32(strLen), message.PadNullTerm, message.CharsetASCII)

	data := make([]byte, strLen)
	copy(data, s)

	return message.NewAttribute(name, datatype, message.NewScalarDataspace(), data), nil
}

// createStringArrayAttribute creates an attribute with an array of fixed-length strings.
func createStringArrayAttribute(name string, val reflect.Value) (*message.Attribute, error) {
	if val.Len() == 0 {
		return nil, fmt.Errorf("empty string array not supported")
	}
	datatype, _ := datatypeFor(val.Type().Elem(), val)
	data, err := dtype.Encode(datatype, val.Interface())
	if err != nil {
		return nil, err
	}
	return message.NewAttribute(name, datatype, message.NewDataspace([]uint64{uint64(val.Len())}, nil), data), nil
}
