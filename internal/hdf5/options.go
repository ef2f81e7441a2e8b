package hdf5

// FileOption configures file creation options.
type FileOption func(*fileOptions)

type fileOptions struct {
	offsetSize int
	lengthSize int
}

func defaultFileOptions() *fileOptions {
	return &fileOptions{
		offsetSize: 8,
		lengthSize: 8,
	}
}

// WithOffsetSize sets the size in bytes for file offsets (2, 4, or 8).
func WithOffsetSize(size int) FileOption {
	return func(o *fileOptions) {
		if size == 2 || size == 4 || size == 8 {
			o.offsetSize = size
		}
	}
}

// WithLengthSize sets the size in bytes for lengths (2, 4, or 8).
func WithLengthSize(size int) FileOption {
	return func(o *fileOptions) {
		if size == 2 || size == 4 || size == 8 {
			o.lengthSize = size
		}
	}
}

// DatasetOption configures dataset creation options.
type DatasetOption func(*datasetOptions)

// attrDef holds an attribute definition for creation. refs is set for
// attributes holding variable-length lists of object references.
type attrDef struct {
	name  string
	value any
	refs  [][]uint64
}

type datasetOptions struct {
	chunks     []uint64
	maxDims    []uint64
	deflate    int
	fill       any
	attributes []attrDef
}

func defaultDatasetOptions() *datasetOptions {
	return &datasetOptions{}
}

// WithChunks sets the chunk dimensions for a chunked dataset.
func WithChunks(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.chunks = dims
	}
}

// WithMaxDims sets the maximum dimensions for a resizable dataset.
// Use 0 for unlimited dimension.
func WithMaxDims(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.maxDims = dims
	}
}

// WithDeflate compresses a chunked dataset with the shuffle and deflate
// filters at level 1-9.
func WithDeflate(level int) DatasetOption {
	return func(o *datasetOptions) {
		o.deflate = level
	}
}

// WithFillValue records the value of unwritten elements, stored with the
// dataset's datatype.
func WithFillValue(value any) DatasetOption {
	return func(o *datasetOptions) {
		o.fill = value
	}
}

// WithAttribute adds an attribute to the dataset.
// The value can be a scalar or slice of: int, int8-64, uint, uint8-64, float32, float64, string.
// Multiple WithAttribute options can be used to add multiple attributes.
func WithAttribute(name string, value any) DatasetOption {
	return func(o *datasetOptions) {
		o.attributes = append(o.attributes, attrDef{name: name, value: value})
	}
}

// WithReferenceList adds an attribute holding one variable-length list of
// object references per element, the shape netCDF-4 uses for
// DIMENSION_LIST. Addresses come from Dataset.Address.
func WithReferenceList(name string, refs ...[]uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.attributes = append(o.attributes, attrDef{name: name, refs: refs})
	}
}
