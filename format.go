package hashdiff

import (
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"

	"github.com/robert-malhotra/go-hashdiff/internal/geotiff"
	"github.com/robert-malhotra/go-hashdiff/internal/hdf5"
	"github.com/robert-malhotra/go-hashdiff/internal/netcdf"
	"github.com/robert-malhotra/go-hashdiff/internal/structure"
	"github.com/robert-malhotra/go-hashdiff/internal/superblock"
)

// Format identifies one of the supported file formats.
type Format int

const (
	// FormatUnknown lets the dispatcher detect the format.
	FormatUnknown Format = iota
	FormatHDF5
	FormatNetCDF4
	FormatGeoTIFF
)

func (f Format) String() string {
	switch f {
	case FormatHDF5:
		return "hdf5"
	case FormatNetCDF4:
		return "netcdf4"
	case FormatGeoTIFF:
		return "geotiff"
	default:
		return "unknown"
	}
}

// ParseFormat returns the Format named by s, as printed by Format.String.
// "h5", "nc4" and "tiff" are accepted as well.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatUnknown, nil
	case "hdf5", "h5":
		return FormatHDF5, nil
	case "netcdf4", "netcdf", "nc4", "nc":
		return FormatNetCDF4, nil
	case "geotiff", "tiff", "tif":
		return FormatGeoTIFF, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

var extensions = map[string]Format{
	".h5":   FormatHDF5,
	".hdf5": FormatHDF5,
	".he5":  FormatHDF5,
	".nc":   FormatNetCDF4,
	".nc4":  FormatNetCDF4,
	".tif":  FormatGeoTIFF,
	".tiff": FormatGeoTIFF,
}

// ncProperties is written by the netCDF-4 library on the root group of
// every file it creates.
const ncProperties = "_NCProperties"

// DetectFormat infers the format of the file at name from its extension,
// falling back to its content: an HDF5 superblock (netCDF-4 when the root
// group carries _NCProperties) or a TIFF signature.
func DetectFormat(fsys billy.Filesystem, name string) (Format, error) {
	if f, ok := extensions[strings.ToLower(path.Ext(name))]; ok {
		return f, nil
	}

	bf, err := fsys.Open(name)
	if err != nil {
		return FormatUnknown, &UnsupportedFormatError{Path: name, Err: err}
	}
	defer bf.Close()

	if superblock.Detect(bf) {
		if isNetCDF4(fsys, name) {
			return FormatNetCDF4, nil
		}
		return FormatHDF5, nil
	}

	mime, err := mimetype.DetectReader(bf)
	if err != nil {
		return FormatUnknown, &UnsupportedFormatError{Path: name, Err: err}
	}
	if mime.Is("image/tiff") {
		return FormatGeoTIFF, nil
	}
	return FormatUnknown, &UnsupportedFormatError{Path: name, MIME: mime.String()}
}

func isNetCDF4(fsys billy.Filesystem, name string) bool {
	f, err := hdf5.Open(fsys, name)
	if err != nil {
		return false
	}
	defer f.Close()
	return f.Root().Attr(ncProperties) != nil
}

// reader produces the nodes of one file.
type reader interface {
	Read(fsys billy.Filesystem, filename string, visit structure.Visitor) error
}

func readerFor(f Format) (reader, error) {
	switch f {
	case FormatHDF5:
		return netcdf.Reader{}, nil
	case FormatNetCDF4:
		return netcdf.Reader{Conventions: true}, nil
	case FormatGeoTIFF:
		return geotiff.Reader{}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
}
