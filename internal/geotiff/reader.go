// Package geotiff reads the first image of a TIFF or BigTIFF file, with
// its GeoTIFF georeferencing, into structure nodes.
//
// The root node "/" carries the image description and georeferencing; each
// sample becomes a band node "/band_<n>", numbered from 1.
package geotiff

import (
	"fmt"
	"strconv"

	"github.com/go-git/go-billy/v5"

	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

var rasterDims = []string{"y", "x"}

// Reader produces nodes from GeoTIFF files.
type Reader struct{}

// Read decodes the file at filename and calls visit for the root node and
// then each band in order.
func (Reader) Read(fsys billy.Filesystem, filename string, visit structure.Visitor) error {
	f, err := fsys.Open(filename)
	if err != nil {
		return fmt.Errorf("%w: %w", structure.ErrUnreadable, err)
	}
	defer f.Close()

	rd, off, err := readHeader(f)
	if err != nil {
		return err
	}
	if off == 0 {
		return fmt.Errorf("%w: no image file directory", structure.ErrMissingStructure)
	}
	dir, err := readIFD(rd, off)
	if err != nil {
		return err
	}

	ras, err := newRaster(dir)
	if err != nil {
		return err
	}

	rootAttrs, bandAttrs, err := metadata(dir, ras)
	if err != nil {
		return err
	}
	fill, hasFill, err := noData(dir)
	if err != nil {
		return err
	}

	if err := visit(&structure.Node{
		Path:       "/",
		Kind:       structure.KindGroup,
		Attributes: rootAttrs,
		Dimensions: append([]string{}, rasterDims...),
	}); err != nil {
		return err
	}

	bufs, err := ras.bands(rd)
	if err != nil {
		return err
	}
	for i, buf := range bufs {
		arr := &structure.Array{
			Shape:  []uint64{uint64(ras.height), uint64(ras.width)},
			Values: ras.typed(buf, rd.ByteOrder()),
		}
		if hasFill {
			arr.Fill = fill
		}
		attrs := bandAttrs[i]
		if attrs == nil {
			attrs = map[string]any{}
		}
		node := &structure.Node{
			Path:       "/band_" + strconv.Itoa(i+1),
			Kind:       structure.KindBand,
			Attributes: attrs,
			Dimensions: append([]string{}, rasterDims...),
			Array:      arr,
		}
		if err := visit(node); err != nil {
			return err
		}
	}
	return nil
}

// metadata builds the root attributes and the per-band attributes.
func metadata(d *ifd, ras *raster) (map[string]any, map[int]map[string]any, error) {
	attrs := map[string]any{
		"width":                uint64(ras.width),
		"height":               uint64(ras.height),
		"bands":                uint64(ras.samples),
		"bits_per_sample":      uint64(ras.bytesPer * 8),
		"sample_format":        sampleFormatName(ras.format),
		"photometric":          d.uint(tagPhotometric, 1),
		"planar_configuration": ras.planar,
	}

	for tag, name := range textTags {
		if s, ok := d.ascii(tag); ok {
			attrs[name] = s
		}
	}
	if t, ok := transform(d); ok {
		attrs["transform"] = t
	}

	keys, err := geoKeys(d)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range keys {
		attrs[k] = v
	}

	dataset, bands, err := gdalItems(d)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range dataset {
		attrs[k] = v
	}
	return attrs, bands, nil
}

func sampleFormatName(f uint64) string {
	switch f {
	case sampleInt:
		return "int"
	case sampleFloat:
		return "float"
	default:
		return "uint"
	}
}
