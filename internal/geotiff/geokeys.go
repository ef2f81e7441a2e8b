package geotiff

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

// geoKeys resolves the GeoKeyDirectory into named values: SHORT keys as
// uint16, double keys as float64 and ASCII keys as strings. Multi-valued
// keys are slices.
func geoKeys(d *ifd) (map[string]any, error) {
	dir, ok := d.uints(tagGeoKeyDirectory)
	if !ok {
		return nil, nil
	}
	if len(dir) < 4 {
		return nil, fmt.Errorf("%w: GeoKeyDirectory holds %d values", structure.ErrUnreadable, len(dir))
	}
	doubles, _ := d.floats(tagGeoDoubleParams)
	ascii, _ := d.ascii(tagGeoASCIIParams)

	n := int(dir[3])
	if len(dir) < 4+4*n {
		return nil, fmt.Errorf("%w: GeoKeyDirectory declares %d keys but holds %d", structure.ErrUnreadable, n, (len(dir)-4)/4)
	}

	out := make(map[string]any, n)
	for i := 0; i < n; i++ {
		e := dir[4+4*i : 8+4*i]
		id, loc, count, value := uint16(e[0]), uint16(e[1]), int(e[2]), int(e[3])

		name, ok := geoKeyNames[id]
		if !ok {
			name = fmt.Sprintf("GeoKey_%d", id)
		}

		switch loc {
		case 0:
			out[name] = uint16(value)
		case tagGeoKeyDirectory:
			if value+count > len(dir) {
				return nil, fmt.Errorf("%w: %s points past the directory", structure.ErrUnreadable, name)
			}
			vals := make([]uint16, count)
			for k := range vals {
				vals[k] = uint16(dir[value+k])
			}
			out[name] = scalarOrSlice(vals)
		case tagGeoDoubleParams:
			if value+count > len(doubles) {
				return nil, fmt.Errorf("%w: %s points past GeoDoubleParams", structure.ErrUnreadable, name)
			}
			out[name] = scalarOrSlice(append([]float64{}, doubles[value:value+count]...))
		case tagGeoASCIIParams:
			if value+count > len(ascii) {
				return nil, fmt.Errorf("%w: %s points past GeoAsciiParams", structure.ErrUnreadable, name)
			}
			// Strings in GeoAsciiParams end with '|'.
			out[name] = strings.TrimRight(ascii[value:value+count], "|\x00")
		default:
			return nil, fmt.Errorf("%w: %s stored in unknown tag %d", structure.ErrUnreadable, name, loc)
		}
	}
	return out, nil
}

func scalarOrSlice[T any](v []T) any {
	if len(v) == 1 {
		return v[0]
	}
	return v
}

// transform returns the affine geotransform as (x origin, pixel width,
// row rotation, y origin, column rotation, pixel height).
func transform(d *ifd) ([]float64, bool) {
	if m, ok := d.floats(tagModelTransformation); ok && len(m) >= 16 {
		return []float64{m[3], m[0], m[1], m[7], m[4], m[5]}, true
	}
	tp, okTP := d.floats(tagModelTiepoint)
	scale, okScale := d.floats(tagModelPixelScale)
	if !okTP || !okScale || len(tp) < 6 || len(scale) < 2 {
		return nil, false
	}
	x0 := tp[3] - tp[0]*scale[0]
	y0 := tp[4] + tp[1]*scale[1]
	return []float64{x0, scale[0], 0, y0, 0, -scale[1]}, true
}

type gdalMetadata struct {
	Items []gdalItem `xml:"Item"`
}

type gdalItem struct {
	Name   string `xml:"name,attr"`
	Sample *int   `xml:"sample,attr"`
	Role   string `xml:"role,attr"`
	Domain string `xml:"domain,attr"`
	Value  string `xml:",chardata"`
}

func (it gdalItem) key() string {
	name := it.Name
	if name == "" {
		name = it.Role
	}
	if it.Domain != "" {
		return it.Domain + ":" + name
	}
	return name
}

// gdalItems splits the GDAL_METADATA document into dataset items and
// per-band items keyed by 0-based sample index.
func gdalItems(d *ifd) (map[string]any, map[int]map[string]any, error) {
	text, ok := d.ascii(tagGDALMetadata)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, nil, nil
	}
	var md gdalMetadata
	if err := xml.Unmarshal([]byte(text), &md); err != nil {
		return nil, nil, fmt.Errorf("%w: GDAL_METADATA: %v", structure.ErrUnreadable, err)
	}

	dataset := make(map[string]any)
	bands := make(map[int]map[string]any)
	for _, it := range md.Items {
		if it.Sample == nil {
			dataset[it.key()] = it.Value
			continue
		}
		if bands[*it.Sample] == nil {
			bands[*it.Sample] = make(map[string]any)
		}
		bands[*it.Sample][it.key()] = it.Value
	}
	return dataset, bands, nil
}

// noData parses GDAL_NODATA. It reports false when the tag is absent.
func noData(d *ifd) (float64, bool, error) {
	text, ok := d.ascii(tagGDALNoData)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: GDAL_NODATA %q: %v", structure.ErrUnreadable, text, err)
	}
	return v, true, nil
}
