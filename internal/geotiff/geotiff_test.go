package geotiff

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"sort"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

// testField is an IFD entry whose value is already encoded in the file's
// byte order.
type testField struct {
	tag   uint16
	typ   uint16
	count uint64
	data  []byte
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// tiffWriter assembles a single-image TIFF in memory.
type tiffWriter struct {
	order  byteOrder
	big    bool
	fields []testField
	chunks [][]byte
	tiled  bool
}

func newTIFF(order byteOrder, big bool) *tiffWriter {
	return &tiffWriter{order: order, big: big}
}

func (w *tiffWriter) shorts(tag uint16, vals ...uint16) *tiffWriter {
	b := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		b = w.order.AppendUint16(b, v)
	}
	w.fields = append(w.fields, testField{tag, typeShort, uint64(len(vals)), b})
	return w
}

func (w *tiffWriter) longs(tag uint16, vals ...uint32) *tiffWriter {
	b := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		b = w.order.AppendUint32(b, v)
	}
	w.fields = append(w.fields, testField{tag, typeLong, uint64(len(vals)), b})
	return w
}

func (w *tiffWriter) doubles(tag uint16, vals ...float64) *tiffWriter {
	b := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		b = w.order.AppendUint64(b, math.Float64bits(v))
	}
	w.fields = append(w.fields, testField{tag, typeDouble, uint64(len(vals)), b})
	return w
}

func (w *tiffWriter) ascii(tag uint16, s string) *tiffWriter {
	b := append([]byte(s), 0)
	w.fields = append(w.fields, testField{tag, typeASCII, uint64(len(b)), b})
	return w
}

// strips sets the compressed chunks stored as strips.
func (w *tiffWriter) strips(chunks ...[]byte) *tiffWriter {
	w.chunks, w.tiled = chunks, false
	return w
}

// tiles sets the compressed chunks stored as tiles.
func (w *tiffWriter) tiles(chunks ...[]byte) *tiffWriter {
	w.chunks, w.tiled = chunks, true
	return w
}

func (w *tiffWriter) bytes() []byte {
	offSize := 4
	if w.big {
		offSize = 8
	}
	hdrLen := 8
	if w.big {
		hdrLen = 16
	}
	buf := make([]byte, hdrLen)

	offsets := make([]uint64, len(w.chunks))
	counts := make([]uint64, len(w.chunks))
	for i, c := range w.chunks {
		offsets[i] = uint64(len(buf))
		counts[i] = uint64(len(c))
		buf = append(buf, c...)
	}

	fields := append([]testField{}, w.fields...)
	offTag, countTag := tagStripOffsets, tagStripByteCounts
	if w.tiled {
		offTag, countTag = tagTileOffsets, tagTileByteCounts
	}
	if len(w.chunks) > 0 {
		fields = append(fields, w.offsetField(offTag, offsets), w.offsetField(countTag, counts))
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	// Out-of-line values go before the directory.
	extOff := make([]uint64, len(fields))
	for i, f := range fields {
		if len(f.data) > offSize {
			if len(buf)%2 == 1 {
				buf = append(buf, 0)
			}
			extOff[i] = uint64(len(buf))
			buf = append(buf, f.data...)
		}
	}
	if len(buf)%2 == 1 {
		buf = append(buf, 0)
	}

	ifdOff := uint64(len(buf))
	if w.big {
		buf = w.order.AppendUint64(buf, uint64(len(fields)))
	} else {
		buf = w.order.AppendUint16(buf, uint16(len(fields)))
	}
	for i, f := range fields {
		buf = w.order.AppendUint16(buf, f.tag)
		buf = w.order.AppendUint16(buf, f.typ)
		value := make([]byte, offSize)
		if len(f.data) > offSize {
			if w.big {
				w.order.PutUint64(value, extOff[i])
			} else {
				w.order.PutUint32(value, uint32(extOff[i]))
			}
		} else {
			copy(value, f.data)
		}
		if w.big {
			buf = w.order.AppendUint64(buf, f.count)
		} else {
			buf = w.order.AppendUint32(buf, uint32(f.count))
		}
		buf = append(buf, value...)
	}
	buf = append(buf, make([]byte, offSize)...) // no next IFD

	if w.order == binary.LittleEndian {
		copy(buf, "II")
	} else {
		copy(buf, "MM")
	}
	if w.big {
		w.order.PutUint16(buf[2:], magicBig)
		w.order.PutUint16(buf[4:], 8)
		w.order.PutUint64(buf[8:], ifdOff)
	} else {
		w.order.PutUint16(buf[2:], magicClassic)
		w.order.PutUint32(buf[4:], uint32(ifdOff))
	}
	return buf
}

func (w *tiffWriter) offsetField(tag uint16, vals []uint64) testField {
	if w.big {
		b := make([]byte, 0, 8*len(vals))
		for _, v := range vals {
			b = w.order.AppendUint64(b, v)
		}
		return testField{tag, typeLong8, uint64(len(vals)), b}
	}
	b := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		b = w.order.AppendUint32(b, uint32(v))
	}
	return testField{tag, typeLong, uint64(len(vals)), b}
}

func u16s(order byteOrder, vals ...uint16) []byte {
	var b []byte
	for _, v := range vals {
		b = order.AppendUint16(b, v)
	}
	return b
}

func deflate(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(b)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readNodes(t *testing.T, fs billy.Filesystem, name string) []*structure.Node {
	t.Helper()
	var nodes []*structure.Node
	err := Reader{}.Read(fs, name, func(n *structure.Node) error {
		nodes = append(nodes, n)
		return nil
	})
	require.NoError(t, err)
	return nodes
}

func store(t *testing.T, fs billy.Filesystem, name string, b []byte) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, name, b, 0o644))
}

// band1 and band2 are the two samples of a 3x2 uint16 image.
var (
	band1 = []uint16{1, 2, 3, 4, 5, 6}
	band2 = []uint16{10, 20, 30, 40, 50, 60}
)

// chunkyStrips is the reference layout: little-endian, uncompressed,
// interleaved samples, one row per strip, fully georeferenced.
func chunkyStrips() []byte {
	le := binary.LittleEndian
	row := func(y int) []byte {
		var vals []uint16
		for x := 0; x < 3; x++ {
			vals = append(vals, band1[y*3+x], band2[y*3+x])
		}
		return u16s(le, vals...)
	}
	return newTIFF(le, false).
		longs(tagImageWidth, 3).
		longs(tagImageLength, 2).
		shorts(tagBitsPerSample, 16, 16).
		shorts(tagCompression, compressionNone).
		shorts(tagPhotometric, 1).
		shorts(tagSamplesPerPixel, 2).
		longs(tagRowsPerStrip, 1).
		shorts(tagPlanarConfiguration, 1).
		shorts(tagSampleFormat, sampleUint, sampleUint).
		ascii(tagSoftware, "writer 1.0").
		ascii(tagDateTime, "2024:01:01 00:00:00").
		doubles(tagModelPixelScale, 0.5, 0.25, 0).
		doubles(tagModelTiepoint, 0, 0, 0, 100, 50, 0).
		shorts(tagGeoKeyDirectory,
			1, 1, 0, 4,
			1024, 0, 1, 2, // GTModelTypeGeoKey = geographic
			1026, tagGeoASCIIParams, 6, 0, // GTCitationGeoKey
			2048, 0, 1, 4326, // GeographicTypeGeoKey
			2057, tagGeoDoubleParams, 1, 0, // GeogSemiMajorAxisGeoKey
		).
		doubles(tagGeoDoubleParams, 6378137).
		ascii(tagGeoASCIIParams, "WGS 84|").
		ascii(tagGDALMetadata, `<GDALMetadata>
  <Item name="AREA_OR_POINT">Area</Item>
  <Item name="long_name" sample="1">reflectance</Item>
  <Item name="SCALE" sample="0" role="scale">1</Item>
</GDALMetadata>`).
		ascii(tagGDALNoData, "0").
		strips(row(0), row(1)).
		bytes()
}

func TestReadChunkyStrips(t *testing.T) {
	fs := memfs.New()
	store(t, fs, "ref.tif", chunkyStrips())

	nodes := readNodes(t, fs, "ref.tif")
	require.Len(t, nodes, 3)

	root := nodes[0]
	assert.Equal(t, "/", root.Path)
	assert.Equal(t, structure.KindGroup, root.Kind)
	assert.Equal(t, []string{"y", "x"}, root.Dimensions)
	assert.Nil(t, root.Array)

	a := root.Attributes
	assert.Equal(t, uint64(3), a["width"])
	assert.Equal(t, uint64(2), a["height"])
	assert.Equal(t, uint64(2), a["bands"])
	assert.Equal(t, uint64(16), a["bits_per_sample"])
	assert.Equal(t, "uint", a["sample_format"])
	assert.Equal(t, "writer 1.0", a["Software"])
	assert.Equal(t, []float64{100, 0.5, 0, 50, 0, -0.25}, a["transform"])
	assert.Equal(t, uint16(2), a["GTModelTypeGeoKey"])
	assert.Equal(t, uint16(4326), a["GeographicTypeGeoKey"])
	assert.Equal(t, "WGS 84", a["GTCitationGeoKey"])
	assert.Equal(t, 6378137.0, a["GeogSemiMajorAxisGeoKey"])
	assert.Equal(t, "Area", a["AREA_OR_POINT"])

	b1, b2 := nodes[1], nodes[2]
	assert.Equal(t, "/band_1", b1.Path)
	assert.Equal(t, "/band_2", b2.Path)
	assert.Equal(t, structure.KindBand, b1.Kind)
	assert.Equal(t, []string{"y", "x"}, b1.Dimensions)
	assert.Equal(t, []uint64{2, 3}, b1.Array.Shape)
	assert.Equal(t, band1, b1.Array.Values)
	assert.Equal(t, band2, b2.Array.Values)
	assert.Equal(t, 0.0, b1.Array.Fill)
	assert.Equal(t, map[string]any{"SCALE": "1"}, b1.Attributes)
	assert.Equal(t, map[string]any{"long_name": "reflectance"}, b2.Attributes)
}

func TestReadLayoutsAgree(t *testing.T) {
	be := binary.BigEndian

	// Big-endian BigTIFF, separate planes, 2x2 tiles, deflate with
	// horizontal differencing.
	tile := func(band []uint16, tx int) []byte {
		var vals []uint16
		for y := 0; y < 2; y++ {
			prev := uint16(0)
			for x := tx * 2; x < tx*2+2; x++ {
				v := uint16(0) // padding outside the image
				if x < 3 {
					v = band[y*3+x]
				}
				vals = append(vals, v-prev)
				prev = v
			}
		}
		return deflate(t, u16s(be, vals...))
	}
	planar := newTIFF(be, true).
		longs(tagImageWidth, 3).
		longs(tagImageLength, 2).
		shorts(tagBitsPerSample, 16, 16).
		shorts(tagCompression, compressionDeflate).
		shorts(tagSamplesPerPixel, 2).
		shorts(tagPlanarConfiguration, 2).
		shorts(tagPredictor, 2).
		longs(tagTileWidth, 2).
		longs(tagTileLength, 2).
		tiles(tile(band1, 0), tile(band1, 1), tile(band2, 0), tile(band2, 1)).
		bytes()

	fs := memfs.New()
	store(t, fs, "ref.tif", chunkyStrips())
	store(t, fs, "planar.tif", planar)

	ref := readNodes(t, fs, "ref.tif")
	got := readNodes(t, fs, "planar.tif")
	require.Len(t, got, 3)
	assert.Equal(t, ref[1].Array.Values, got[1].Array.Values)
	assert.Equal(t, ref[2].Array.Values, got[2].Array.Values)
	assert.Equal(t, ref[1].Array.Shape, got[1].Array.Shape)
	assert.Nil(t, got[1].Array.Fill)
}

func TestReadPackBitsFloat(t *testing.T) {
	le := binary.LittleEndian
	var raw []byte
	for _, v := range []float32{1.5, 1.5, 1.5, -2} {
		raw = le.AppendUint32(raw, math.Float32bits(v))
	}
	// A literal run of all 16 bytes, as the simplest valid encoding.
	packed := append([]byte{15}, raw...)

	img := newTIFF(le, false).
		longs(tagImageWidth, 2).
		longs(tagImageLength, 2).
		shorts(tagBitsPerSample, 32).
		shorts(tagCompression, compressionPackBits).
		shorts(tagSampleFormat, sampleFloat).
		ascii(tagGDALNoData, "-2").
		strips(packed).
		bytes()

	fs := memfs.New()
	store(t, fs, "f.tif", img)
	nodes := readNodes(t, fs, "f.tif")
	require.Len(t, nodes, 2)
	assert.Equal(t, "float", nodes[0].Attributes["sample_format"])
	assert.Equal(t, []float32{1.5, 1.5, 1.5, -2}, nodes[1].Array.Values)
	assert.Equal(t, -2.0, nodes[1].Array.Fill)
}

func TestReadLZW(t *testing.T) {
	pixels := []byte{9, 9, 9, 9, 8, 7, 6, 5, 9, 9, 9, 9}

	// Short inputs never reach a code-width change, so the standard
	// library encoder produces a stream TIFF readers accept.
	var buf bytes.Buffer
	lw := lzw.NewWriter(&buf, lzw.MSB, 8)
	_, err := lw.Write(pixels)
	require.NoError(t, err)
	require.NoError(t, lw.Close())

	img := newTIFF(binary.LittleEndian, false).
		longs(tagImageWidth, 4).
		longs(tagImageLength, 3).
		shorts(tagBitsPerSample, 8).
		shorts(tagCompression, compressionLZW).
		shorts(tagSampleFormat, sampleInt).
		strips(buf.Bytes()).
		bytes()

	fs := memfs.New()
	store(t, fs, "l.tif", img)
	nodes := readNodes(t, fs, "l.tif")
	require.Len(t, nodes, 2)
	assert.Equal(t, []int8{9, 9, 9, 9, 8, 7, 6, 5, 9, 9, 9, 9}, nodes[1].Array.Values)
}

func TestReadEncodedByImageLibrary(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 5, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(y*5 + x)})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate}))

	fs := memfs.New()
	store(t, fs, "gray.tif", buf.Bytes())
	nodes := readNodes(t, fs, "gray.tif")
	require.Len(t, nodes, 2)

	want := make([]uint8, 15)
	for i := range want {
		want[i] = uint8(i)
	}
	assert.Equal(t, want, nodes[1].Array.Values)
	assert.Equal(t, []uint64{3, 5}, nodes[1].Array.Shape)
}

func TestReadErrors(t *testing.T) {
	le := binary.LittleEndian
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{
			name: "not a tiff",
			data: []byte("col_a,col_b\n1,2\n"),
			want: structure.ErrUnreadable,
		},
		{
			name: "bad magic",
			data: []byte{'I', 'I', 41, 0, 8, 0, 0, 0},
			want: structure.ErrUnreadable,
		},
		{
			name: "no directory",
			data: []byte{'I', 'I', 42, 0, 0, 0, 0, 0},
			want: structure.ErrMissingStructure,
		},
		{
			name: "directory past end",
			data: []byte{'I', 'I', 42, 0, 0xff, 0, 0, 0},
			want: structure.ErrUnreadable,
		},
		{
			name: "missing width",
			data: newTIFF(le, false).longs(tagImageLength, 1).shorts(tagBitsPerSample, 8).strips([]byte{1}).bytes(),
			want: structure.ErrMissingStructure,
		},
		{
			name: "missing offsets",
			data: newTIFF(le, false).longs(tagImageWidth, 1).longs(tagImageLength, 1).shorts(tagBitsPerSample, 8).bytes(),
			want: structure.ErrMissingStructure,
		},
		{
			name: "jpeg compression",
			data: newTIFF(le, false).longs(tagImageWidth, 1).longs(tagImageLength, 1).
				shorts(tagBitsPerSample, 8).shorts(tagCompression, 7).strips([]byte{1}).bytes(),
			want: structure.ErrUnreadable,
		},
		{
			name: "short strip",
			data: newTIFF(le, false).longs(tagImageWidth, 4).longs(tagImageLength, 1).
				shorts(tagBitsPerSample, 8).strips([]byte{1, 2}).bytes(),
			want: structure.ErrUnreadable,
		},
		{
			name: "one bit samples",
			data: newTIFF(le, false).longs(tagImageWidth, 8).longs(tagImageLength, 1).
				shorts(tagBitsPerSample, 1).strips([]byte{0xff}).bytes(),
			want: structure.ErrUnreadable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := memfs.New()
			store(t, fs, "bad.tif", tt.data)
			err := Reader{}.Read(fs, "bad.tif", func(*structure.Node) error { return nil })
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	err := Reader{}.Read(memfs.New(), "absent.tif", func(*structure.Node) error { return nil })
	assert.ErrorIs(t, err, structure.ErrUnreadable)
}

func TestUnpackBits(t *testing.T) {
	// Literal of 2, repeat of 3, no-op, literal of 1.
	got, err := unpackBits([]byte{1, 'a', 'b', 0xfe, 'c', 0x80, 0, 'd'}, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcccd"), got)

	_, err = unpackBits([]byte{5, 'a'}, 6)
	assert.Error(t, err)
}
