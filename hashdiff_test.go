package hashdiff

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/robert-malhotra/go-hashdiff/internal/hdf5"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// granule describes a small netCDF-style fixture.
type granule struct {
	history     string
	comment     string
	temperature []float64
	// reversed creates the variables in the opposite order.
	reversed bool
	// netcdf marks the root group the way the netCDF-4 library does.
	netcdf bool
	// ncProperties overrides the library version string netcdf writes.
	ncProperties string
}

func defaultGranule() granule {
	return granule{
		history:     "created by run A",
		comment:     "first pass",
		temperature: []float64{1.0, 2.0},
	}
}

func writeGranule(t *testing.T, fs billy.Filesystem, name string, g granule) {
	t.Helper()

	f, err := hdf5.Create(fs, name)
	require.NoError(t, err)
	root := f.Root()
	require.NoError(t, root.SetAttr("history", g.history))
	require.NoError(t, root.SetAttr("comment", g.comment))
	require.NoError(t, root.SetAttr("title", "fixture"))
	if g.netcdf {
		props := g.ncProperties
		if props == "" {
			props = "version=2,netcdf=4.9.2"
		}
		require.NoError(t, root.SetAttr("_NCProperties", props))
	}

	makeTime := func() uint64 {
		ds, err := root.CreateDataset("time", []float64{0, 1},
			hdf5.WithAttribute("CLASS", "DIMENSION_SCALE"),
			hdf5.WithAttribute("NAME", "time"),
			hdf5.WithAttribute("_Netcdf4Dimid", int32(0)),
		)
		require.NoError(t, err)
		return ds.Address()
	}
	makeGroup := func() {
		grp, err := root.CreateGroup("ancillary")
		require.NoError(t, err)
		_, err = grp.CreateDataset("flags", []uint8{1, 0},
			hdf5.WithAttribute("_Netcdf4Coordinates", []int32{0}),
		)
		require.NoError(t, err)
	}

	if g.reversed {
		makeGroup()
	}
	timeAddr := makeTime()
	_, err = root.CreateDataset("temperature", g.temperature,
		hdf5.WithAttribute("units", "K"),
		hdf5.WithAttribute("_FillValue", float64(-9999)),
		hdf5.WithReferenceList("DIMENSION_LIST", []uint64{timeAddr}),
	)
	require.NoError(t, err)
	if !g.reversed {
		makeGroup()
	}

	require.NoError(t, f.Close())
}

func writeGeoTIFF(t *testing.T, fs billy.Filesystem, name string, shift uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(y*4+x) + shift})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, nil))
	require.NoError(t, util.WriteFile(fs, name, buf.Bytes(), 0o644))
}

func onMem(fs billy.Filesystem) Option {
	return WithFilesystem(fs)
}

func TestGetHashes(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())

	doc, err := GetHashes("a.nc", onMem(fs))
	require.NoError(t, err)

	keys := make([]string, 0, len(doc))
	for k, e := range doc {
		keys = append(keys, k)
		assert.False(t, e.IsDoc())
		assert.Len(t, e.Digest, 64)
		assert.Equal(t, strings.ToLower(e.Digest), e.Digest)
	}
	assert.ElementsMatch(t, []string{"/", "/ancillary", "/ancillary/flags", "/temperature", "/time"}, keys)
}

func TestGetHashesDeterministic(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())

	first, err := GetHashes("a.nc", onMem(fs))
	require.NoError(t, err)
	second, err := GetHashes("a.nc", onMem(fs))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCreationOrderDoesNotMatter(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())
	g := defaultGranule()
	g.reversed = true
	writeGranule(t, fs, "b.nc", g)

	a, err := GetHashes("a.nc", onMem(fs))
	require.NoError(t, err)
	b, err := GetHashes("b.nc", onMem(fs))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHistoryIsIgnored(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())
	g := defaultGranule()
	g.history = "created by run B"
	writeGranule(t, fs, "b.nc", g)

	require.NoError(t, CreateHashFile("a.nc", "a.json", onMem(fs)))
	ok, err := MatchesReferenceHashFile("b.nc", "a.json", onMem(fs))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChangedValueIsReported(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())
	g := defaultGranule()
	g.temperature = []float64{1.0, 2.1}
	writeGranule(t, fs, "b.nc", g)

	require.NoError(t, CreateNC4HashFile("a.nc", "a.json", onMem(fs)))

	ok, err := NC4MatchesReferenceHashFile("b.nc", "a.json", onMem(fs))
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := CompareFile("b.nc", "a.json", onMem(fs))
	require.NoError(t, err)
	require.Len(t, c.Differences, 1)
	assert.Equal(t, "/temperature", c.Differences[0].Path)
	assert.Equal(t, DiffChanged, c.Differences[0].Kind)
}

func TestMatchesOwnReference(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.h5", defaultGranule())

	require.NoError(t, CreateH5HashFile("a.h5", "a.json", onMem(fs)))
	ok, err := H5MatchesReferenceHashFile("a.h5", "a.json", onMem(fs))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNetCDFWrittenHDF5(t *testing.T) {
	fs := memfs.New()
	g := defaultGranule()
	g.netcdf = true
	g.ncProperties = "version=2,netcdf=4.9.2,hdf5=1.14.3"
	writeGranule(t, fs, "old.h5", g)
	g.ncProperties = "version=2,netcdf=4.9.3,hdf5=1.14.6"
	writeGranule(t, fs, "new.h5", g)

	older, err := GetHashesFromH5File("old.h5", onMem(fs))
	require.NoError(t, err)
	newer, err := GetHashesFromH5File("new.h5", onMem(fs))
	require.NoError(t, err)
	assert.True(t, CompareDocuments(newer, older).Equal(), "library versions changed the document")

	nc4, err := GetHashesFromNC4File("old.h5", onMem(fs))
	require.NoError(t, err)
	assert.Equal(t, nc4, older)

	require.NoError(t, CreateNC4HashFile("old.h5", "ref.json", onMem(fs)))
	ok, err := H5MatchesReferenceHashFile("new.h5", "ref.json", onMem(fs))
	require.NoError(t, err)
	assert.True(t, ok)
}

// writeObservations writes a compound dataset whose records point at
// /time. pad shifts every object to a different file address.
func writeObservations(t *testing.T, fs billy.Filesystem, name string, pad int, lat float32) {
	t.Helper()
	f, err := hdf5.Create(fs, name)
	require.NoError(t, err)
	root := f.Root()
	if pad > 0 {
		_, err = root.CreateDataset("padding", make([]float64, pad))
		require.NoError(t, err)
	}
	timeDS, err := root.CreateDataset("time", []float64{0, 1})
	require.NoError(t, err)

	obs, err := root.CreateDatasetWithType("obs", []uint64{1}, message.NewCompoundDatatype(16, []message.CompoundMember{
		{Name: "lat", ByteOffset: 0, Type: message.NewFloatDatatype(4, message.OrderLE)},
		{Name: "at", ByteOffset: 8, Type: message.NewObjectReferenceDatatype(8)},
	}))
	require.NoError(t, err)
	require.NoError(t, obs.Write([]map[string]any{{"lat": lat, "at": timeDS.Address()}}))
	require.NoError(t, f.Close())
}

func TestStructuredDatasets(t *testing.T) {
	fs := memfs.New()
	writeObservations(t, fs, "a.h5", 0, 12.5)
	writeObservations(t, fs, "b.h5", 128, 12.5)
	writeObservations(t, fs, "c.h5", 0, 13)

	a, err := GetHashesFromH5File("a.h5", onMem(fs))
	require.NoError(t, err)
	b, err := GetHashesFromH5File("b.h5", onMem(fs))
	require.NoError(t, err)
	c, err := GetHashesFromH5File("c.h5", onMem(fs))
	require.NoError(t, err)

	assert.Equal(t, a["/obs"], b["/obs"], "file addresses must not reach the digest")
	assert.NotEqual(t, a["/obs"].Digest, c["/obs"].Digest)
	assert.Equal(t, a["/time"], c["/time"])
}

func TestUnsortedReference(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())
	doc, err := GetHashesFromNC4File("a.nc", onMem(fs))
	require.NoError(t, err)

	keys := []string{"/time", "/temperature", "/ancillary/flags", "/ancillary", "/"}
	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`"` + k + `":"` + strings.ToUpper(doc[k].Digest) + `"`)
	}
	sb.WriteString("}")
	require.NoError(t, util.WriteFile(fs, "ref.json", []byte(sb.String()), 0o644))

	ok, err := MatchesReferenceHashFile("a.nc", "ref.json", onMem(fs))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSkippedPaths(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())
	g := defaultGranule()
	g.temperature = []float64{5, 6}
	writeGranule(t, fs, "b.nc", g)

	doc, err := GetHashes("a.nc", onMem(fs), WithSkippedPaths("ancillary"))
	require.NoError(t, err)
	assert.NotContains(t, doc, "/ancillary")
	assert.NotContains(t, doc, "/ancillary/flags")

	require.NoError(t, CreateHashFile("a.nc", "a.json", onMem(fs)))
	ok, err := MatchesReferenceHashFile("b.nc", "a.json", onMem(fs), WithSkippedPaths("/temperature"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSkippedAttributes(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())
	g := defaultGranule()
	g.comment = "second pass"
	writeGranule(t, fs, "b.nc", g)

	require.NoError(t, CreateHashFile("a.nc", "a.json", onMem(fs)))

	ok, err := MatchesReferenceHashFile("b.nc", "a.json", onMem(fs))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, CreateHashFile("a.nc", "a-skip.json", onMem(fs), WithSkippedAttributes("Comment")))
	ok, err = MatchesReferenceHashFile("b.nc", "a-skip.json", onMem(fs), WithSkippedAttributes("comment"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilterTableOption(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())
	g := defaultGranule()
	g.history = "created by run B"
	writeGranule(t, fs, "b.nc", g)

	table, err := LoadFilterTable(strings.NewReader("version = 1\n"))
	require.NoError(t, err)

	a, err := GetHashes("a.nc", onMem(fs), WithFilterTable(table))
	require.NoError(t, err)
	b, err := GetHashes("b.nc", onMem(fs), WithFilterTable(table))
	require.NoError(t, err)
	assert.NotEqual(t, a["/"].Digest, b["/"].Digest)
	assert.Equal(t, a["/temperature"], b["/temperature"])
}

func TestGeoTIFF(t *testing.T) {
	fs := memfs.New()
	writeGeoTIFF(t, fs, "a.tif", 0)
	writeGeoTIFF(t, fs, "b.tif", 1)

	doc, err := GetHashFromGeoTIFFFile("a.tif", onMem(fs))
	require.NoError(t, err)
	assert.Len(t, doc, 2)
	assert.Contains(t, doc, "/")
	assert.Contains(t, doc, "/band_1")

	require.NoError(t, CreateGeoTIFFHashFile("a.tif", "a.json", onMem(fs)))
	ok, err := GeoTIFFMatchesReferenceHashFile("a.tif", "a.json", onMem(fs))
	require.NoError(t, err)
	assert.True(t, ok)

	c, err := CompareFile("b.tif", "a.json", onMem(fs))
	require.NoError(t, err)
	assert.Equal(t, []string{"/band_1"}, c.Paths())
}

func TestDetectFormat(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "plain.bin", defaultGranule())
	nc := defaultGranule()
	nc.netcdf = true
	writeGranule(t, fs, "netcdf.bin", nc)
	writeGeoTIFF(t, fs, "raster.bin", 0)

	tests := []struct {
		name string
		want Format
	}{
		{"granule.H5", FormatHDF5},
		{"granule.he5", FormatHDF5},
		{"granule.nc4", FormatNetCDF4},
		{"raster.TIFF", FormatGeoTIFF},
		{"plain.bin", FormatHDF5},
		{"netcdf.bin", FormatNetCDF4},
		{"raster.bin", FormatGeoTIFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(fs, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "table.csv", []byte("lat,lon\n1,2\n3,4\n"), 0o644))

	_, err := GetHashes("table.csv", onMem(fs))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	var ue *UnsupportedFormatError
	require.True(t, errors.As(err, &ue))
	assert.NotEmpty(t, ue.MIME)

	_, err = MatchesReferenceHashFile("missing.csv", "ref.json", onMem(fs))
	require.Error(t, err)

	_, err = GetHashes("missing.csv", onMem(fs))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFileFormatError(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "bad.h5", []byte("definitely not a superblock"), 0o644))
	writeGeoTIFF(t, fs, "raster.tif", 0)

	_, err := GetHashes("bad.h5", onMem(fs))
	require.ErrorIs(t, err, ErrFileFormat)
	var fe *FileFormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FormatHDF5, fe.Format)

	_, err = GetHashes("raster.tif", onMem(fs), WithFormat(FormatNetCDF4))
	assert.ErrorIs(t, err, ErrFileFormat)

	_, err = GetHashes("absent.nc", onMem(fs))
	assert.ErrorIs(t, err, ErrFileFormat)
}

func TestStructuralError(t *testing.T) {
	fs := memfs.New()
	// A little-endian TIFF header pointing at an IFD with no entries.
	data := []byte{'I', 'I', 42, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	require.NoError(t, util.WriteFile(fs, "empty.tif", data, 0o644))

	_, err := GetHashes("empty.tif", onMem(fs))
	require.ErrorIs(t, err, ErrStructural)
	var se *StructuralError
	assert.True(t, errors.As(err, &se))
}

func TestReferenceDocumentError(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())

	tests := map[string]string{
		"number value":  `{"/": 3}`,
		"not an object": `["/"]`,
		"short digest":  `{"/": "abc"}`,
		"truncated":     `{"/": `,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, util.WriteFile(fs, "ref.json", []byte(body), 0o644))
			_, err := MatchesReferenceHashFile("a.nc", "ref.json", onMem(fs))
			assert.ErrorIs(t, err, ErrReferenceDocument)
		})
	}

	_, err := CompareFile("a.nc", "nowhere.json", onMem(fs))
	assert.ErrorIs(t, err, ErrReferenceDocument)

	_, err = ReadDocument(strings.NewReader("null"))
	assert.ErrorIs(t, err, ErrReferenceDocument)
}

func TestCompareDocuments(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())
	doc, err := GetHashes("a.nc", onMem(fs))
	require.NoError(t, err)

	assert.True(t, CompareDocuments(doc, doc).Equal())

	var buf bytes.Buffer
	require.NoError(t, WriteDocument(&buf, doc))
	loaded, err := ReadDocument(&buf)
	require.NoError(t, err)
	assert.True(t, CompareDocuments(loaded, doc).Equal())

	trimmed := doc.Clone()
	delete(trimmed, "/time")
	c := CompareDocuments(trimmed, doc)
	require.Len(t, c.Differences, 1)
	assert.Equal(t, DiffMissing, c.Differences[0].Kind)
	assert.True(t, CompareDocuments(trimmed, doc, WithSkippedPaths("/time")).Equal())
}

func TestOSFilesystem(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "a.nc")
	ref := filepath.Join(dir, "a.json")
	writeGranule(t, osfs.New("/"), filepath.ToSlash(data), defaultGranule())

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	require.NoError(t, CreateHashFile(data, ref, WithLogger(logger)))
	ok, err := MatchesReferenceHashFile(data, ref, WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := ReadHashFile(ref)
	require.NoError(t, err)
	assert.Contains(t, loaded, "/temperature")
	assert.Contains(t, logs.String(), "built hash document")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":        FormatUnknown,
		"h5":      FormatHDF5,
		"NetCDF4": FormatNetCDF4,
		"tiff":    FormatGeoTIFF,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("grib")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWalk(t *testing.T) {
	fs := memfs.New()
	writeGranule(t, fs, "a.nc", defaultGranule())

	var paths []string
	err := Walk("a.nc", func(n *Node) error {
		paths = append(paths, n.Path)
		if n.Path == "/temperature" {
			assert.Equal(t, []string{"time"}, n.Dimensions)
			assert.Equal(t, []float64{1.0, 2.0}, n.Array.Values)
		}
		return nil
	}, onMem(fs), WithSkippedPaths("/ancillary"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/temperature", "/time"}, paths)

	stop := errors.New("stop")
	err = Walk("a.nc", func(*Node) error { return stop }, onMem(fs))
	assert.ErrorIs(t, err, stop)
}
