package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/image/tiff/lzw"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/filter"
	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

// raster describes how the pixels of the first image are stored.
type raster struct {
	width, height int
	samples       int
	bytesPer      int // bytes per sample
	format        uint64
	planar        uint64
	compression   uint64
	predictor     uint64

	tiles          bool
	chunkW, chunkH int
	offsets        []uint64
	counts         []uint64
}

func newRaster(d *ifd) (*raster, error) {
	w, h := d.uint(tagImageWidth, 0), d.uint(tagImageLength, 0)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: missing ImageWidth or ImageLength", structure.ErrMissingStructure)
	}
	if w*h > maxFieldSize {
		return nil, fmt.Errorf("%w: image of %dx%d pixels", structure.ErrUnreadable, w, h)
	}

	r := &raster{
		width:       int(w),
		height:      int(h),
		samples:     int(d.uint(tagSamplesPerPixel, 1)),
		format:      d.uint(tagSampleFormat, sampleUint),
		planar:      d.uint(tagPlanarConfiguration, 1),
		compression: d.uint(tagCompression, compressionNone),
		predictor:   d.uint(tagPredictor, 1),
	}
	if r.samples < 1 {
		return nil, fmt.Errorf("%w: SamplesPerPixel %d", structure.ErrUnreadable, r.samples)
	}

	bits, _ := d.uints(tagBitsPerSample)
	if len(bits) == 0 {
		bits = []uint64{1}
	}
	for _, b := range bits[1:] {
		if b != bits[0] {
			return nil, fmt.Errorf("%w: mixed BitsPerSample %v", structure.ErrUnreadable, bits)
		}
	}
	switch bits[0] {
	case 8, 16, 32, 64:
		r.bytesPer = int(bits[0] / 8)
	default:
		return nil, fmt.Errorf("%w: %d bits per sample", structure.ErrUnreadable, bits[0])
	}
	if r.format == sampleFloat && r.bytesPer < 4 {
		return nil, fmt.Errorf("%w: %d-bit floats", structure.ErrUnreadable, bits[0])
	}
	if r.format != sampleUint && r.format != sampleInt && r.format != sampleFloat {
		return nil, fmt.Errorf("%w: sample format %d", structure.ErrUnreadable, r.format)
	}
	if r.planar != 1 && r.planar != 2 {
		return nil, fmt.Errorf("%w: planar configuration %d", structure.ErrUnreadable, r.planar)
	}
	if r.predictor != 1 && r.predictor != 2 {
		return nil, fmt.Errorf("%w: predictor %d", structure.ErrUnreadable, r.predictor)
	}

	if d.has(tagTileWidth) {
		r.tiles = true
		r.chunkW = int(d.uint(tagTileWidth, 0))
		r.chunkH = int(d.uint(tagTileLength, 0))
		r.offsets, _ = d.uints(tagTileOffsets)
		r.counts, _ = d.uints(tagTileByteCounts)
	} else {
		r.chunkW = r.width
		r.chunkH = int(d.uint(tagRowsPerStrip, h))
		if r.chunkH > r.height {
			r.chunkH = r.height
		}
		r.offsets, _ = d.uints(tagStripOffsets)
		r.counts, _ = d.uints(tagStripByteCounts)
	}
	if r.chunkW <= 0 || r.chunkH <= 0 {
		return nil, fmt.Errorf("%w: chunk size %dx%d", structure.ErrUnreadable, r.chunkW, r.chunkH)
	}
	if len(r.offsets) == 0 {
		return nil, fmt.Errorf("%w: missing strip or tile offsets", structure.ErrMissingStructure)
	}
	want := r.chunksPerPlane() * r.planes()
	if len(r.offsets) < want || len(r.counts) < want {
		return nil, fmt.Errorf("%w: %d chunk offsets and %d byte counts, want %d",
			structure.ErrMissingStructure, len(r.offsets), len(r.counts), want)
	}
	return r, nil
}

func (r *raster) across() int { return (r.width + r.chunkW - 1) / r.chunkW }
func (r *raster) down() int   { return (r.height + r.chunkH - 1) / r.chunkH }

func (r *raster) chunksPerPlane() int { return r.across() * r.down() }

func (r *raster) planes() int {
	if r.planar == 2 {
		return r.samples
	}
	return 1
}

// chunkSamples is the number of interleaved samples per pixel in a chunk.
func (r *raster) chunkSamples() int {
	if r.planar == 2 {
		return 1
	}
	return r.samples
}

// bands decodes every chunk and returns one buffer per sample, each
// holding height*width samples in file byte order.
func (r *raster) bands(rd *binpkg.Reader) ([][]byte, error) {
	out := make([][]byte, r.samples)
	for i := range out {
		out[i] = make([]byte, r.width*r.height*r.bytesPer)
	}

	per := r.chunksPerPlane()
	spc := r.chunkSamples()
	rowBytes := r.chunkW * spc * r.bytesPer

	for i := 0; i < per*r.planes(); i++ {
		plane, j := i/per, i%per
		cy, cx := j/r.across(), j%r.across()

		rows := r.chunkH
		if !r.tiles && (cy+1)*r.chunkH > r.height {
			rows = r.height - cy*r.chunkH
		}

		raw, err := rd.At(int64(r.offsets[i])).ReadBytes(int(r.counts[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: reading chunk %d: %v", structure.ErrUnreadable, i, err)
		}
		data, err := r.decompress(raw, rows*rowBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", structure.ErrUnreadable, i, err)
		}
		if len(data) < rows*rowBytes {
			return nil, fmt.Errorf("%w: chunk %d holds %d bytes, want %d",
				structure.ErrUnreadable, i, len(data), rows*rowBytes)
		}
		if r.predictor == 2 {
			for row := 0; row < rows; row++ {
				undoDifferencing(data[row*rowBytes:(row+1)*rowBytes], spc, r.bytesPer, rd.ByteOrder())
			}
		}

		for row := 0; row < rows; row++ {
			y := cy*r.chunkH + row
			if y >= r.height {
				break
			}
			for col := 0; col < r.chunkW; col++ {
				x := cx*r.chunkW + col
				if x >= r.width {
					break
				}
				dst := (y*r.width + x) * r.bytesPer
				for s := 0; s < spc; s++ {
					band := s
					if r.planar == 2 {
						band = plane
					}
					src := row*rowBytes + (col*spc+s)*r.bytesPer
					copy(out[band][dst:dst+r.bytesPer], data[src:src+r.bytesPer])
				}
			}
		}
	}
	return out, nil
}

func (r *raster) decompress(raw []byte, want int) ([]byte, error) {
	switch r.compression {
	case compressionNone:
		return raw, nil
	case compressionLZW:
		lr := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer lr.Close()
		out, err := io.ReadAll(lr)
		// Some writers omit the end-of-information code.
		if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && len(out) >= want) {
			return nil, fmt.Errorf("lzw: %w", err)
		}
		return out, nil
	case compressionDeflate, compressionDeflateOld:
		return filter.NewDeflate(nil).Decode(raw)
	case compressionPackBits:
		return unpackBits(raw, want)
	}
	return nil, fmt.Errorf("compression %d not supported", r.compression)
}

// unpackBits decodes Apple PackBits run-length encoding.
func unpackBits(src []byte, want int) ([]byte, error) {
	out := make([]byte, 0, want)
	for i := 0; i < len(src); {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(src) {
				return nil, errors.New("packbits: literal run past end")
			}
			out = append(out, src[i:i+n+1]...)
			i += n + 1
		case n != -128:
			if i >= len(src) {
				return nil, errors.New("packbits: repeat run past end")
			}
			for k := 0; k < 1-n; k++ {
				out = append(out, src[i])
			}
			i++
		}
	}
	return out, nil
}

// undoDifferencing reverses horizontal differencing (predictor 2) on one
// row of samples.
func undoDifferencing(row []byte, stride, size int, order binary.ByteOrder) {
	n := len(row) / size
	for i := stride; i < n; i++ {
		cur, prev := row[i*size:(i+1)*size], row[(i-stride)*size:(i-stride+1)*size]
		switch size {
		case 1:
			cur[0] += prev[0]
		case 2:
			order.PutUint16(cur, order.Uint16(cur)+order.Uint16(prev))
		case 4:
			order.PutUint32(cur, order.Uint32(cur)+order.Uint32(prev))
		case 8:
			order.PutUint64(cur, order.Uint64(cur)+order.Uint64(prev))
		}
	}
}

// typed converts a band buffer into the Go slice matching the sample
// format.
func (r *raster) typed(buf []byte, order binary.ByteOrder) any {
	n := len(buf) / r.bytesPer
	switch r.format {
	case sampleInt:
		switch r.bytesPer {
		case 1:
			return convert(buf, n, func(b []byte) int8 { return int8(b[0]) })
		case 2:
			return convert(buf, n, func(b []byte) int16 { return int16(order.Uint16(b)) })
		case 4:
			return convert(buf, n, func(b []byte) int32 { return int32(order.Uint32(b)) })
		default:
			return convert(buf, n, func(b []byte) int64 { return int64(order.Uint64(b)) })
		}
	case sampleFloat:
		if r.bytesPer == 4 {
			return convert(buf, n, func(b []byte) float32 { return math.Float32frombits(order.Uint32(b)) })
		}
		return convert(buf, n, func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) })
	default:
		switch r.bytesPer {
		case 1:
			return append([]uint8{}, buf...)
		case 2:
			return convert(buf, n, order.Uint16)
		case 4:
			return convert(buf, n, order.Uint32)
		default:
			return convert(buf, n, order.Uint64)
		}
	}
}

func convert[T any](buf []byte, n int, at func([]byte) T) []T {
	out := make([]T, n)
	size := len(buf) / max(n, 1)
	for i := range out {
		out[i] = at(buf[i*size : (i+1)*size])
	}
	return out
}
