package filter

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"math/bits"
	"testing"

	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

func TestDeflateReadsZlib(t *testing.T) {
	original := []byte("surface_temperature surface_temperature surface_temperature")

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(original)
	w.Close()

	got, err := NewDeflate(nil).Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("got %q, want %q", got, original)
	}
}

func TestDeflateCorrupt(t *testing.T) {
	if _, err := NewDeflate(nil).Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected an error for a non-zlib stream")
	}
}

func TestShuffle(t *testing.T) {
	original := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x11, 0x12, 0x13, 0x14,
		0x21, 0x22, 0x23, 0x24,
		0x31, 0x32, 0x33, 0x34,
		0xAA, 0xBB, // trailing partial element
	}
	shuffled := []byte{
		0x01, 0x11, 0x21, 0x31,
		0x02, 0x12, 0x22, 0x32,
		0x03, 0x13, 0x23, 0x33,
		0x04, 0x14, 0x24, 0x34,
		0xAA, 0xBB,
	}

	f := NewShuffle([]uint32{4})
	enc, _ := f.Encode(original)
	if !bytes.Equal(enc, shuffled) {
		t.Errorf("Encode:\ngot  %x\nwant %x", enc, shuffled)
	}
	dec, _ := f.Decode(shuffled)
	if !bytes.Equal(dec, original) {
		t.Errorf("Decode:\ngot  %x\nwant %x", dec, original)
	}
}

func TestShuffleSingleByte(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	result, _ := NewShuffle([]uint32{1}).Decode(data)
	if !bytes.Equal(result, data) {
		t.Errorf("single-byte shuffle changed the data: %v", result)
	}
}

func TestFletcher32(t *testing.T) {
	data := []byte("test data for checksum")
	f := NewFletcher32(nil)

	enc, err := f.Encode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc) != len(data)+4 {
		t.Fatalf("encoded %d bytes", len(enc))
	}
	dec, err := f.Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(dec, data) {
		t.Errorf("got %q", dec)
	}

	swapped := binary.LittleEndian.AppendUint32(append([]byte(nil), data...), bits.ReverseBytes32(binpkg.Fletcher32(data)))
	if _, err := f.Decode(swapped); err != nil {
		t.Errorf("byte-swapped checksum: %v", err)
	}

	enc[0] ^= 0xFF
	if _, err := f.Decode(enc); err == nil {
		t.Error("expected a checksum mismatch")
	}
	if _, err := f.Decode([]byte{1, 2}); err == nil {
		t.Error("expected an error for a short chunk")
	}
}

func TestEmptyPipeline(t *testing.T) {
	p := NewPipeline(nil)
	if !p.Empty() {
		t.Error("expected an empty pipeline")
	}
	data := []byte("unchanged")
	got, err := p.Decode(data, 0)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("Decode = %q, %v", got, err)
	}
}

func TestStandardPipelineRoundTrip(t *testing.T) {
	data := make([]byte, 4000)
	for i := range data {
		data[i] = byte(i / 40)
	}
	p := Standard(4, 6)
	if p.Len() != 2 {
		t.Fatalf("Len = %d", p.Len())
	}

	enc, mask, err := p.Encode(data)
	if err != nil {
		t.Fatal(err)
	}
	if mask != 0 {
		t.Errorf("mask = %b", mask)
	}
	if len(enc) >= len(data) {
		t.Errorf("compressed %d bytes to %d", len(data), len(enc))
	}
	dec, err := p.Decode(enc, mask)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, data) {
		t.Error("round trip changed the data")
	}

	msg := p.Message()
	if len(msg.Filters) != 2 || msg.Filters[1].ID != message.FilterDeflate {
		t.Errorf("message = %+v", msg)
	}
}

func TestPipelineFilterMask(t *testing.T) {
	p := NewPipeline(&message.FilterPipeline{Filters: []message.FilterInfo{
		{ID: message.FilterShuffle, ClientData: []uint32{2}},
	}})
	data := []byte{1, 2, 3, 4}
	got, err := p.Decode(data, 0x01)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("a masked filter changed the data")
	}
}

func TestUnsupportedFilter(t *testing.T) {
	p := NewPipeline(&message.FilterPipeline{Filters: []message.FilterInfo{
		{ID: message.FilterSZIP},
		{ID: message.FilterShuffle, ClientData: []uint32{2}},
	}})

	if _, err := p.Decode([]byte{1, 2}, 0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
	// The chunk skipped szip, so it decodes.
	if _, err := p.Decode([]byte{1, 2}, 0x01); err != nil {
		t.Errorf("masked szip: %v", err)
	}
	if _, _, err := p.Encode([]byte{1, 2}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Encode err = %v, want ErrUnsupported", err)
	}
}

func TestOptionalFilterSkippedOnEncode(t *testing.T) {
	p := NewPipeline(&message.FilterPipeline{Filters: []message.FilterInfo{
		{ID: 32001, Flags: message.FilterOptional, Name: "blosc"},
		{ID: message.FilterFletcher32},
	}})
	enc, mask, err := p.Encode([]byte{9, 9})
	if err != nil {
		t.Fatal(err)
	}
	if mask != 0x01 {
		t.Errorf("mask = %b, want 1", mask)
	}
	dec, err := p.Decode(enc, mask)
	if err != nil || !bytes.Equal(dec, []byte{9, 9}) {
		t.Errorf("Decode = %v, %v", dec, err)
	}
}

func TestName(t *testing.T) {
	if Name(message.FilterDeflate) != "deflate" || Name(32001) != "filter 32001" {
		t.Errorf("names: %q %q", Name(message.FilterDeflate), Name(32001))
	}
}
