package filter

import (
	"fmt"

	"github.com/robert-malhotra/go-hashdiff/internal/message"
)

// Pipeline runs the filters of one dataset. Encoding applies them in
// order; decoding undoes them in reverse.
type Pipeline struct {
	infos   []message.FilterInfo
	filters []Filter // nil where the filter is not implemented
}

// NewPipeline builds the pipeline a filter pipeline message describes. A
// message naming an unimplemented filter still yields a pipeline; only
// chunks that actually went through that filter fail to decode.
func NewPipeline(fp *message.FilterPipeline) *Pipeline {
	p := &Pipeline{}
	if fp == nil {
		return p
	}
	p.infos = fp.Filters
	p.filters = make([]Filter, len(fp.Filters))
	for i, info := range fp.Filters {
		p.filters[i], _ = New(info)
	}
	return p
}

// Decode undoes the pipeline. Bit i of mask set means filter i was skipped
// when the chunk was written.
func (p *Pipeline) Decode(input []byte, mask uint32) ([]byte, error) {
	data := input
	for i := len(p.filters) - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			continue
		}
		f := p.filters[i]
		if f == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, Name(p.infos[i].ID))
		}
		var err error
		if data, err = f.Decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", Name(f.ID()), err)
		}
	}
	return data, nil
}

// Encode applies every filter in order. It returns the encoded data and the
// mask of filters that were skipped: an optional filter that fails is
// skipped, any other failure is an error.
func (p *Pipeline) Encode(input []byte) ([]byte, uint32, error) {
	data := input
	var mask uint32
	for i, f := range p.filters {
		if f == nil {
			if p.infos[i].IsOptional() {
				mask |= 1 << uint(i)
				continue
			}
			return nil, 0, fmt.Errorf("%w: %s", ErrUnsupported, Name(p.infos[i].ID))
		}
		out, err := f.Encode(data)
		if err != nil {
			if p.infos[i].IsOptional() {
				mask |= 1 << uint(i)
				continue
			}
			return nil, 0, fmt.Errorf("%s: %w", Name(f.ID()), err)
		}
		data = out
	}
	return data, mask, nil
}

func (p *Pipeline) Empty() bool { return len(p.filters) == 0 }
func (p *Pipeline) Len() int { return len(p.filters) }

// Message returns the filter pipeline message for p.
func (p *Pipeline) Message() *message.FilterPipeline {
	return &message.FilterPipeline{Version: 2, Filters: p.infos}
}

// Standard returns the pipeline netCDF-4 writes for compressed variables:
// shuffle over elements of elementSize bytes, then deflate at level.
func Standard(elementSize, level int) *Pipeline {
	return NewPipeline(&message.FilterPipeline{Version: 2, Filters: []message.FilterInfo{
		{ID: message.FilterShuffle, ClientData: []uint32{uint32(elementSize)}},
		{ID: message.FilterDeflate, ClientData: []uint32{uint32(level)}},
	}})
}
