// Package filter implements the HDF5 filters hashdiff can decode and the
// fixture writer can apply: deflate, shuffle and fletcher32.
//
// A [Pipeline] is built from a dataset's filter pipeline message. Decoding
// runs the filters in reverse order and honors the per-chunk filter mask,
// where bit i set means filter i was skipped when the chunk was written:
//
//	p := filter.NewPipeline(fp)
//	raw, err := p.Decode(stored, mask)
//
// Filters the package does not implement (szip, nbit, scaleoffset and
// third-party IDs) fail with [ErrUnsupported], but only for chunks that
// actually went through them.
package filter
