// Package binary reads and writes the fixed-layout records of HDF5 and TIFF
// files: unsigned integers of one to eight bytes, file offsets and lengths
// whose width is set per file, and the checksums that guard HDF5 metadata.
//
// A [Reader] or [Writer] carries a position. [Reader.At] and [Writer.At]
// derive a cursor at another offset that shares the same file, so callers
// can follow an address without losing their place.
package binary
