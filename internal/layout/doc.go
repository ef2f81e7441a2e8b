// Package layout reads and writes the raw data of HDF5 datasets.
//
// A dataset's layout message says where its elements live:
//
//   - compact: inside the object header ([Compact]);
//   - contiguous: one block in the file ([Contiguous]);
//   - chunked: fixed-shape chunks found through an index ([Chunked]).
//
// Chunk indexes are the version 1 B-tree of older files and, for version 4
// layouts, a single chunk, an implicit run of chunks, a fixed array, an
// extensible array or a version 2 B-tree. Chunks pass back through the
// dataset's filter pipeline before they are copied into place; edge chunks
// are clipped to the dataset extent.
//
// Elements that were never written read as the dataset's fill value.
//
// [ChunkWriter] is the write side: it splits data into chunks, filters
// them and stores a single chunk, fixed array or extensible array index.
package layout
