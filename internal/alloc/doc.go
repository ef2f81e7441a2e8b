// Package alloc hands out file space to the HDF5 fixture writer.
//
// Space is only ever appended: every block starts at the current end of
// file, which then moves past it. Rewritten object headers get fresh space
// and the old copy is left behind, so files written this way are valid but
// not compact.
package alloc
