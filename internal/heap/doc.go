// Package heap reads and writes the two HDF5 heaps this module meets: the
// local heap holding link names of version 1 groups, and global heap
// collections holding variable-length strings and sequences.
package heap
