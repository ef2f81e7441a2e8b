// Package superblock locates and parses the superblock that opens every
// HDF5 file, and writes the version 3 superblock used for new files.
//
// The signature is searched for at offsets 0, 512, 1024 and 2048. Versions
// 0 and 1 reference the root group through a symbol table entry; versions
// 2 and 3 hold its object header address directly and end in a lookup3
// checksum.
package superblock
