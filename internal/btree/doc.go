// Package btree reads the B-trees HDF5 uses to index old-style group
// members and dataset chunks.
//
// Version 1 B-trees ("TREE") index symbol table nodes for groups
// ([ReadGroupEntries]) and chunks for datasets written before the 1.10
// format ([ReadChunks]). Version 2 B-trees ("BTHD") of record types 10 and
// 11 index the chunks of datasets with more than one unlimited dimension
// ([ReadChunksV2]).
//
// Both readers return every entry at once; hashdiff reads whole datasets,
// so there is no lookup by coordinate.
package btree
