// Package object reads and writes HDF5 object headers.
//
// Every group, dataset and committed datatype has an object header: a list
// of header messages, possibly spread over continuation blocks. [Read]
// detects the header version, verifies version 2 checksums, follows
// continuations and replaces shared messages with the messages they point
// at, so callers only ever see decoded message types:
//
//	h, err := object.Read(r, addr)
//	if err != nil {
//		return err
//	}
//	space, dtype := h.Dataspace(), h.Datatype()
//
// Any message that fails to decode fails the whole header. The write side
// produces version 2 headers only.
package object
