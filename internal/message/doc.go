// Package message decodes and encodes the messages stored in HDF5 object
// headers.
//
// [Parse] turns the body of one message into a typed value:
//
//   - [Dataspace]: rank and dimensions of a dataset or attribute
//   - [Datatype]: element type, including compound, enum and variable-length
//   - [DataLayout]: compact, contiguous or chunked storage and its chunk index
//   - [FilterPipeline]: the filters applied to every chunk
//   - [FillValue]: the value of elements that were never written
//   - [Attribute]: a named value attached to an object
//   - [Link], [LinkInfo], [SymbolTable]: group membership, new and old style
//   - [AttributeInfo]: where dense attribute storage lives
//   - [Continuation]: the next block of header messages
//
// Any other type comes back as [Unknown] holding the raw body. A body that
// cannot be decoded is reported with [ErrMalformed].
//
// Messages that implement [Encoder] can be written back out; the object
// package uses them to build headers.
package message
