package hdf5

import (
	"encoding/binary"
	"fmt"

	"github.com/go-git/go-billy/v5"

	"github.com/robert-malhotra/go-hashdiff/internal/alloc"
	binpkg "github.com/robert-malhotra/go-hashdiff/internal/binary"
	"github.com/robert-malhotra/go-hashdiff/internal/dtype"
	"github.com/robert-malhotra/go-hashdiff/internal/object"
	"github.com/robert-malhotra/go-hashdiff/internal/superblock"
)

// Create creates a new HDF5 file on fsys.
// The file will be created with a V2 superblock and V2 object headers.
func Create(fsys billy.Filesystem, path string, opts ...FileOption) (*File, error) {
	options := defaultFileOptions()
	for _, opt := range opts {
		opt(options)
	}

	bf, err := fsys.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	cfg := binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: options.offsetSize,
		LengthSize: options.lengthSize,
	}
	writer := binpkg.NewWriter(binpkg.NewSeekableWriterAt(bf), cfg)

	sb := superblock.New(options.offsetSize, options.lengthSize)

	// Root group goes right after the superblock
	sbSize := sb.Size()
	rootGroupAddr := uint64(sbSize)
	sb.RootGroupAddress = rootGroupAddr

	// Use minimum chunk size for compatibility with h5py
	rootMessages := object.NewGroupHeader(nil)
	headerSize := object.HeaderSizeWithMinChunk(writer, rootMessages, object.MinGroupChunkSize)
	eofAddr := uint64(sbSize + headerSize)
	sb.EOFAddress = eofAddr

	fail := func(err error) (*File, error) {
		bf.Close()
		fsys.Remove(path)
		return nil, err
	}

	if _, err := sb.Write(writer); err != nil {
		return fail(fmt.Errorf("writing superblock: %w", err))
	}
	if _, err := object.WriteHeaderWithMinChunk(writer, rootMessages, object.MinGroupChunkSize); err != nil {
		return fail(fmt.Errorf("writing root group: %w", err))
	}

	reader := binpkg.NewReader(bf, cfg)
	f := &File{
		fsys:       fsys,
		path:       path,
		file:       bf,
		reader:     reader,
		decoder:    dtype.NewDecoder(reader),
		superblock: sb,
		writable:   true,
		writer:     writer,
		allocator:  alloc.New(eofAddr),
	}

	f.root = &Group{
		file: f,
		path: "/",
		addr: rootGroupAddr,
	}

	return f, nil
}

// Flush writes the superblock with the current end-of-file address and
// syncs the file when the filesystem supports it.
func (f *File) Flush() error {
	if !f.writable {
		return nil
	}

	if err := f.allocator.Validate(); err != nil {
		return fmt.Errorf("file layout: %w", err)
	}
	f.superblock.EOFAddress = f.allocator.EOFAddr()

	if _, err := f.superblock.Write(f.writer.At(0)); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}

	if s, ok := f.file.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// allocate reserves space in the file and returns the address.
func (f *File) allocate(size int64) uint64 {
	return f.allocator.Alloc(uint64(size))
}
