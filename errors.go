package hashdiff

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-hashdiff/internal/canonical"
	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is, so callers can branch without type assertions.
var (
	ErrFileFormat        = errors.New("file does not parse as its format")
	ErrStructural        = errors.New("file lacks an expected element")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrReferenceDocument = errors.New("invalid reference hash document")
)

// FileFormatError is returned when a path cannot be opened or parsed as
// the declared or detected format.
type FileFormatError struct {
	Path   string
	Format Format
	Err    error
}

func (e *FileFormatError) Error() string {
	return fmt.Sprintf("%s: not a readable %s file: %v", e.Path, e.Format, e.Err)
}

func (e *FileFormatError) Is(target error) bool { return target == ErrFileFormat }
func (e *FileFormatError) Unwrap() error        { return e.Err }

// StructuralError is returned when a file opens but an element its format
// requires is absent.
type StructuralError struct {
	Path   string
	Format Format
	Err    error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: incomplete %s file: %v", e.Path, e.Format, e.Err)
}

func (e *StructuralError) Is(target error) bool { return target == ErrStructural }
func (e *StructuralError) Unwrap() error        { return e.Err }

// UnsupportedFormatError is returned when neither the extension nor the
// content of a file identifies one of the known formats. MIME holds the
// sniffed content type, or is empty when the file could not be read.
type UnsupportedFormatError struct {
	Path string
	MIME string
	Err  error
}

func (e *UnsupportedFormatError) Error() string {
	msg := e.Path + ": unsupported format"
	if e.MIME != "" {
		msg += " (" + e.MIME + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }
func (e *UnsupportedFormatError) Unwrap() error        { return e.Err }

// ReferenceDocumentError is returned when a reference hash document cannot
// be read or does not have the expected shape.
type ReferenceDocumentError struct {
	Path string
	Err  error
}

func (e *ReferenceDocumentError) Error() string {
	return fmt.Sprintf("%s: bad reference hash document: %v", e.Path, e.Err)
}

func (e *ReferenceDocumentError) Is(target error) bool { return target == ErrReferenceDocument }
func (e *ReferenceDocumentError) Unwrap() error        { return e.Err }

// classify turns an error raised while reading a file into one of the
// public error kinds.
func classify(path string, format Format, err error) error {
	switch {
	case errors.Is(err, structure.ErrMissingStructure):
		return &StructuralError{Path: path, Format: format, Err: err}
	case errors.Is(err, structure.ErrUnreadable), errors.Is(err, canonical.ErrUnsupportedValue):
		return &FileFormatError{Path: path, Format: format, Err: err}
	default:
		return err
	}
}
