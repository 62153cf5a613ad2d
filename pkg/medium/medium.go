// Package medium defines the raw byte-granular contract between the flash
// core and whatever actually stores the bits. The page I/O engine is the
// only consumer; it owns the handle exclusively and never exposes raw
// offsets to callers above it.
package medium

import (
	"context"
	"errors"
)

// ErasedByte is the value every byte of a region holds after a successful
// erase. Flash erases set all bits; a program operation can only clear them.
const ErasedByte = 0xFF

// Common errors returned by Medium implementations.
var (
	// ErrOutOfBounds is returned when an access falls outside the medium.
	ErrOutOfBounds = errors.New("medium: access out of bounds")

	// ErrWriteRequiresErase is returned when a write would need to set a
	// bit that is currently cleared. The region must be erased first.
	ErrWriteRequiresErase = errors.New("medium: write requires erase")

	// ErrClosed is returned when operations are attempted on a closed medium.
	ErrClosed = errors.New("medium: closed")
)

// Medium is a raw handle with byte-granular read/write and range erase.
// Implementations must be safe for concurrent use.
//
// Contexts bound the physical operation: a context expiring during an erase
// is indistinguishable from an erase failure at the layers above, because
// flash hardware offers no safe abort for an in-progress erase.
type Medium interface {
	// ReadAt fills p with bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off uint64) error

	// WriteAt programs the bytes of p starting at off.
	WriteAt(ctx context.Context, p []byte, off uint64) error

	// Erase resets [off, off+length) to ErasedByte.
	Erase(ctx context.Context, off, length uint64) error

	// Size returns the total medium size in bytes.
	Size() uint64

	// Close releases any resources held by the medium.
	Close() error
}
