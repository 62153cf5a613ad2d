// Package file provides a file-backed medium implementation with real NAND
// program semantics: a write may only clear bits, never set them. This gives
// integrators a persistent medium whose failure modes match hardware.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/marmos91/flashcore/pkg/medium"
)

// fillChunk is the buffer size used when erasing regions of the backing file.
const fillChunk = 64 * 1024

// Medium is a file-backed implementation of medium.Medium.
type Medium struct {
	mu     sync.Mutex
	f      *os.File
	size   uint64
	closed bool
}

// Open opens (or creates) a file-backed medium of the given size.
//
// A newly created file is filled with the erased value. An existing file
// must match the requested size exactly; geometry changes require
// re-provisioning the backing file.
func Open(path string, size uint64) (*Medium, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: zero size", medium.ErrOutOfBounds)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open backing file %q: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat backing file %q: %w", path, err)
	}

	m := &Medium{f: f, size: size}

	switch {
	case st.Size() == 0:
		// Fresh file: size it and erase everything.
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to size backing file %q: %w", path, err)
		}
		if err := m.fill(0, size); err != nil {
			f.Close()
			return nil, err
		}
	case uint64(st.Size()) != size:
		f.Close()
		return nil, fmt.Errorf("backing file %q is %d bytes, want %d (re-provision to change geometry)",
			path, st.Size(), size)
	}

	return m, nil
}

// ReadAt fills p with bytes starting at off.
func (m *Medium) ReadAt(ctx context.Context, p []byte, off uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return medium.ErrClosed
	}
	if off+uint64(len(p)) > m.size {
		return fmt.Errorf("%w: read [%d, %d) of %d", medium.ErrOutOfBounds, off, off+uint64(len(p)), m.size)
	}

	if _, err := m.f.ReadAt(p, int64(off)); err != nil {
		return fmt.Errorf("read at %d: %w", off, err)
	}
	return nil
}

// WriteAt programs the bytes of p starting at off. A program operation may
// only clear bits: if any byte would need a bit set, the write is refused
// with ErrWriteRequiresErase and nothing is written.
func (m *Medium) WriteAt(ctx context.Context, p []byte, off uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return medium.ErrClosed
	}
	if off+uint64(len(p)) > m.size {
		return fmt.Errorf("%w: write [%d, %d) of %d", medium.ErrOutOfBounds, off, off+uint64(len(p)), m.size)
	}

	current := make([]byte, len(p))
	if _, err := m.f.ReadAt(current, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read before write at %d: %w", off, err)
	}
	for i := range p {
		if current[i]&p[i] != p[i] {
			return fmt.Errorf("write at %d: %w", off+uint64(i), medium.ErrWriteRequiresErase)
		}
	}

	if _, err := m.f.WriteAt(p, int64(off)); err != nil {
		return fmt.Errorf("write at %d: %w", off, err)
	}
	return nil
}

// Erase resets [off, off+length) to the erased value.
func (m *Medium) Erase(ctx context.Context, off, length uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return medium.ErrClosed
	}
	if off+length > m.size {
		return fmt.Errorf("%w: erase [%d, %d) of %d", medium.ErrOutOfBounds, off, off+length, m.size)
	}

	return m.fill(off, length)
}

// fill writes the erased value over [off, off+length). Caller holds the lock
// (or is the constructor, before the medium is shared).
func (m *Medium) fill(off, length uint64) error {
	buf := make([]byte, fillChunk)
	for i := range buf {
		buf[i] = medium.ErasedByte
	}

	for length > 0 {
		n := uint64(len(buf))
		if length < n {
			n = length
		}
		if _, err := m.f.WriteAt(buf[:n], int64(off)); err != nil {
			return fmt.Errorf("erase fill at %d: %w", off, err)
		}
		off += n
		length -= n
	}
	return nil
}

// Size returns the total medium size in bytes.
func (m *Medium) Size() uint64 {
	return m.size
}

// Close syncs and closes the backing file.
func (m *Medium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.f.Sync(); err != nil {
		m.f.Close()
		return fmt.Errorf("failed to sync backing file: %w", err)
	}
	return m.f.Close()
}

// Ensure Medium implements medium.Medium.
var _ medium.Medium = (*Medium)(nil)
