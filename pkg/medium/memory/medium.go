// Package memory provides an in-memory medium implementation with fault
// injection, used by tests and by the burn-in command.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/flashcore/pkg/medium"
)

// ErrInjectedFault is the cause wrapped by injected erase/write failures.
var ErrInjectedFault = errors.New("memory: injected fault")

// Medium is an in-memory implementation of medium.Medium.
//
// Faults can be injected per byte offset: an erase or write whose starting
// offset has a pending fault fails once and consumes the fault. This models
// a block that fails a single operation, which is how bad blocks announce
// themselves in practice.
type Medium struct {
	mu        sync.RWMutex
	data      []byte
	closed    bool
	failErase map[uint64]int
	failWrite map[uint64]int
}

// New creates a memory medium of the given size with all bytes erased.
func New(size uint64) *Medium {
	data := make([]byte, size)
	for i := range data {
		data[i] = medium.ErasedByte
	}
	return &Medium{
		data:      data,
		failErase: make(map[uint64]int),
		failWrite: make(map[uint64]int),
	}
}

// FailEraseAt injects n erase faults at the given starting offset.
func (m *Medium) FailEraseAt(off uint64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErase[off] += n
}

// FailWriteAt injects n write faults at the given starting offset.
func (m *Medium) FailWriteAt(off uint64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite[off] += n
}

// ReadAt fills p with bytes starting at off.
func (m *Medium) ReadAt(ctx context.Context, p []byte, off uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return medium.ErrClosed
	}
	if off+uint64(len(p)) > uint64(len(m.data)) {
		return fmt.Errorf("%w: read [%d, %d) of %d", medium.ErrOutOfBounds, off, off+uint64(len(p)), len(m.data))
	}

	copy(p, m.data[off:])
	return nil
}

// WriteAt programs the bytes of p starting at off.
func (m *Medium) WriteAt(ctx context.Context, p []byte, off uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return medium.ErrClosed
	}
	if off+uint64(len(p)) > uint64(len(m.data)) {
		return fmt.Errorf("%w: write [%d, %d) of %d", medium.ErrOutOfBounds, off, off+uint64(len(p)), len(m.data))
	}

	if m.failWrite[off] > 0 {
		m.failWrite[off]--
		if m.failWrite[off] == 0 {
			delete(m.failWrite, off)
		}
		return fmt.Errorf("write at %d: %w", off, ErrInjectedFault)
	}

	copy(m.data[off:], p)
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
	if off+length > uint64(len(m.data)) {
		return fmt.Errorf("%w: erase [%d, %d) of %d", medium.ErrOutOfBounds, off, off+length, len(m.data))
	}

	if m.failErase[off] > 0 {
		m.failErase[off]--
		if m.failErase[off] == 0 {
			delete(m.failErase, off)
		}
		return fmt.Errorf("erase at %d: %w", off, ErrInjectedFault)
	}

	for i := off; i < off+length; i++ {
		m.data[i] = medium.ErasedByte
	}
	return nil
}

// Size returns the total medium size in bytes.
func (m *Medium) Size() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.data))
}

// Close marks the medium as closed.
func (m *Medium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

// Ensure Medium implements medium.Medium.
var _ medium.Medium = (*Medium)(nil)
