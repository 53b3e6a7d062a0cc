package storage

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Geal/proust/utils"
	"golang.org/x/sys/unix"
)

// DefaultIncrement is the size by which mapped files grow
const DefaultIncrement = 1 << 20

// ErrOutOfRange is returned when reading outside of the mapped region
var ErrOutOfRange = errors.New("read out of range")

// MappedFile is a file mapped in memory that grows in fixed increments.
// Its size on disk is always a multiple of the increment.
type MappedFile struct {
	mu        sync.RWMutex
	file      *os.File
	data      []byte
	increment int64
}

// Open maps the file at path, creating it if needed
func Open(path string, increment int64) (*MappedFile, error) {
	if increment <= 0 {
		return nil, fmt.Errorf("invalid increment %d", increment)
	}
	if err := utils.EnsurePath(path, false); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	m := &MappedFile{file: f, increment: increment}
	if err := m.remap(roundUp(max(fi.Size(), 1), increment)); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

func roundUp(n, increment int64) int64 {
	return (n + increment - 1) / increment * increment
}

// remap resizes the file to size bytes and maps it again. Callers hold mu.
func (m *MappedFile) remap(size int64) error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return fmt.Errorf("munmap %v: %w", m.file.Name(), err)
		}
		m.data = nil
	}
	if err := m.file.Truncate(size); err != nil {
		return fmt.Errorf("truncate %v: %w", m.file.Name(), err)
	}
	data, err := unix.Mmap(int(m.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap %v: %w", m.file.Name(), err)
	}
	m.data = data
	return nil
}

// Len returns the mapped size
func (m *MappedFile) Len() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data))
}

// Read returns a copy of length bytes starting at offset
func (m *MappedFile) Read(offset, length int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset < 0 || length < 0 || offset+length > int64(len(m.data)) {
		return nil, fmt.Errorf("%w: [%d, %d) of %d bytes", ErrOutOfRange, offset, offset+length, len(m.data))
	}
	out := make([]byte, length)
	copy(out, m.data[offset:offset+length])
	return out, nil
}

// Write copies b at offset, growing the file by whole increments if needed
func (m *MappedFile) Write(offset int64, b []byte) error {
	if offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrOutOfRange, offset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	end := offset + int64(len(b))
	if end > int64(len(m.data)) {
		if err := m.remap(roundUp(end, m.increment)); err != nil {
			return err
		}
	}
	copy(m.data[offset:end], b)
	return nil
}

// Sync flushes the mapped pages to disk
func (m *MappedFile) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Close syncs, unmaps and closes the file
func (m *MappedFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	syncErr := unix.Msync(m.data, unix.MS_SYNC)
	unmapErr := unix.Munmap(m.data)
	m.data = nil
	return errors.Join(syncErr, unmapErr, m.file.Close())
}
