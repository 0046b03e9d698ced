package storage

import (
	"fmt"
	"io"
	"sync"
)

// OpenCall records one Open on a MemoryBackend.
type OpenCall struct {
	Name string
	Mode Mode
}

// MemoryBackend keeps files in memory. It is safe for concurrent use and
// lets tests inject failures through OpenFunc and SeekFunc.
type MemoryBackend struct {
	mu    sync.Mutex
	files map[string][]byte

	// OpenFunc, if set, is consulted before every Open; a non-nil error fails it.
	OpenFunc func(name string, mode Mode) error
	// SeekFunc, if set, is consulted before every Seek; a non-nil error fails it.
	SeekFunc func(name string, offset int64) error

	// Opens records every Open call in order.
	Opens []OpenCall
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{files: make(map[string][]byte)}
}

// Open opens name in the given mode.
func (m *MemoryBackend) Open(name string, mode Mode) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Opens = append(m.Opens, OpenCall{Name: name, Mode: mode})

	if m.OpenFunc != nil {
		if err := m.OpenFunc(name, mode); err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
	}

	switch mode {
	case ModeRead:
		if _, ok := m.files[name]; !ok {
			return nil, fmt.Errorf("open %s: %w", name, ErrNotFound)
		}
		return &memFile{backend: m, name: name}, nil
	case ModeWrite:
		if _, ok := m.files[name]; !ok {
			m.files[name] = nil
		}
		return &memFile{backend: m, name: name, offset: int64(len(m.files[name])), write: true}, nil
	default:
		return nil, fmt.Errorf("open %s: unsupported mode %d", name, mode)
	}
}

// Exists reports whether name is present.
func (m *MemoryBackend) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok
}

// Remove deletes name.
func (m *MemoryBackend) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

// Put replaces the contents of name.
func (m *MemoryBackend) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), data...)
}

// Bytes returns a copy of name's contents.
func (m *MemoryBackend) Bytes(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// OpenCount returns how many times name was opened in mode.
func (m *MemoryBackend) OpenCount(name string, mode Mode) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Opens {
		if c.Name == name && c.Mode == mode {
			n++
		}
	}
	return n
}

// ResetOpens forgets the recorded Open calls.
func (m *MemoryBackend) ResetOpens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Opens = nil
}

type memFile struct {
	backend *MemoryBackend
	name    string
	offset  int64
	write   bool
	closed  bool
}

func (f *memFile) Read(p []byte) (int, error) {
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()

	if f.closed {
		return 0, ErrClosed
	}
	data := f.backend.files[f.name]
	if f.offset >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[f.offset:])
	f.offset += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()

	if f.closed {
		return 0, ErrClosed
	}
	if !f.write {
		return 0, fmt.Errorf("write %s: opened for reading", f.name)
	}
	f.backend.files[f.name] = append(f.backend.files[f.name], p...)
	f.offset = int64(len(f.backend.files[f.name]))
	return len(p), nil
}

func (f *memFile) Seek(offset int64) error {
	if hook := f.backend.SeekFunc; hook != nil {
		if err := hook(f.name, offset); err != nil {
			return fmt.Errorf("seek %s: %w", f.name, err)
		}
	}

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if offset < 0 || offset > int64(len(f.backend.files[f.name])) {
		return fmt.Errorf("seek %s to %d: %w", f.name, offset, ErrBadSeek)
	}
	f.offset = offset
	return nil
}

func (f *memFile) Size() int64 {
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	return int64(len(f.backend.files[f.name]))
}

func (f *memFile) Name() string {
	return f.name
}

func (f *memFile) Close() error {
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	return nil
}
