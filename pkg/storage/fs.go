package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DirBackend stores each file under a single directory.
type DirBackend struct {
	dir string
}

var _ Backend = (*DirBackend)(nil)

// NewDirBackend creates dir if needed and returns a backend rooted there.
func NewDirBackend(dir string) (*DirBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &DirBackend{dir: dir}, nil
}

// Dir returns the root directory.
func (d *DirBackend) Dir() string {
	return d.dir
}

func (d *DirBackend) path(name string) string {
	return filepath.Join(d.dir, filepath.Base(name))
}

// Open opens name in the given mode.
func (d *DirBackend) Open(name string, mode Mode) (File, error) {
	var (
		f   *os.File
		err error
	)
	switch mode {
	case ModeRead:
		f, err = os.Open(d.path(name))
	case ModeWrite:
		f, err = os.OpenFile(d.path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	default:
		return nil, fmt.Errorf("open %s: unsupported mode %d", name, mode)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &dirFile{f: f, name: name}, nil
}

// Exists reports whether name is present.
func (d *DirBackend) Exists(name string) bool {
	_, err := os.Stat(d.path(name))
	return err == nil
}

// Remove deletes name. Removing a missing file is not an error.
func (d *DirBackend) Remove(name string) error {
	err := os.Remove(d.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

type dirFile struct {
	f    *os.File
	name string
}

func (f *dirFile) Read(p []byte) (int, error) {
	return f.f.Read(p)
}

func (f *dirFile) Write(p []byte) (int, error) {
	return f.f.Write(p)
}

func (f *dirFile) Seek(offset int64) error {
	if offset < 0 || offset > f.Size() {
		return fmt.Errorf("seek %s to %d: %w", f.name, offset, ErrBadSeek)
	}
	_, err := f.f.Seek(offset, io.SeekStart)
	return err
}

func (f *dirFile) Size() int64 {
	st, err := f.f.Stat()
	if err != nil {
		return 0
	}
	return st.Size()
}

func (f *dirFile) Name() string {
	return f.name
}

func (f *dirFile) Close() error {
	return f.f.Close()
}
