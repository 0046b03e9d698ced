// Package storage defines the byte-stream storage the looper records to and
// plays from, with a directory-backed implementation for the binary and an
// in-memory one for tests and headless runs.
package storage

import (
	"errors"
	"io"
)

// Mode selects how a file is opened.
type Mode int

const (
	// ModeRead opens an existing file for reading from offset 0.
	ModeRead Mode = iota
	// ModeWrite opens a file for appending, creating it if needed.
	ModeWrite
)

// String returns the string representation of Mode.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

var (
	// ErrNotFound is returned when opening a missing file for reading.
	ErrNotFound = errors.New("file not found")
	// ErrClosed is returned by operations on a closed file.
	ErrClosed = errors.New("file closed")
	// ErrBadSeek is returned when seeking outside the file.
	ErrBadSeek = errors.New("seek out of range")
)

// File is an open named byte stream. Read returns io.EOF once no bytes are
// left. Calls are synchronous and may block the caller.
type File interface {
	io.Reader
	io.Writer

	// Seek moves the read/write position to an absolute offset.
	Seek(offset int64) error
	// Size returns the current length of the file in bytes.
	Size() int64
	// Name returns the name the file was opened with.
	Name() string
	Close() error
}

// Backend opens, checks and removes named files.
type Backend interface {
	Open(name string, mode Mode) (File, error)
	Exists(name string) bool
	Remove(name string) error
}
