// Package diskio is the bottom layer: a positioned read/write/sync/truncate
// wrapper around a single *os.File. It knows nothing about pages, trees, or
// free lists — just bytes at offsets. Every failure is reported as a
// pkg/errors IoError; nothing here retries.
package diskio

import (
	"io"
	"os"

	nerrors "nifflerdb/pkg/errors"
)

// File is a thin, explicit wrapper over *os.File. All access is positioned
// (ReadAt/WriteAt) so callers never rely on a shared file cursor — required
// once the pager starts interleaving reads and writes for different pages.
type File struct {
	f *os.File
}

// Create opens path for a brand new store, truncating any existing content.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nerrors.IOError("create", err)
	}
	return &File{f: f}, nil
}

// Open opens path for an existing store, creating it if absent so that the
// caller can distinguish "new file" from "corrupt file" by inspecting size.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nerrors.IOError("open", err)
	}
	return &File{f: f}, nil
}

// ReadAt reads exactly len(buf) bytes starting at off. A short read is an
// I/O error, not silently zero-filled.
func (f *File) ReadAt(buf []byte, off int64) error {
	n, err := f.f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nerrors.IOError("read", err)
	}
	if n != len(buf) {
		return nerrors.IOError("short read", io.ErrUnexpectedEOF)
	}
	return nil
}

// WriteAt writes all of buf starting at off.
func (f *File) WriteAt(buf []byte, off int64) error {
	n, err := f.f.WriteAt(buf, off)
	if err != nil {
		return nerrors.IOError("write", err)
	}
	if n != len(buf) {
		return nerrors.IOError("short write", io.ErrShortWrite)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (f *File) Sync() error {
	if err := f.f.Sync(); err != nil {
		return nerrors.IOError("fsync", err)
	}
	return nil
}

// Truncate resizes the underlying file.
func (f *File) Truncate(size int64) error {
	if err := f.f.Truncate(size); err != nil {
		return nerrors.IOError("truncate", err)
	}
	return nil
}

// Size returns the current file size in bytes.
func (f *File) Size() (int64, error) {
	fi, err := f.f.Stat()
	if err != nil {
		return 0, nerrors.IOError("stat", err)
	}
	return fi.Size(), nil
}

// Close closes the underlying file handle.
func (f *File) Close() error {
	if err := f.f.Close(); err != nil {
		return nerrors.IOError("close", err)
	}
	return nil
}
