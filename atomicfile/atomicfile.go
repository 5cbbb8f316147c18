// Package atomicfile writes files through a temporary sibling and a rename,
// so readers never observe a partially written file.
package atomicfile

import (
	"io"
	"os"
	"path/filepath"
)

// File behaves like os.File for writing; Close moves the temporary file into
// place. Abort discards it.
type File struct {
	*os.File
	path string
}

// New creates a temporary file next to path, ready for writing.
func New(path string) (*File, error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-")
	if err != nil {
		return nil, err
	}
	return &File{File: f, path: path}, nil
}

// Close flushes the temporary file and renames it over the target path.
func (f *File) Close() error {
	if err := f.File.Sync(); err != nil {
		f.Abort()
		return err
	}
	if err := f.File.Close(); err != nil {
		os.Remove(f.File.Name())
		return err
	}
	return os.Rename(f.File.Name(), f.path)
}

// Abort closes and removes the temporary file, leaving the target untouched.
func (f *File) Abort() error {
	f.File.Close()
	return os.Remove(f.File.Name())
}

// WriteFile is the one-shot convenience: write data to path atomically.
func WriteFile(path string, r io.Reader) error {
	f, err := New(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Abort()
		return err
	}
	return f.Close()
}
