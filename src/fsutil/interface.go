package fsutil

import (
	"io"
	"time"
)

// FileStore provides an interface for file system operations
type FileStore interface {
	// ReadFile reads a file and returns its contents
	ReadFile(path string) ([]byte, error)

	// ReadFileAsStream opens a file and returns a reader
	ReadFileAsStream(path string) (io.ReadCloser, error)

	// WriteFile writes data to path, replacing it atomically
	WriteFile(path string, data []byte) error

	// MakeDirectory creates a new directory and all necessary parents
	MakeDirectory(path string) error

	// RemoveAll removes a path and any children it contains
	RemoveAll(path string) error

	// ListFiles walks dir and returns the files whose extension matches ext (case-insensitive),
	// sorted by path. An empty ext matches every file.
	ListFiles(dir, ext string) ([]FileInfo, error)

	// GetFileStats returns the count and total size of the files ListFiles(dir, ext) would
	// return. A missing dir has no files.
	GetFileStats(dir, ext string) (Stat, error)
}

// FileInfo describes one file returned by ListFiles
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Stat represents statistics about files in a directory
type Stat struct {
	Count int   // Number of files
	Size  int64 // Total size in bytes
}
