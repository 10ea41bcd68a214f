package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem abstracts the filesystem primitives used while collecting repository facts.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	Abs(path string) (string, error)
	MkdirAll(path string, permissions fs.FileMode) error
	CreateTemp(directory string, pattern string) (*os.File, error)
	Remove(path string) error
	AppendFile(path string, data []byte, permissions fs.FileMode) error
}

// OSFileSystem implements FileSystem using the operating system primitives.
type OSFileSystem struct{}

// Stat retrieves file metadata.
func (OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Abs resolves an absolute path.
func (OSFileSystem) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

// MkdirAll ensures a directory hierarchy exists with the provided permissions.
func (OSFileSystem) MkdirAll(path string, permissions fs.FileMode) error {
	return os.MkdirAll(path, permissions)
}

// CreateTemp atomically creates a uniquely named file inside directory.
func (OSFileSystem) CreateTemp(directory string, pattern string) (*os.File, error) {
	return os.CreateTemp(directory, pattern)
}

// Remove deletes a file.
func (OSFileSystem) Remove(path string) error {
	return os.Remove(path)
}

// AppendFile appends data to a file, creating it with the supplied permissions when absent.
func (OSFileSystem) AppendFile(path string, data []byte, permissions fs.FileMode) error {
	file, openError := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permissions)
	if openError != nil {
		return openError
	}
	if _, writeError := file.Write(data); writeError != nil {
		file.Close()
		return writeError
	}
	return file.Close()
}
