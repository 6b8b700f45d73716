package bill

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for file storage operations
type Storage interface {
	// Save saves a file and returns its full path
	Save(filename string, data []byte) (string, error)

	// Get retrieves a file by name
	Get(filename string) ([]byte, error)

	// Delete removes a file
	Delete(filename string) error
}

// LocalStorage implements the Storage interface using a local directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save writes data under filename. Only the base name is used so callers
// cannot escape the storage directory.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(filename string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, filepath.Base(filename)))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(filename string) error {
	if err := os.Remove(filepath.Join(l.basePath, filepath.Base(filename))); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// PersistReport copies a built report into storage under name
func PersistReport(store Storage, reportPath, name string) (string, error) {
	data, err := os.ReadFile(reportPath)
	if err != nil {
		return "", fmt.Errorf("reading report: %w", err)
	}
	saved, err := store.Save(name, data)
	if err != nil {
		return "", fmt.Errorf("saving report: %w", err)
	}
	return saved, nil
}
