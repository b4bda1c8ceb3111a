package sink

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage stores the units a buffer consumes.
type Storage interface {
	// Write writes data to path, creating parent directories.
	Write(path string, data []byte) error

	// List lists the files in dir.
	List(dir string) ([]string, error)
}

// LocalStorage implements Storage on the local filesystem.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates baseDir if needed and returns a storage rooted at it.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

func (s *LocalStorage) Write(path string, data []byte) error {
	fullPath := s.FullPath(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// List returns the names of the regular files in dir, in directory order.
func (s *LocalStorage) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(s.FullPath(dir))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// FullPath returns the filesystem path for a storage path.
func (s *LocalStorage) FullPath(path string) string {
	return filepath.Join(s.baseDir, path)
}
