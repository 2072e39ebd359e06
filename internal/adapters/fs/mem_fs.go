package fs

import (
	iofs "io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MemFileSystem keeps files in memory. Directories exist implicitly.
type MemFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{files: make(map[string][]byte)}
}

func (fs *MemFileSystem) ReadFile(path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, ok := fs.files[filepath.Clean(path)]
	if !ok {
		return nil, &iofs.PathError{Op: "open", Path: path, Err: iofs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (fs *MemFileSystem) FileExists(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, ok := fs.files[filepath.Clean(path)]
	return ok
}

func (fs *MemFileSystem) WriteFile(path string, data []byte, perm iofs.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.files[filepath.Clean(path)] = append([]byte(nil), data...)
	return nil
}

func (fs *MemFileSystem) MkdirAll(path string, perm iofs.FileMode) error {
	return nil
}

func (fs *MemFileSystem) RemoveAll(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prefix := filepath.Clean(path) + string(filepath.Separator)
	for name := range fs.files {
		if name == filepath.Clean(path) || strings.HasPrefix(name, prefix) {
			delete(fs.files, name)
		}
	}
	return nil
}

// Files lists every stored path in sorted order.
func (fs *MemFileSystem) Files() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	names := make([]string, 0, len(fs.files))
	for name := range fs.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
