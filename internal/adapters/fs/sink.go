package fs

import (
	"context"
	"fmt"
	"path/filepath"
)

// DirSink writes build artifacts below a root directory.
type DirSink struct {
	root string
	fs   FileSystem
}

func NewDirSink(root string, fsys FileSystem) *DirSink {
	return &DirSink{root: root, fs: fsys}
}

// WriteFile stores data at the slash-separated path rel, creating parent
// directories as needed.
func (s *DirSink) WriteFile(ctx context.Context, rel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := s.fs.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}
