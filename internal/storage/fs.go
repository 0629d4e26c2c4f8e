package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Filesystem stores artifacts as plain files under a base directory.
// The storage ref is the absolute file path.
type Filesystem struct {
	basePath string
}

// NewFilesystem creates a filesystem backend rooted at basePath. A
// location config may override the root per device via "base_path".
func NewFilesystem(basePath string) *Filesystem {
	return &Filesystem{basePath: basePath}
}

func (f *Filesystem) root(cfg map[string]interface{}) string {
	if cfg != nil {
		if v, ok := cfg["base_path"].(string); ok && v != "" {
			return v
		}
	}
	return f.basePath
}

// Store writes content under the base directory and returns the full path
func (f *Filesystem) Store(ctx context.Context, content []byte, relPath string, cfg map[string]interface{}) (string, error) {
	full := filepath.Join(f.root(cfg), relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("fs store: %w", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return "", fmt.Errorf("fs store: %w", err)
	}
	return full, nil
}

// Read returns the content stored at ref
func (f *Filesystem) Read(ctx context.Context, ref string, cfg map[string]interface{}) ([]byte, error) {
	content, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("fs read: %w", err)
	}
	return content, nil
}
