// Package storage implements artifact persistence backends behind a
// uniform Store/Read contract. Backends are addressed by the key recorded
// on a device's backup location.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Backend persists and retrieves backup artifacts. The returned
// storage ref is an opaque locator understood only by the producing
// backend.
type Backend interface {
	// Store writes content at a backend-relative path and returns a ref
	Store(ctx context.Context, content []byte, relPath string, cfg map[string]interface{}) (string, error)

	// Read fetches previously stored content by ref
	Read(ctx context.Context, ref string, cfg map[string]interface{}) ([]byte, error)
}

// Registry maps storage backend keys to implementations
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under one or more keys
func (r *Registry) Register(backend Backend, keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		r.backends[key] = backend
	}
}

// Get returns a backend by key
func (r *Registry) Get(key string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[key]
	return b, ok
}

// Keys returns all registered backend keys
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.backends))
	for k := range r.backends {
		keys = append(keys, k)
	}
	return keys
}

// Default returns a registry with the in-tree backends: the filesystem
// backend under "filesystem"/"fs" and the git backend under "git".
func Default(backupsBasePath, gitRepoPath string) *Registry {
	r := NewRegistry()
	r.Register(NewFilesystem(backupsBasePath), "filesystem", "fs")
	r.Register(NewGit(gitRepoPath), "git")
	return r
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// RelPath builds the conventional artifact path for a job:
// <device_id>/<sanitized task_identifier>.<txt|bin>
func RelPath(deviceID uint, taskIdentifier string, isBinary bool) string {
	safe := unsafePathChars.ReplaceAllString(taskIdentifier, "-")
	if safe == "" {
		safe = "job"
	}
	ext := "txt"
	if isBinary {
		ext = "bin"
	}
	return fmt.Sprintf("%d/%s.%s", deviceID, safe, ext)
}
