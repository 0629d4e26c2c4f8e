package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Git stores artifacts in a local version-controlled repository, one
// commit per stored artifact. The storage ref is the full file path
// inside the working tree; history stays queryable through git itself.
type Git struct {
	repoPath string
}

// NewGit creates a git backend rooted at repoPath. A location config may
// override the repository per device via "repo_path".
func NewGit(repoPath string) *Git {
	return &Git{repoPath: repoPath}
}

func (g *Git) root(cfg map[string]interface{}) string {
	if cfg != nil {
		if v, ok := cfg["repo_path"].(string); ok && v != "" {
			return v
		}
	}
	return g.repoPath
}

func (g *Git) openOrInit(root string) (*git.Repository, error) {
	repo, err := git.PlainOpen(root)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, err
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return git.PlainInit(root, false)
}

// Store writes content into the repository, commits it, and returns the
// full path of the committed file.
func (g *Git) Store(ctx context.Context, content []byte, relPath string, cfg map[string]interface{}) (string, error) {
	root := g.root(cfg)

	repo, err := g.openOrInit(root)
	if err != nil {
		return "", fmt.Errorf("git store: %w", err)
	}

	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("git store: %w", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return "", fmt.Errorf("git store: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("git store: %w", err)
	}
	if _, err := wt.Add(relPath); err != nil {
		return "", fmt.Errorf("git store: %w", err)
	}

	_, err = wt.Commit(fmt.Sprintf("devicevault: save %s", relPath), &git.CommitOptions{
		Author: &object.Signature{
			Name:  "DeviceVault",
			Email: "devicevault@localhost",
			When:  time.Now().UTC(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("git store: %w", err)
	}

	return full, nil
}

// Read returns the content stored at ref from the working tree
func (g *Git) Read(ctx context.Context, ref string, cfg map[string]interface{}) ([]byte, error) {
	content, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("git read: %w", err)
	}
	return content, nil
}
