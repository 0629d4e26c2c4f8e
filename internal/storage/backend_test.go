package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelPath(t *testing.T) {
	assert.Equal(t, "7/scheduled-7-2026-08-27T01-00-00Z.txt", RelPath(7, "scheduled:7:2026-08-27T01:00:00Z", false))
	assert.Equal(t, "7/manual-7-x.bin", RelPath(7, "manual:7:x", true))
	assert.Equal(t, "1/job.txt", RelPath(1, "", false))
}

func TestRegistryLookup(t *testing.T) {
	r := Default("/tmp/backups", "/tmp/backups-git")

	fs, ok := r.Get("filesystem")
	require.True(t, ok)
	fsAlias, ok := r.Get("fs")
	require.True(t, ok)
	assert.Same(t, fs, fsAlias)

	_, ok = r.Get("git")
	assert.True(t, ok)
	_, ok = r.Get("s3")
	assert.False(t, ok)
}

func TestFilesystemStoreAndRead(t *testing.T) {
	base := t.TempDir()
	fs := NewFilesystem(base)
	ctx := context.Background()

	ref, err := fs.Store(ctx, []byte("hostname sw-core-01\n"), "7/test.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "7/test.txt"), ref)

	content, err := fs.Read(ctx, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, "hostname sw-core-01\n", string(content))
}

func TestFilesystemBasePathOverride(t *testing.T) {
	base := t.TempDir()
	override := t.TempDir()
	fs := NewFilesystem(base)

	ref, err := fs.Store(context.Background(), []byte("x"), "1/a.txt", map[string]interface{}{
		"base_path": override,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(override, "1/a.txt"), ref)

	_, err = os.Stat(filepath.Join(base, "1/a.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestGitStoreCommitsEachArtifact(t *testing.T) {
	repoPath := t.TempDir()
	g := NewGit(repoPath)
	ctx := context.Background()

	ref, err := g.Store(ctx, []byte("config v1\n"), "7/test.txt", nil)
	require.NoError(t, err)

	content, err := g.Read(ctx, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, "config v1\n", string(content))

	_, err = g.Store(ctx, []byte("config v2\n"), "7/test.txt", nil)
	require.NoError(t, err)

	repo, err := git.PlainOpen(repoPath)
	require.NoError(t, err)

	iter, err := repo.Log(&git.LogOptions{})
	require.NoError(t, err)

	count := 0
	var lastMessage string
	require.NoError(t, iter.ForEach(func(c *object.Commit) error {
		if lastMessage == "" {
			lastMessage = c.Message
		}
		count++
		return nil
	}))

	assert.Equal(t, 2, count)
	assert.Equal(t, "devicevault: save 7/test.txt", lastMessage)
}
