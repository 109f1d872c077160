// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/fetch"
)

func newArtifact(t *testing.T, data []byte) *fetch.Artifact {
	t.Helper()
	p := filepath.Join(t.TempDir(), "download.part")
	require.NoError(t, os.WriteFile(p, data, 0o600))
	a, err := fetch.Adopt(p, content.Checksum{})
	require.NoError(t, err)
	return a
}

func TestNew(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "artifacts")
	store, err := New(root)
	require.NoError(t, err)
	assert.Equal(t, root, store.Dir())

	for _, name := range []string{"blobs", "oci-layout", "index.json"} {
		_, err := os.Stat(filepath.Join(root, name))
		assert.NoError(t, err, "%s should exist", name)
	}
}

func TestRoot(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/cache", "ocs-custodian", "artifacts"), Root("/cache"))
	assert.NotEmpty(t, DefaultRoot())
}

func TestPutLookupMaterialize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	data := []byte("icon theme tarball")
	a := newArtifact(t, data)

	entry, err := store.Put(ctx, "example.org/42", a, "42.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, digest.FromBytes(data), entry.Layer.Digest)
	assert.Equal(t, int64(len(data)), entry.Layer.Size)

	found, err := store.Lookup(ctx, "example.org/42")
	require.NoError(t, err)
	assert.Equal(t, entry.Layer.Digest, found.Layer.Digest)
	assert.Equal(t, "42.tar.gz", found.FileName)
	assert.Equal(t, a.Checksum, found.Checksum)

	ok, err := store.Has(ctx, Descriptor(a.Digest, a.Size))
	require.NoError(t, err)
	assert.True(t, ok)

	dir := t.TempDir()
	p, err := store.Materialize(ctx, Descriptor(a.Digest, a.Size), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(p))
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPutIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	a := newArtifact(t, []byte("same bytes"))
	_, err = store.Put(ctx, "example.org/1", a, "a")
	require.NoError(t, err)
	_, err = store.Put(ctx, "example.org/2", a, "b")
	require.NoError(t, err)

	first, err := store.Lookup(ctx, "example.org/1")
	require.NoError(t, err)
	second, err := store.Lookup(ctx, "example.org/2")
	require.NoError(t, err)
	assert.Equal(t, first.Layer.Digest, second.Layer.Digest)
	assert.Equal(t, "b", second.FileName)
}

func TestPutReplacesTag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(ctx, "example.org/42", newArtifact(t, []byte("v1")), "42.tar.gz")
	require.NoError(t, err)
	v2 := newArtifact(t, []byte("v2"))
	_, err = store.Put(ctx, "example.org/42", v2, "42.tar.gz")
	require.NoError(t, err)

	found, err := store.Lookup(ctx, "example.org/42")
	require.NoError(t, err)
	assert.Equal(t, v2.Digest, found.Layer.Digest)
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Lookup(ctx, "example.org/missing")
	require.ErrorIs(t, err, ErrNotFound)

	missing := Descriptor(digest.FromString("missing"), 7)
	ok, err := store.Has(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Materialize(ctx, missing, t.TempDir())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMaterializeDetectsCorruption(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)

	a := newArtifact(t, []byte("pristine"))
	_, err = store.Put(ctx, "example.org/42", a, "x")
	require.NoError(t, err)

	blob := filepath.Join(root, "blobs", a.Digest.Algorithm().String(), a.Digest.Encoded())
	require.NoError(t, os.Chmod(blob, 0o600))
	require.NoError(t, os.WriteFile(blob, []byte("tampered"), 0o600))

	dir := t.TempDir()
	_, err = store.Materialize(ctx, Descriptor(a.Digest, a.Size), dir)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestForget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	a := newArtifact(t, []byte("to be forgotten"))
	_, err = store.Put(ctx, "example.org/42", a, "x")
	require.NoError(t, err)

	require.NoError(t, store.Forget(ctx, "example.org/42"))
	_, err = store.Lookup(ctx, "example.org/42")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Has(ctx, Descriptor(a.Digest, a.Size))
	require.NoError(t, err)
	assert.False(t, ok, "unreferenced blob is collected")

	require.NoError(t, store.Forget(ctx, "example.org/never-stored"))
}

func TestTag(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Tag("example.org/42"), Tag("example.org/42"))
	assert.NotEqual(t, Tag("example.org/42"), Tag("example.org/43"))
	assert.Regexp(t, `^item-[0-9a-f]{32}$`, Tag("example.org/42"))
}
