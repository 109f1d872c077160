// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	orascontent "oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/oci"
	"oras.land/oras-go/v2/errdef"

	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/fetch"
)

// Media and artifact types of cached items.
const (
	ArtifactType   = "application/vnd.ocs-custodian.artifact.v1"
	LayerMediaType = "application/vnd.ocs-custodian.artifact.content.v1"

	AnnotationKey      = "dev.ocs-custodian.key"
	AnnotationChecksum = "dev.ocs-custodian.checksum"
)

// ErrNotFound is returned when the cache holds nothing for a key or digest.
var ErrNotFound = errors.New("artifact not cached")

// Entry is a cached artifact.
type Entry struct {
	// Layer describes the artifact blob.
	Layer    ocispec.Descriptor
	FileName string
	Checksum content.Checksum
}

// Store keeps verified artifacts in an OCI image layout. Each item is a
// manifest with a single layer, tagged by a hash of its key so that the
// latest download of an item can be found again.
type Store struct {
	root  string
	inner *oci.Store
}

// New opens or initializes the store at root.
func New(root string) (*Store, error) {
	inner, err := oci.New(root)
	if err != nil {
		return nil, fmt.Errorf("creating OCI store at %s: %w", root, err)
	}
	return &Store{root: root, inner: inner}, nil
}

// Root returns the cache root within the given cache home directory.
func Root(cacheHome string) string {
	return filepath.Join(cacheHome, "ocs-custodian", "artifacts")
}

// DefaultRoot returns the cache root under the XDG cache directory.
func DefaultRoot() string {
	return Root(xdg.CacheHome)
}

// Dir returns the store root directory.
func (s *Store) Dir() string {
	return s.root
}

// Tag returns the tag under which key is stored.
func Tag(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "item-" + hex.EncodeToString(sum[:16])
}

// Put stores the artifact under key. The blob is streamed from disk and its
// digest is checked while it is written.
func (s *Store) Put(ctx context.Context, key string, a *fetch.Artifact, fileName string) (*Entry, error) {
	layer := ocispec.Descriptor{
		MediaType: LayerMediaType,
		Digest:    a.Digest,
		Size:      a.Size,
		Annotations: map[string]string{
			ocispec.AnnotationTitle: fileName,
		},
	}

	// #nosec G304 - path is a download owned by the caller
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := s.inner.Push(ctx, layer, f); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return nil, fmt.Errorf("writing blob: %w", err)
	}

	manifest, err := oras.PackManifest(ctx, s.inner, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers: []ocispec.Descriptor{layer},
		ManifestAnnotations: map[string]string{
			AnnotationKey:      key,
			AnnotationChecksum: a.Checksum.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	if err := s.inner.Tag(ctx, manifest, Tag(key)); err != nil {
		return nil, fmt.Errorf("tagging: %w", err)
	}

	return &Entry{Layer: layer, FileName: fileName, Checksum: a.Checksum}, nil
}

// Lookup returns the most recent artifact stored under key.
func (s *Store) Lookup(ctx context.Context, key string) (*Entry, error) {
	desc, err := s.inner.Resolve(ctx, Tag(key))
	if errors.Is(err, errdef.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", key, err)
	}

	data, err := orascontent.FetchAll(ctx, s.inner, desc)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if len(manifest.Layers) != 1 {
		return nil, fmt.Errorf("manifest for %s has %d layers", key, len(manifest.Layers))
	}

	layer := manifest.Layers[0]
	entry := &Entry{Layer: layer, FileName: layer.Annotations[ocispec.AnnotationTitle]}
	if raw := manifest.Annotations[AnnotationChecksum]; raw != "" {
		entry.Checksum, err = content.ParseChecksum(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing cached checksum: %w", err)
		}
	}
	return entry, nil
}

// Has reports whether the blob described by layer is present.
func (s *Store) Has(ctx context.Context, layer ocispec.Descriptor) (bool, error) {
	ok, err := s.inner.Exists(ctx, layer)
	if err != nil {
		return false, fmt.Errorf("checking blob %s: %w", layer.Digest, err)
	}
	return ok, nil
}

// Materialize copies the blob described by layer to a new file in dir and
// returns its path. The copy is verified against the descriptor.
func (s *Store) Materialize(ctx context.Context, layer ocispec.Descriptor, dir string) (string, error) {
	rc, err := s.inner.Fetch(ctx, layer)
	if errors.Is(err, errdef.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, layer.Digest)
	}
	if err != nil {
		return "", fmt.Errorf("reading blob %s: %w", layer.Digest, err)
	}
	defer func() { _ = rc.Close() }()

	tmp, err := os.CreateTemp(dir, "ocs-*.part")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	vr := orascontent.NewVerifyReader(rc, layer)
	_, err = io.Copy(tmp, vr)
	if err == nil {
		err = vr.Verify()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("materializing %s: %w", layer.Digest, err)
	}
	return tmp.Name(), nil
}

// Forget deletes the manifest stored under key and garbage collects blobs
// nothing refers to any more.
func (s *Store) Forget(ctx context.Context, key string) error {
	desc, err := s.inner.Resolve(ctx, Tag(key))
	if errors.Is(err, errdef.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving %s: %w", key, err)
	}
	if err := s.inner.Delete(ctx, desc); err != nil && !errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	if err := s.inner.GC(ctx); err != nil {
		return fmt.Errorf("collecting garbage: %w", err)
	}
	return nil
}

// Descriptor builds the layer descriptor of a cached artifact from what an
// install record keeps.
func Descriptor(d digest.Digest, size int64) ocispec.Descriptor {
	return ocispec.Descriptor{MediaType: LayerMediaType, Digest: d, Size: size}
}
