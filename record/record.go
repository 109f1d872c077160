// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package record

//go:generate mockgen -copyright_file=../.github/license-header.txt -source=record.go -destination=mocks/mock_store.go -package=mocks Store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/stacklok/ocs-custodian/content"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("install record not found")

// Key identifies an installed item.
type Key struct {
	ProviderHost string `json:"providerHost"`
	ItemID       string `json:"itemId"`
}

// String returns "provider_host/item_id".
func (k Key) String() string {
	return k.ProviderHost + "/" + k.ItemID
}

// ParseKey parses the output of Key.String.
func ParseKey(s string) (Key, error) {
	host, item, ok := strings.Cut(s, "/")
	if !ok || host == "" || item == "" {
		return Key{}, errors.New("record key must be provider_host/item_id")
	}
	return Key{ProviderHost: host, ItemID: item}, nil
}

// KeyOf returns the key of the item desc describes.
func KeyOf(desc *content.Descriptor) Key {
	return Key{ProviderHost: desc.ProviderHost, ItemID: desc.ItemID}
}

// Record describes one installed item.
type Record struct {
	ItemID       string `json:"itemId"`
	ProviderHost string `json:"providerHost"`
	// InstalledPath is the file or directory the item occupies.
	InstalledPath string           `json:"installedPath"`
	InstalledAt   time.Time        `json:"installedAt"`
	Category      content.Category `json:"category"`
	Title         string           `json:"title,omitempty"`
	Checksum      content.Checksum `json:"checksum,omitzero"`
	// ArtifactDigest locates the downloaded artifact in the cache.
	ArtifactDigest digest.Digest `json:"artifactDigest,omitempty"`
	// SizeBytes is the size of the downloaded artifact.
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	// Previous lists earlier side-by-side installs of the item that are
	// still on disk.
	Previous []string `json:"previous,omitempty"`
}

// Paths returns every path the item occupies, current install first.
func (r *Record) Paths() []string {
	return append([]string{r.InstalledPath}, r.Previous...)
}

func (r *Record) clone() *Record {
	c := *r
	c.Previous = slices.Clone(r.Previous)
	return &c
}

// Key returns the key of r.
func (r *Record) Key() Key {
	return Key{ProviderHost: r.ProviderHost, ItemID: r.ItemID}
}

// Store persists install records. Implementations are safe for concurrent
// use.
type Store interface {
	// Get returns the record for key or ErrNotFound.
	Get(ctx context.Context, key Key) (*Record, error)
	// Put creates or replaces the record with the same key.
	Put(ctx context.Context, r *Record) error
	// Delete removes the record for key. Deleting a missing record is not an
	// error.
	Delete(ctx context.Context, key Key) error
	// List returns all records ordered by key.
	List(ctx context.Context) ([]*Record, error)
}
