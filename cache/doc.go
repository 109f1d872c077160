// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package cache stores verified artifacts in a local OCI image layout.

Every cached item is an OCI manifest (artifact type ArtifactType) with one
layer holding the downloaded bytes. The manifest is tagged with Tag(key),
where key is "provider_host/item_id", and annotated with the provider
checksum. A re-install of an unchanged item can then be served from the
cache without touching the network:

	store, err := cache.New(cache.DefaultRoot())
	if err != nil {
		return err
	}
	entry, err := store.Lookup(ctx, desc.Key())
	if err == nil && entry.Checksum == desc.Checksum {
		path, err := store.Materialize(ctx, entry.Layer, tempDir)
		...
	}

The layout lives under $XDG_CACHE_HOME/ocs-custodian/artifacts by default.
*/
package cache
