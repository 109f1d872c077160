// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package content

// Descriptor is the resolved description of a content item: everything the
// custodian needs to route, fetch, verify and install it.
type Descriptor struct {
	// ProviderHost is the host the item was resolved against.
	ProviderHost string `json:"providerHost"`
	// ItemID identifies the item within its provider.
	ItemID string `json:"itemId"`
	// Title is a human-readable name for the item.
	Title string `json:"title"`
	// Category decides where the item is installed.
	Category Category `json:"category"`
	// InstallType refines Category when the provider or link names one.
	InstallType InstallType `json:"installType,omitempty"`
	// DownloadURL is an absolute http(s) URL inside the provider's trust domain.
	DownloadURL string `json:"downloadUrl"`
	// FileName is the name of the downloaded artifact.
	FileName string `json:"fileName"`
	// MediaType is the content type advertised by the provider, if any.
	MediaType string `json:"mediaType,omitempty"`
	// Checksum is the expected digest; zero when the provider has none.
	Checksum Checksum `json:"checksum,omitzero"`
	// SizeBytes is the advertised artifact size; zero when unknown.
	SizeBytes int64 `json:"sizeBytes,omitempty"`
}

// Key returns the install identity of the item: provider host and item id.
func (d *Descriptor) Key() string {
	return d.ProviderHost + "/" + d.ItemID
}

// Attributes flattens the descriptor into the variables exposed to routing
// conditions.
func (d *Descriptor) Attributes() map[string]any {
	return map[string]any{
		"provider_host": d.ProviderHost,
		"item_id":       d.ItemID,
		"title":         d.Title,
		"category":      string(d.Category),
		"install_type":  string(d.InstallType),
		"download_url":  d.DownloadURL,
		"file_name":     d.FileName,
		"media_type":    d.MediaType,
		"checksum":      d.Checksum.String(),
		"size_bytes":    d.SizeBytes,
	}
}
