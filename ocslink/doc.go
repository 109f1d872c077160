// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package ocslink parses and formats ocs:// links.

Two forms are accepted. The canonical form addresses an item at a provider:

	ocs://store.example.org/icon-theme/42
	ocss://store.example.org/wallpaper/1337?type=wallpapers

The legacy direct form names the artifact URL itself and is what older
websites still emit:

	ocs://install?url=https%3A%2F%2Fcdn.example.org%2Fa.tar.gz&type=icons&filename=a.tar.gz

Parsing is pure: it performs no I/O. Path segments are percent-decoded and item
ids must be usable as a single path component. Every failure is an ocserr
error of kind KindParse.

	link, err := ocslink.Parse(raw)
	if err != nil {
		return err
	}
	fmt.Println(link.ProviderHost, link.Category, link.ItemID)

Link.String renders a link so that Parse(link.String()) yields an equal Link.
*/
package ocslink
