// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package installer places verified artifacts at their routed destination
// and records them.
//
// Work is staged in a hidden directory created next to the destination and
// moved into place with a rename, so the destination either holds the
// previous content or the complete new content. Archives are validated in
// full before anything is written; entries that would escape the item
// directory, links and device nodes reject the whole archive.
//
// Installs of one item are serialized in the process and, when a lock
// directory is configured, across processes.
package installer
