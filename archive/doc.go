// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package archive detects, validates and unpacks downloaded artifacts.

Formats are sniffed from content with mimetype: tar, zip and tarballs
compressed with gzip, bzip2, xz or zstd. Anything else is FormatRaw and is
installed as a single file.

Extraction only ever writes regular files and directories below the
destination. Links, devices, absolute paths and entries that climb out of the
destination are rejected, and both per-file and total sizes are capped:

	format, err := archive.Detect(path)
	if err != nil {
		return err
	}
	if err := archive.Validate(ctx, path, format, archive.Limits{}); err != nil {
		return err
	}
	return archive.Extract(ctx, path, format, dest, archive.Limits{})

Validate performs the same checks as Extract without touching the filesystem,
so a hostile archive can be refused before anything is staged.
*/
package archive
