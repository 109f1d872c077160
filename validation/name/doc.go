// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package name provides validation functions for item ids and file names.

Item ids and artifact file names arrive from links and provider responses and
are later joined onto install directories. This package makes sure such a name
can only ever address a single entry directly below its parent.

# Component Validation

	if err := name.ValidateComponent("42"); err != nil {
		// Handle invalid name
	}

Valid names must:
  - Be non-empty (not just whitespace)
  - Not be "." or ".."
  - Not contain "/" or "\"
  - Not contain null bytes or other control characters
  - Be valid UTF-8 of at most 255 bytes
  - Not have leading or trailing whitespace

# Examples

Valid names:

	"42"
	"Papirus 2024.tar.gz"
	"breeze-dark_v2"

Invalid names:

	""                  // empty
	".."                // parent reference
	"a/b"               // separator
	" 42"               // leading space
	"line\nbreak"       // control character
*/
package name
