// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package name provides validation functions for names that become path
// components on disk.
package name

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxComponentLength is the longest name accepted, in bytes. It matches the
// NAME_MAX of common Linux filesystems.
const MaxComponentLength = 255

// ValidateComponent validates that name can be used as a single path
// component below an install directory. It rejects empty names, names that
// are only whitespace, "." and "..", path separators, null bytes and other
// control characters, invalid UTF-8, and names longer than MaxComponentLength.
func ValidateComponent(name string) error {
	if name == "" || strings.TrimSpace(name) == "" {
		return fmt.Errorf("name cannot be empty or consist only of whitespace")
	}

	if len(name) > MaxComponentLength {
		return fmt.Errorf("name exceeds maximum length of %d bytes", MaxComponentLength)
	}

	if strings.Contains(name, "\x00") {
		return fmt.Errorf("name cannot contain null bytes")
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be a relative path reference: %q", name)
	}

	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("name cannot contain path separators: %q", name)
	}

	if !utf8.ValidString(name) {
		return fmt.Errorf("name must be valid UTF-8: %q", name)
	}

	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("name cannot contain control characters: %q", name)
	}

	if strings.TrimSpace(name) != name {
		return fmt.Errorf("name cannot have leading or trailing whitespace: %q", name)
	}

	return nil
}

// ReservedPrefix starts the names of the custodian's own staging and probe
// entries inside install directories.
const ReservedPrefix = ".ocs-"

// IsReserved reports whether name could clash with the custodian's own
// entries.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, ReservedPrefix)
}
