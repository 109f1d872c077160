// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Checksum algorithms accepted from providers.
const (
	AlgorithmMD5    = "md5"
	AlgorithmSHA1   = "sha1"
	AlgorithmSHA256 = "sha256"
	AlgorithmSHA512 = "sha512"
)

var algorithmHexLengths = map[string]int{
	AlgorithmMD5:    32,
	AlgorithmSHA1:   40,
	AlgorithmSHA256: 64,
	AlgorithmSHA512: 128,
}

// ErrInvalidChecksum is returned when a checksum is not in a recognized format.
var ErrInvalidChecksum = errors.New("invalid checksum")

// Checksum is an expected artifact digest. The zero value means the provider
// supplied no checksum.
type Checksum struct {
	Algorithm string
	Hex       string
}

// ParseChecksum parses "algo:hex" or bare hex. Bare hex is classified by its
// length: 32 characters is md5, 40 is sha1, 64 is sha256 and 128 is sha512.
// Hex digits are lower-cased. An empty string yields the zero Checksum.
func ParseChecksum(s string) (Checksum, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Checksum{}, nil
	}

	algo, encoded, hasAlgo := strings.Cut(s, ":")
	if !hasAlgo {
		encoded = algo
		algo = ""
	}
	algo = strings.ToLower(algo)
	encoded = strings.ToLower(encoded)

	if algo == "" {
		for name, n := range algorithmHexLengths {
			if len(encoded) == n {
				algo = name
				break
			}
		}
		if algo == "" {
			return Checksum{}, fmt.Errorf("%w: unexpected length %d for %q", ErrInvalidChecksum, len(encoded), s)
		}
	}

	want, ok := algorithmHexLengths[algo]
	if !ok {
		return Checksum{}, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidChecksum, algo)
	}
	if len(encoded) != want {
		return Checksum{}, fmt.Errorf("%w: %s digest must be %d hex characters, got %d", ErrInvalidChecksum, algo, want, len(encoded))
	}
	if _, err := hex.DecodeString(encoded); err != nil {
		return Checksum{}, fmt.Errorf("%w: %q is not hexadecimal", ErrInvalidChecksum, encoded)
	}
	return Checksum{Algorithm: algo, Hex: encoded}, nil
}

// IsZero reports whether no checksum is present.
func (c Checksum) IsZero() bool {
	return c.Algorithm == "" && c.Hex == ""
}

// String renders the checksum as "algo:hex", or "" when absent.
func (c Checksum) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Algorithm + ":" + c.Hex
}

// MarshalText implements encoding.TextMarshaler.
func (c Checksum) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Checksum) UnmarshalText(text []byte) error {
	parsed, err := ParseChecksum(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
