// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package env

//go:generate mockgen -copyright_file=../.github/license-header.txt -source=env.go -destination=mocks/mock_reader.go -package=mocks Reader

import (
	"os"
	"strings"
)

// Prefix is prepended to the name of every variable the custodian reads.
const Prefix = "OCS_CUSTODIAN_"

// Reader defines an interface for environment variable access
type Reader interface {
	Getenv(key string) string
}

// OSReader implements Reader using the standard os package
type OSReader struct{}

// Getenv returns the value of the environment variable named by the key
func (*OSReader) Getenv(key string) string {
	return os.Getenv(key)
}

// MapReader implements Reader over a fixed set of variables.
type MapReader map[string]string

// Getenv returns the value stored under key.
func (m MapReader) Getenv(key string) string {
	return m[key]
}

// Var returns the full variable name for a custodian setting, e.g.
// Var("log_level") is "OCS_CUSTODIAN_LOG_LEVEL".
func Var(name string) string {
	return Prefix + strings.ToUpper(name)
}

// Lookup reads the custodian setting name from r. Surrounding whitespace is
// dropped and an empty value counts as unset.
func Lookup(r Reader, name string) (string, bool) {
	v := strings.TrimSpace(r.Getenv(Var(name)))
	return v, v != ""
}
