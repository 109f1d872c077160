// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package http provides security-focused validation functions for values that
end up on the wire: HTTP headers, provider hosts and artifact download URLs.

# Header Validation

Validate HTTP header names and values per RFC 7230:

	if err := http.ValidateHeaderName("X-Custom-Header"); err != nil {
		// Handle invalid header name
	}

	if err := http.ValidateUserAgent("ocs-custodian/1.0"); err != nil {
		// Handle invalid user agent
	}

The validators reject CRLF injection attempts and control characters, and
enforce length limits (256 bytes for names, 8192 for values).

# Host Validation

ValidateHost accepts DNS names and IP literals with an optional port:

	if err := http.ValidateHost("api.example.org:8443"); err != nil {
		// Handle invalid host
	}

# Download URL Validation

ParseDownloadURL parses URLs returned by providers before anything is
fetched from them:

	u, err := http.ParseDownloadURL("https://cdn.example.org/42.tar.gz", true)

Download URLs must use http or https (https only when required), name a valid
host, and carry neither credentials nor a fragment.
*/
package http
