// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package http provides validation functions for HTTP headers, hosts and
// download URLs.
package http

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// hostLabelRegex matches a single DNS label.
var hostLabelRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidateHeaderName validates that a string is a valid HTTP header name per RFC 7230.
func ValidateHeaderName(name string) error {
	if name == "" {
		return fmt.Errorf("header name cannot be empty")
	}
	if len(name) > 256 {
		return fmt.Errorf("header name exceeds maximum length of 256 bytes")
	}
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("invalid HTTP header name: contains invalid characters")
	}
	return nil
}

// ValidateHeaderValue validates that a string is a valid HTTP header value per RFC 7230.
// It checks for CRLF injection and control characters.
func ValidateHeaderValue(value string) error {
	if value == "" {
		return fmt.Errorf("header value cannot be empty")
	}

	// Common HTTP server limit
	if len(value) > 8192 {
		return fmt.Errorf("header value exceeds maximum length of 8192 bytes")
	}

	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("invalid HTTP header value: contains control characters")
	}

	return nil
}

// ValidateUserAgent validates a User-Agent sent to providers and download hosts.
func ValidateUserAgent(userAgent string) error {
	if err := ValidateHeaderValue(userAgent); err != nil {
		return fmt.Errorf("invalid user agent: %w", err)
	}
	return nil
}

// ValidateHost validates a provider authority: a DNS name or IP literal with
// an optional port.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if len(host) > 253+6 {
		return fmt.Errorf("host exceeds maximum length: %q", host)
	}

	name, port := host, ""
	if h, p, err := net.SplitHostPort(host); err == nil {
		name, port = h, p
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		name = host[1 : len(host)-1]
	}

	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("host has invalid port: %q", host)
		}
	}

	if net.ParseIP(name) != nil {
		return nil
	}
	if strings.Contains(name, ":") {
		return fmt.Errorf("host contains unexpected colon: %q", host)
	}

	labels := strings.Split(strings.TrimSuffix(name, "."), ".")
	for _, label := range labels {
		if !hostLabelRegex.MatchString(label) {
			return fmt.Errorf("host contains invalid label %q: %q", label, host)
		}
	}
	return nil
}

// ParseDownloadURL validates and parses a URL an artifact will be fetched from.
//
// A valid download URL must:
//   - Use the http or https scheme, or only https when requireHTTPS is set
//   - Include a valid host
//   - Not carry user credentials
//   - Not contain fragments
func ParseDownloadURL(rawURL string, requireHTTPS bool) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("download URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid download URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if requireHTTPS {
			return nil, fmt.Errorf("download URL must use https: %s", rawURL)
		}
	case "":
		return nil, fmt.Errorf("download URL must include a scheme (e.g., https://): %s", rawURL)
	default:
		return nil, fmt.Errorf("download URL has unsupported scheme %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return nil, fmt.Errorf("download URL must include a host: %s", rawURL)
	}
	if err := ValidateHost(parsed.Host); err != nil {
		return nil, fmt.Errorf("download URL has invalid host: %w", err)
	}
	if parsed.User != nil {
		return nil, fmt.Errorf("download URL must not contain credentials")
	}
	if parsed.Fragment != "" {
		return nil, fmt.Errorf("download URL must not contain fragments (#): %s", rawURL)
	}

	return parsed, nil
}
