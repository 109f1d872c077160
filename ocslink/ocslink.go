// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ocslink

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/ocserr"
	validhttp "github.com/stacklok/ocs-custodian/validation/http"
	validname "github.com/stacklok/ocs-custodian/validation/name"
)

// Link schemes.
const (
	SchemeOCS  = "ocs"
	SchemeOCSS = "ocss"
)

// Command is the verb of a legacy direct link.
type Command string

// Legacy link commands.
const (
	CommandInstall  Command = "install"
	CommandDownload Command = "download"
)

// Query parameters understood on both link forms.
const (
	paramURL      = "url"
	paramType     = "type"
	paramFileName = "filename"
)

// Link is a parsed ocs:// URI.
//
// The canonical form is ocs://{provider-host}/{category}/{item-id}[?query].
// The legacy direct form ocs://install?url=...&type=...[&filename=...] names
// the artifact URL itself; for it Command and DownloadURL are set and the
// provider host is taken from the download URL.
type Link struct {
	// Scheme is "ocs" or "ocss".
	Scheme string
	// ProviderHost is the authority, including a port if one was given.
	ProviderHost string
	// Category is the parsed category; unrecognized labels are CategoryOther.
	Category content.Category
	// RawCategory is the category label as written in the link.
	RawCategory string
	// ItemID is the percent-decoded item identifier.
	ItemID string
	// RawQuery is the original query string without the leading "?". It is
	// empty for legacy direct links, whose query is fully represented by the
	// parsed fields.
	RawQuery string
	// InstallType is the value of the "type" query parameter, if any.
	InstallType content.InstallType
	// FileName is the value of the "filename" query parameter, if any.
	FileName string

	// Command is set for legacy direct links only.
	Command Command
	// DownloadURL is set for legacy direct links only.
	DownloadURL string
}

// Parse parses an ocs:// or ocss:// URI. Every failure is a KindParse error.
func Parse(raw string) (*Link, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, parseErrorf("link is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, ocserr.New(ocserr.KindParse, fmt.Errorf("malformed link: %w", err))
	}

	switch u.Scheme {
	case SchemeOCS, SchemeOCSS:
	case "":
		return nil, parseErrorf("link has no scheme, expected ocs:// or ocss://")
	default:
		return nil, parseErrorf("unexpected scheme %q, expected ocs or ocss", u.Scheme)
	}

	if u.Opaque != "" {
		return nil, parseErrorf("link must have the form %s://host/category/item", u.Scheme)
	}
	if u.User != nil {
		return nil, parseErrorf("link must not carry user information")
	}
	if u.Fragment != "" {
		return nil, parseErrorf("link must not contain a fragment")
	}
	if u.Host == "" {
		return nil, parseErrorf("link has no provider host")
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, ocserr.New(ocserr.KindParse, fmt.Errorf("malformed query: %w", err))
	}

	if cmd := Command(strings.ToLower(u.Host)); isCommand(cmd) && (u.Path == "" || u.Path == "/") {
		return parseLegacy(u, cmd, query)
	}
	return parseCanonical(u, query)
}

func parseCanonical(u *url.URL, query url.Values) (*Link, error) {
	if err := validhttp.ValidateHost(u.Host); err != nil {
		return nil, ocserr.New(ocserr.KindParse, fmt.Errorf("invalid provider host: %w", err))
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return nil, parseErrorf("link path must be /category/item, got %q", u.EscapedPath())
	}

	rawCategory, err := url.PathUnescape(segments[0])
	if err != nil {
		return nil, ocserr.New(ocserr.KindParse, fmt.Errorf("malformed category: %w", err))
	}
	itemID, err := url.PathUnescape(segments[1])
	if err != nil {
		return nil, ocserr.New(ocserr.KindParse, fmt.Errorf("malformed item id: %w", err))
	}
	if err := validname.ValidateComponent(itemID); err != nil {
		return nil, ocserr.New(ocserr.KindParse, fmt.Errorf("invalid item id: %w", err))
	}

	link := &Link{
		Scheme:       u.Scheme,
		ProviderHost: strings.ToLower(u.Host),
		Category:     content.ParseCategory(rawCategory),
		RawCategory:  rawCategory,
		ItemID:       itemID,
		RawQuery:     u.RawQuery,
	}
	if err := link.applyHints(query); err != nil {
		return nil, err
	}
	return link, nil
}

func parseLegacy(u *url.URL, cmd Command, query url.Values) (*Link, error) {
	downloadURL := query.Get(paramURL)
	if downloadURL == "" {
		return nil, parseErrorf("%s link has no download url", cmd)
	}
	target, err := validhttp.ParseDownloadURL(downloadURL, u.Scheme == SchemeOCSS)
	if err != nil {
		return nil, ocserr.New(ocserr.KindParse, err)
	}
	if query.Get(paramType) == "" {
		return nil, parseErrorf("%s link has no install type", cmd)
	}

	link := &Link{
		Scheme:       u.Scheme,
		ProviderHost: strings.ToLower(target.Host),
		Command:      cmd,
		DownloadURL:  downloadURL,
	}
	if err := link.applyHints(query); err != nil {
		return nil, err
	}
	link.Category = link.InstallType.Category()
	link.RawCategory = string(link.Category)

	link.ItemID = link.FileName
	if link.ItemID == "" {
		link.ItemID = path.Base(target.Path)
	}
	if err := validname.ValidateComponent(link.ItemID); err != nil {
		return nil, ocserr.New(ocserr.KindParse, fmt.Errorf("cannot derive item name from download url: %w", err))
	}
	return link, nil
}

func (l *Link) applyHints(query url.Values) error {
	if t := query.Get(paramType); t != "" {
		l.InstallType = content.ParseInstallType(t)
	}
	if name := query.Get(paramFileName); name != "" {
		if err := validname.ValidateComponent(name); err != nil {
			return ocserr.New(ocserr.KindParse, fmt.Errorf("invalid filename: %w", err))
		}
		l.FileName = name
	}
	return nil
}

// Direct reports whether the link names its artifact URL directly.
func (l *Link) Direct() bool {
	return l.Command != ""
}

// Secure reports whether the link demands https for every network call.
func (l *Link) Secure() bool {
	return l.Scheme == SchemeOCSS
}

// Key identifies the item the link points at. Links with equal keys install
// the same item.
func (l *Link) Key() string {
	return l.ProviderHost + "/" + l.ItemID
}

// String renders the link in its canonical textual form. Parsing the result
// yields an equal Link.
func (l *Link) String() string {
	if l.Direct() {
		var b strings.Builder
		fmt.Fprintf(&b, "%s://%s?%s=%s&%s=%s", l.Scheme, l.Command,
			paramURL, url.QueryEscape(l.DownloadURL), paramType, url.QueryEscape(string(l.InstallType)))
		if l.FileName != "" {
			fmt.Fprintf(&b, "&%s=%s", paramFileName, url.QueryEscape(l.FileName))
		}
		return b.String()
	}

	s := fmt.Sprintf("%s://%s/%s/%s", l.Scheme, l.ProviderHost,
		url.PathEscape(l.RawCategory), url.PathEscape(l.ItemID))
	if l.RawQuery != "" {
		s += "?" + l.RawQuery
	}
	return s
}

func isCommand(cmd Command) bool {
	return cmd == CommandInstall || cmd == CommandDownload
}

func parseErrorf(format string, args ...any) error {
	return ocserr.Newf(ocserr.KindParse, format, args...)
}
