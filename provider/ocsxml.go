// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// OCS status codes returned in <meta><statuscode>.
const (
	statusOK            = 100
	statusNotFound      = 101
	statusContentAbsent = 103
)

// document is the envelope of every OCS v1 response.
type document struct {
	XMLName xml.Name `xml:"ocs"`
	Meta    meta     `xml:"meta"`
	Data    struct {
		Content []contentElement `xml:"content"`
	} `xml:"data"`
}

type meta struct {
	Status     string `xml:"status"`
	StatusCode string `xml:"statuscode"`
	Message    string `xml:"message"`
}

// contentElement captures every child of <content>. OCS numbers download
// variants inside element names (downloadlink1, downloadlink2, ...) so the
// fields are collected generically and interpreted afterwards.
type contentElement struct {
	Details string  `xml:"details,attr"`
	Fields  []field `xml:",any"`
}

type field struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// variant is one numbered download of a content item.
type variant struct {
	Index       int
	Link        string
	Name        string
	Type        string
	PackageType string
	MD5         string
	SizeKB      string
	Tags        string
}

var variantFieldRegex = regexp.MustCompile(`^download(link|name|size|md5sum|type|_package_type|tags)([0-9]+)$`)

func decodeDocument(r io.Reader) (*document, error) {
	var doc document
	dec := xml.NewDecoder(r)
	dec.Strict = true
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding OCS response: %w", err)
	}
	return &doc, nil
}

// statusCode parses the OCS status code. Some providers only fill in the
// textual status, which is mapped onto the numeric codes.
func (m meta) statusCode() (int, error) {
	if code := strings.TrimSpace(m.StatusCode); code != "" {
		n, err := strconv.Atoi(code)
		if err != nil {
			return 0, fmt.Errorf("non-numeric OCS status code %q", code)
		}
		return n, nil
	}
	if strings.EqualFold(strings.TrimSpace(m.Status), "ok") {
		return statusOK, nil
	}
	return 0, fmt.Errorf("OCS response has no status code")
}

// fields returns the content children keyed by lower-cased element name.
// Repeated elements keep their first value.
func (c *contentElement) fields() map[string]string {
	out := make(map[string]string, len(c.Fields))
	for _, f := range c.Fields {
		key := strings.ToLower(f.XMLName.Local)
		if _, seen := out[key]; !seen {
			out[key] = strings.TrimSpace(f.Value)
		}
	}
	return out
}

// variants collects the numbered download variants that carry a link,
// ordered by index.
func variants(fields map[string]string) []variant {
	byIndex := map[int]*variant{}
	for key, value := range fields {
		m := variantFieldRegex.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil || idx < 1 {
			continue
		}
		v, ok := byIndex[idx]
		if !ok {
			v = &variant{Index: idx}
			byIndex[idx] = v
		}
		switch m[1] {
		case "link":
			v.Link = value
		case "name":
			v.Name = value
		case "size":
			v.SizeKB = value
		case "md5sum":
			v.MD5 = value
		case "type":
			v.Type = value
		case "_package_type":
			v.PackageType = value
		case "tags":
			v.Tags = value
		}
	}

	out := make([]variant, 0, len(byIndex))
	for _, v := range byIndex {
		if v.Link != "" {
			out = append(out, *v)
		}
	}
	slices.SortFunc(out, func(a, b variant) int { return a.Index - b.Index })
	return out
}

// matches reports whether the variant advertises the given install type.
func (v variant) matches(installType string) bool {
	if installType == "" {
		return false
	}
	if strings.EqualFold(v.Type, installType) || strings.EqualFold(v.PackageType, installType) {
		return true
	}
	for _, tag := range strings.Split(v.Tags, ",") {
		tag = strings.TrimSpace(tag)
		if strings.EqualFold(tag, installType) || strings.EqualFold(tag, "type##"+installType) {
			return true
		}
	}
	return false
}

// maxSizeKB is the largest advertised size whose byte bound fits an int64.
const maxSizeKB = math.MaxInt64/1024 - 1

// sizeBytes converts the advertised size in kilobytes to an upper bound in
// bytes. Providers round the kilobyte figure down, so one extra kilobyte is
// added. Zero means unknown.
func (v variant) sizeBytes() (int64, error) {
	if v.SizeKB == "" {
		return 0, nil
	}
	kb, err := strconv.ParseInt(v.SizeKB, 10, 64)
	if err != nil || kb < 0 {
		return 0, fmt.Errorf("invalid download size %q", v.SizeKB)
	}
	if kb == 0 {
		return 0, nil
	}
	if kb > maxSizeKB {
		return 0, fmt.Errorf("download size %q is out of range", v.SizeKB)
	}
	return (kb + 1) * 1024, nil
}
