// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/ocserr"
	"github.com/stacklok/ocs-custodian/ocslink"
	validhttp "github.com/stacklok/ocs-custodian/validation/http"
	validname "github.com/stacklok/ocs-custodian/validation/name"
)

const (
	// DefaultMetadataTimeout bounds the content-info query.
	DefaultMetadataTimeout = 15 * time.Second
	// DefaultDownloadLinkTimeout bounds the download-link query.
	DefaultDownloadLinkTimeout = 15 * time.Second
	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "ocs-custodian"
	// MaxResponseSize caps the size of an OCS XML response.
	MaxResponseSize = 1 << 20
)

// Config describes how to talk to one provider.
type Config struct {
	// BaseURL is the OCS API root. Defaults to https://{host}/ocs/v1.
	BaseURL string
	// CDNHosts are extra download hosts trusted for this provider. An entry
	// of the form "*.example.net" trusts every subdomain of example.net.
	CDNHosts []string
	// UserAgent overrides the client-wide user agent for this provider.
	UserAgent string
}

// StatusError is returned when a provider answers with an unexpected HTTP status.
type StatusError struct {
	StatusCode int
	URL        string
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for provider queries.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithProvider registers per-provider settings for host.
func WithProvider(host string, cfg Config) Option {
	return func(c *Client) {
		c.providers[strings.ToLower(host)] = cfg
	}
}

// WithTimeouts sets the timeouts of the content-info and download-link
// queries. Non-positive values keep the defaults.
func WithTimeouts(metadata, downloadLink time.Duration) Option {
	return func(c *Client) {
		if metadata > 0 {
			c.metadataTimeout = metadata
		}
		if downloadLink > 0 {
			c.downloadLinkTimeout = downloadLink
		}
	}
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client resolves ocs:// links into content descriptors by querying the
// provider's OCS API. It is safe for concurrent use; identical content-info
// queries in flight at the same time are shared.
type Client struct {
	httpClient          *http.Client
	providers           map[string]Config
	metadataTimeout     time.Duration
	downloadLinkTimeout time.Duration
	userAgent           string
	logger              *slog.Logger
	group               singleflight.Group
}

// NewClient creates a provider client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:          &http.Client{},
		providers:           map[string]Config{},
		metadataTimeout:     DefaultMetadataTimeout,
		downloadLinkTimeout: DefaultDownloadLinkTimeout,
		userAgent:           DefaultUserAgent,
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve turns a link into a descriptor. Legacy direct links are described
// without any network access. Canonical links cost a content-info query and a
// download-link query, each bounded by its own timeout.
func (c *Client) Resolve(ctx context.Context, link *ocslink.Link) (*content.Descriptor, error) {
	if link.Direct() {
		return describeDirect(link)
	}

	cfg := c.providers[link.ProviderHost]
	base, err := c.baseURL(link, cfg)
	if err != nil {
		return nil, err
	}

	fields, err := c.contentInfo(ctx, base, link, cfg)
	if err != nil {
		return nil, err
	}

	desc, err := c.describe(ctx, base, link, cfg, fields)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "resolved content",
		"provider", desc.ProviderHost,
		"item", desc.ItemID,
		"category", desc.Category,
		"download_url", desc.DownloadURL,
	)
	return desc, nil
}

func (c *Client) baseURL(link *ocslink.Link, cfg Config) (*url.URL, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = "https://" + link.ProviderHost + "/ocs/v1"
	}
	base, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil || base.Host == "" {
		return nil, ocserr.Newf(ocserr.KindProviderUnavailable, "invalid base URL %q for provider %s", raw, link.ProviderHost)
	}
	if link.Secure() && base.Scheme != "https" {
		return nil, ocserr.Newf(ocserr.KindProviderUnavailable, "provider %s has no https endpoint", link.ProviderHost)
	}
	return base, nil
}

// contentInfo runs the content-info query, sharing it with concurrent callers
// asking for the same item. The shared query outlives a caller that gives up.
func (c *Client) contentInfo(ctx context.Context, base *url.URL, link *ocslink.Link, cfg Config) (map[string]string, error) {
	endpoint := base.JoinPath("content", "data", link.ItemID)
	key := endpoint.String()

	ch := c.group.DoChan(key, func() (any, error) {
		doc, err := c.query(context.WithoutCancel(ctx), endpoint.String(), c.metadataTimeout, cfg)
		if err != nil {
			return nil, err
		}
		if len(doc.Data.Content) != 1 {
			return nil, ocserr.Newf(ocserr.KindProviderMalformedResponse,
				"expected exactly one content element, got %d", len(doc.Data.Content))
		}
		return doc.Data.Content[0].fields(), nil
	})

	select {
	case <-ctx.Done():
		return nil, ocserr.FromContext(ctx.Err(), ocserr.KindProviderUnavailable)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]string), nil
	}
}

func (c *Client) describe(
	ctx context.Context, base *url.URL, link *ocslink.Link, cfg Config, fields map[string]string,
) (*content.Descriptor, error) {
	id := fields["id"]
	if id == "" {
		return nil, ocserr.Newf(ocserr.KindProviderMalformedResponse, "content has no id")
	}
	if id != link.ItemID {
		return nil, ocserr.Newf(ocserr.KindProviderMalformedResponse, "content id %q does not match requested item %q", id, link.ItemID)
	}

	vs := variants(fields)
	if len(vs) == 0 {
		return nil, ocserr.Newf(ocserr.KindProviderNoDownload, "item %s has no downloads", link.ItemID)
	}
	chosen := vs[0]
	for _, v := range vs {
		if v.matches(string(link.InstallType)) {
			chosen = v
			break
		}
	}

	size, err := chosen.sizeBytes()
	if err != nil {
		return nil, ocserr.New(ocserr.KindProviderMalformedResponse, err)
	}

	var checksum content.Checksum
	if chosen.MD5 != "" {
		checksum, err = content.ParseChecksum(content.AlgorithmMD5 + ":" + chosen.MD5)
		if err != nil {
			return nil, ocserr.New(ocserr.KindProviderMalformedResponse, err)
		}
	}

	rawLink, mediaType, err := c.downloadLink(ctx, base, link, cfg, chosen.Index)
	if err != nil {
		return nil, err
	}
	target, err := validhttp.ParseDownloadURL(rawLink, link.Secure())
	if err != nil {
		return nil, ocserr.New(ocserr.KindProviderMalformedResponse, err)
	}
	if !trusted(link.ProviderHost, base, cfg, target) {
		return nil, ocserr.Newf(ocserr.KindProviderMalformedResponse,
			"download host %s is outside the trust domain of %s", target.Hostname(), link.ProviderHost)
	}

	installType := link.InstallType
	if installType == "" {
		if t := content.ParseInstallType(chosen.Type); t.Known() {
			installType = t
		}
	}

	title := fields["name"]
	if title == "" {
		title = link.ItemID
	}

	return &content.Descriptor{
		ProviderHost: link.ProviderHost,
		ItemID:       link.ItemID,
		Title:        title,
		Category:     category(fields["typename"], link.Category, installType),
		InstallType:  installType,
		DownloadURL:  target.String(),
		FileName:     fileName(link, chosen.Name, target),
		MediaType:    mediaType,
		Checksum:     checksum,
		SizeBytes:    size,
	}, nil
}

func (c *Client) downloadLink(
	ctx context.Context, base *url.URL, link *ocslink.Link, cfg Config, index int,
) (string, string, error) {
	endpoint := base.JoinPath("content", "download", link.ItemID, fmt.Sprint(index))
	doc, err := c.query(ctx, endpoint.String(), c.downloadLinkTimeout, cfg)
	if err != nil {
		return "", "", err
	}
	if len(doc.Data.Content) == 0 {
		return "", "", ocserr.Newf(ocserr.KindProviderMalformedResponse, "download response has no content")
	}
	fields := doc.Data.Content[0].fields()
	if fields["downloadlink"] == "" {
		return "", "", ocserr.Newf(ocserr.KindProviderMalformedResponse, "download response has no download link")
	}
	return fields["downloadlink"], fields["mimetype"], nil
}

// query performs one GET against the provider and decodes the OCS envelope.
func (c *Client) query(ctx context.Context, rawURL string, timeout time.Duration, cfg Config) (*document, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, ocserr.New(ocserr.KindInternal, fmt.Errorf("building request: %w", err))
	}
	userAgent := c.userAgent
	if cfg.UserAgent != "" {
		userAgent = cfg.UserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ocserr.FromContext(ctx.Err(), ocserr.KindProviderUnavailable)
		}
		return nil, ocserr.New(ocserr.KindProviderUnavailable, fmt.Errorf("querying %s: %w", rawURL, err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, ocserr.New(ocserr.KindProviderNotFound,
			&StatusError{StatusCode: resp.StatusCode, URL: rawURL, Message: http.StatusText(resp.StatusCode)})
	case resp.StatusCode >= 500:
		return nil, ocserr.New(ocserr.KindProviderUnavailable,
			&StatusError{StatusCode: resp.StatusCode, URL: rawURL, Message: http.StatusText(resp.StatusCode)})
	default:
		return nil, ocserr.New(ocserr.KindProviderMalformedResponse,
			&StatusError{StatusCode: resp.StatusCode, URL: rawURL, Message: "unexpected status"})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ocserr.FromContext(ctx.Err(), ocserr.KindProviderUnavailable)
		}
		return nil, ocserr.New(ocserr.KindProviderUnavailable, fmt.Errorf("reading response from %s: %w", rawURL, err))
	}
	if len(body) > MaxResponseSize {
		return nil, ocserr.Newf(ocserr.KindProviderMalformedResponse, "response from %s exceeds %d bytes", rawURL, MaxResponseSize)
	}

	doc, err := decodeDocument(bytes.NewReader(body))
	if err != nil {
		return nil, ocserr.New(ocserr.KindProviderMalformedResponse, err)
	}
	code, err := doc.Meta.statusCode()
	if err != nil {
		return nil, ocserr.New(ocserr.KindProviderMalformedResponse, err)
	}
	switch {
	case code == statusOK:
		return doc, nil
	case code == statusNotFound || code == statusContentAbsent:
		return nil, ocserr.Newf(ocserr.KindProviderNotFound, "provider reported status %d: %s", code, doc.Meta.Message)
	case code >= 900:
		return nil, ocserr.Newf(ocserr.KindProviderUnavailable, "provider reported status %d: %s", code, doc.Meta.Message)
	default:
		return nil, ocserr.Newf(ocserr.KindProviderMalformedResponse, "unexpected OCS status %d: %s", code, doc.Meta.Message)
	}
}

// describeDirect builds a descriptor for a legacy direct link.
func describeDirect(link *ocslink.Link) (*content.Descriptor, error) {
	target, err := validhttp.ParseDownloadURL(link.DownloadURL, link.Secure())
	if err != nil {
		return nil, ocserr.New(ocserr.KindParse, err)
	}
	name := link.FileName
	if name == "" {
		name = link.ItemID
	}
	return &content.Descriptor{
		ProviderHost: link.ProviderHost,
		ItemID:       link.ItemID,
		Title:        name,
		Category:     link.Category,
		InstallType:  link.InstallType,
		DownloadURL:  target.String(),
		FileName:     name,
	}, nil
}

// category picks the category of an item. A type name the provider reports
// wins, then a known category from the link, then the install type's.
func category(typeName string, fromLink content.Category, installType content.InstallType) content.Category {
	if c := content.CategoryFromTypeName(typeName); c != content.CategoryOther {
		return c
	}
	if fromLink.Known() {
		return fromLink
	}
	return installType.Category()
}

// fileName picks the artifact file name: the link's hint, the provider's
// download name, the last segment of the download URL, and finally the item id.
func fileName(link *ocslink.Link, advertised string, target *url.URL) string {
	for _, candidate := range []string{link.FileName, advertised, path.Base(target.Path)} {
		if candidate != "" && validname.ValidateComponent(candidate) == nil {
			return candidate
		}
	}
	return link.ItemID
}

// trusted reports whether a download URL stays inside the provider's trust
// domain: the provider host, its registrable domain and subdomains, the base
// URL host, or a configured CDN host.
func trusted(providerHost string, base *url.URL, cfg Config, target *url.URL) bool {
	host := strings.ToLower(target.Hostname())
	provider := strings.ToLower(hostname(providerHost))

	if host == provider || host == strings.ToLower(base.Hostname()) {
		return true
	}
	for _, cdn := range cfg.CDNHosts {
		cdn = strings.ToLower(cdn)
		if wildcard, ok := strings.CutPrefix(cdn, "*."); ok {
			if strings.HasSuffix(host, "."+wildcard) {
				return true
			}
			continue
		}
		if host == cdn {
			return true
		}
	}

	if net.ParseIP(host) != nil || net.ParseIP(provider) != nil {
		return false
	}
	providerDomain, err := publicsuffix.EffectiveTLDPlusOne(provider)
	if err != nil {
		return false
	}
	hostDomain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	return providerDomain == hostDomain
}

func hostname(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return strings.Trim(hostport, "[]")
}

// IsStatusError reports whether err carries a provider HTTP status and returns it.
func IsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
