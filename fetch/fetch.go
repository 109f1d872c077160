// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"crypto"
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/ocserr"
	httpval "github.com/stacklok/ocs-custodian/validation/http"
)

const (
	// DefaultSizeTolerance is how far past the advertised size a download
	// may run before it is aborted.
	DefaultSizeTolerance = 0.1
	// DefaultMaxSize caps downloads whose size is not advertised (2GB).
	DefaultMaxSize = 2 * 1024 * 1024 * 1024
	// DefaultStallTimeout aborts a download that receives no data for this long.
	DefaultStallTimeout = 60 * time.Second
	// DefaultUserAgent is sent when no other agent is configured.
	DefaultUserAgent = "ocs-custodian"

	tempPattern = "ocs-*.part"
	bufferSize  = 32 * 1024
)

var errStalled = errors.New("download stalled")

var hashes = map[string]crypto.Hash{
	content.AlgorithmMD5:    crypto.MD5,
	content.AlgorithmSHA1:   crypto.SHA1,
	content.AlgorithmSHA256: crypto.SHA256,
	content.AlgorithmSHA512: crypto.SHA512,
}

// ProgressFunc receives the number of bytes written so far and the expected
// total, which is zero when unknown. Calls are monotonic in received.
type ProgressFunc func(received, total int64)

// Request describes one download.
type Request struct {
	URL string
	// Checksum is verified by Verify; zero skips verification.
	Checksum content.Checksum
	// SizeBytes is the advertised size; zero when unknown.
	SizeBytes int64
	Progress  ProgressFunc
}

// Artifact is a downloaded file waiting to be installed. The caller owns the
// file at Path and must Discard it once it is no longer needed.
type Artifact struct {
	Path string
	Size int64
	// Digest is the sha256 digest of the content.
	Digest digest.Digest
	// Checksum is the content digested with the algorithm of the requested
	// checksum, or md5 when none was requested.
	Checksum content.Checksum
	// MediaType is the Content-Type reported by the server.
	MediaType string
}

// Discard removes the artifact file.
func (a *Artifact) Discard() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", a.Path, err)
	}
	return nil
}

// Fetcher streams downloads to temporary files.
type Fetcher struct {
	client       *http.Client
	tempDir      string
	tolerance    float64
	maxSize      int64
	stallTimeout time.Duration
	userAgent    string
	logger       *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithTempDir sets where partial downloads are written. Defaults to
// os.TempDir.
func WithTempDir(dir string) Option {
	return func(f *Fetcher) {
		f.tempDir = dir
	}
}

// WithSizeTolerance sets the fraction by which a download may exceed its
// advertised size.
func WithSizeTolerance(tolerance float64) Option {
	return func(f *Fetcher) {
		if tolerance >= 0 {
			f.tolerance = tolerance
		}
	}
}

// WithMaxSize caps downloads whose size is unknown.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// WithStallTimeout sets how long a download may go without receiving data.
func WithStallTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.stallTimeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       http.DefaultClient,
		tolerance:    DefaultSizeTolerance,
		maxSize:      DefaultMaxSize,
		stallTimeout: DefaultStallTimeout,
		userAgent:    DefaultUserAgent,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Limit returns the most bytes a download advertised at size may deliver.
func (f *Fetcher) Limit(size int64) int64 {
	if size <= 0 {
		return f.maxSize
	}
	return size + int64(math.Ceil(float64(size)*f.tolerance))
}

// Fetch downloads and verifies req.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Artifact, error) {
	a, err := f.Download(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := Verify(a, req.Checksum); err != nil {
		return nil, err
	}
	return a, nil
}

// Download streams req.URL into a temporary file. No range requests are
// made: every attempt starts from byte zero. On any error the temporary file
// is removed.
func (f *Fetcher) Download(ctx context.Context, req Request) (*Artifact, error) {
	if _, err := httpval.ParseDownloadURL(req.URL, false); err != nil {
		return nil, ocserr.New(ocserr.KindFetchRejected, err)
	}
	algorithm := req.Checksum.Algorithm
	if algorithm == "" {
		algorithm = content.AlgorithmMD5
	}
	h, ok := hashes[algorithm]
	if !ok {
		return nil, ocserr.Newf(ocserr.KindInternal, "unsupported checksum algorithm %q", algorithm)
	}

	dlCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	watchdog := time.AfterFunc(f.stallTimeout, func() { cancel(errStalled) })
	defer watchdog.Stop()

	httpReq, err := http.NewRequestWithContext(dlCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, ocserr.New(ocserr.KindFetchRejected, fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, f.streamError(ctx, dlCtx, fmt.Errorf("requesting %s: %w", req.URL, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	limit := f.Limit(req.SizeBytes)
	if resp.ContentLength > limit {
		return nil, ocserr.Newf(ocserr.KindFetchSizeExceeded,
			"server announced %d bytes, limit is %d", resp.ContentLength, limit)
	}

	total := req.SizeBytes
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	tmp, err := os.CreateTemp(f.tempDir, tempPattern)
	if err != nil {
		return nil, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("creating temp file: %w", err))
	}
	a := &Artifact{Path: tmp.Name(), MediaType: resp.Header.Get("Content-Type")}

	sum := h.New()
	digester := digest.Canonical.Digester()
	w := io.MultiWriter(tmp, sum, digester.Hash())

	n, err := f.copy(w, resp.Body, limit, total, watchdog, req.Progress)
	closeErr := tmp.Close()
	if err == nil && closeErr != nil {
		err = ocserr.New(ocserr.KindFilesystem, fmt.Errorf("closing temp file: %w", closeErr))
	}
	if err == nil && resp.ContentLength > 0 && n != resp.ContentLength {
		err = ocserr.Newf(ocserr.KindFetchInterrupted, "received %d of %d bytes", n, resp.ContentLength)
	}
	if err != nil {
		_ = a.Discard()
		var coded *ocserr.Error
		if errors.As(err, &coded) {
			return nil, err
		}
		return nil, f.streamError(ctx, dlCtx, err)
	}

	a.Size = n
	a.Digest = digester.Digest()
	a.Checksum = content.Checksum{Algorithm: algorithm, Hex: hex.EncodeToString(sum.Sum(nil))}
	f.logger.DebugContext(ctx, "download complete", "url", req.URL, "path", a.Path, "bytes", n)
	return a, nil
}

// copy moves the body into w, enforcing limit on live bytes and feeding the
// stall watchdog.
func (f *Fetcher) copy(
	w io.Writer, body io.Reader, limit, total int64, watchdog *time.Timer, progress ProgressFunc,
) (int64, error) {
	buf := make([]byte, bufferSize)
	var received int64
	for {
		nr, readErr := body.Read(buf)
		if nr > 0 {
			watchdog.Reset(f.stallTimeout)
			if received+int64(nr) > limit {
				return received, ocserr.Newf(ocserr.KindFetchSizeExceeded,
					"download exceeds limit of %d bytes", limit)
			}
			if _, err := w.Write(buf[:nr]); err != nil {
				return received, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("writing temp file: %w", err))
			}
			received += int64(nr)
			if progress != nil {
				progress(received, total)
			}
		}
		if readErr == io.EOF {
			return received, nil
		}
		if readErr != nil {
			return received, fmt.Errorf("reading body: %w", readErr)
		}
	}
}

// streamError classifies a transport failure. Cancellation by the caller
// wins over everything else.
func (*Fetcher) streamError(parent, dlCtx context.Context, err error) error {
	if parent.Err() != nil {
		return ocserr.New(ocserr.KindCancelled, fmt.Errorf("download cancelled: %w", parent.Err()))
	}
	if errors.Is(context.Cause(dlCtx), errStalled) {
		return ocserr.New(ocserr.KindFetchInterrupted, errStalled)
	}
	return ocserr.New(ocserr.KindFetchInterrupted, err)
}

func checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return ocserr.Newf(ocserr.KindFetchInterrupted, "HTTP %d for URL %s", code, resp.Request.URL.Redacted())
	default:
		return ocserr.Newf(ocserr.KindFetchRejected, "HTTP %d for URL %s", code, resp.Request.URL.Redacted())
	}
}

// Verify compares the artifact against want. A mismatch discards the
// artifact. A zero want always passes.
func Verify(a *Artifact, want content.Checksum) error {
	if want.IsZero() {
		return nil
	}
	got := a.Checksum
	if got.Algorithm != want.Algorithm {
		var err error
		got, err = checksumFile(a.Path, want.Algorithm)
		if err != nil {
			_ = a.Discard()
			return err
		}
	}
	if !strings.EqualFold(got.Hex, want.Hex) {
		_ = a.Discard()
		return ocserr.Newf(ocserr.KindFetchIntegrityMismatch, "checksum mismatch: expected %s, got %s", want, got)
	}
	return nil
}

// Adopt wraps an existing file, such as one materialized from the artifact
// cache, as an Artifact. The file is digested with sha256 and with the
// algorithm of want.
func Adopt(path string, want content.Checksum) (*Artifact, error) {
	algorithm := want.Algorithm
	if algorithm == "" {
		algorithm = content.AlgorithmMD5
	}
	n, d, sum, err := digestFile(path, algorithm)
	if err != nil {
		return nil, err
	}
	return &Artifact{Path: path, Size: n, Digest: d, Checksum: sum}, nil
}

func checksumFile(path, algorithm string) (content.Checksum, error) {
	_, _, sum, err := digestFile(path, algorithm)
	return sum, err
}

func digestFile(path, algorithm string) (int64, digest.Digest, content.Checksum, error) {
	h, ok := hashes[algorithm]
	if !ok {
		return 0, "", content.Checksum{}, ocserr.Newf(ocserr.KindInternal, "unsupported checksum algorithm %q", algorithm)
	}
	// #nosec G304 - path is an artifact owned by the caller
	file, err := os.Open(path)
	if err != nil {
		return 0, "", content.Checksum{}, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("opening %s: %w", path, err))
	}
	defer func() { _ = file.Close() }()

	sum := h.New()
	digester := digest.Canonical.Digester()
	n, err := io.Copy(io.MultiWriter(sum, digester.Hash()), file)
	if err != nil {
		return 0, "", content.Checksum{}, ocserr.New(ocserr.KindFilesystem, fmt.Errorf("reading %s: %w", path, err))
	}
	return n, digester.Digest(), content.Checksum{Algorithm: algorithm, Hex: hex.EncodeToString(sum.Sum(nil))}, nil
}
