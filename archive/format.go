// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Format identifies how an artifact is packaged.
type Format string

// Artifact formats.
const (
	// FormatRaw is anything that is not a recognized archive. A compressed
	// single file that is not a tarball is raw as well.
	FormatRaw      Format = "raw"
	FormatTar      Format = "tar"
	FormatTarGzip  Format = "tar+gzip"
	FormatTarBzip2 Format = "tar+bzip2"
	FormatTarXz    Format = "tar+xz"
	FormatTarZstd  Format = "tar+zstd"
	FormatZip      Format = "zip"
)

// MIME types as reported by mimetype.
const (
	mimeTar   = "application/x-tar"
	mimeZip   = "application/zip"
	mimeGzip  = "application/gzip"
	mimeBzip2 = "application/x-bzip2"
	mimeXz    = "application/x-xz"
	mimeZstd  = "application/zstd"
)

var compressedTars = map[string]Format{
	mimeGzip:  FormatTarGzip,
	mimeBzip2: FormatTarBzip2,
	mimeXz:    FormatTarXz,
	mimeZstd:  FormatTarZstd,
}

// IsArchive reports whether f holds multiple entries to extract.
func (f Format) IsArchive() bool {
	return f != FormatRaw && f != ""
}

// Detect sniffs the format of the file at path from its content. File names
// are not trusted: a compressed stream only counts as a tarball when its
// decompressed head looks like one.
func Detect(path string) (Format, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detecting type of %s: %w", path, err)
	}

	for m := mtype; m != nil; m = m.Parent() {
		switch {
		case m.Is(mimeZip):
			return FormatZip, nil
		case m.Is(mimeTar):
			return FormatTar, nil
		}
	}

	for mime, format := range compressedTars {
		if !mtype.Is(mime) {
			continue
		}
		inner, err := sniffCompressed(path, format)
		if err != nil {
			return "", err
		}
		if inner.Is(mimeTar) {
			return format, nil
		}
		return FormatRaw, nil
	}

	return FormatRaw, nil
}

func sniffCompressed(path string, format Format) (*mimetype.MIME, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec, err := decompressor(format, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer func() { _ = dec.Close() }()

	mtype, err := mimetype.DetectReader(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: reading compressed stream: %w", ErrCorrupt, err)
	}
	return mtype, nil
}

// decompressor wraps r with the decompressor of a compressed tar format. For
// FormatTar it returns r unchanged.
func decompressor(format Format, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case FormatTar:
		return io.NopCloser(r), nil
	case FormatTarGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return gr, nil
	case FormatTarBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case FormatTarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		return io.NopCloser(xr), nil
	case FormatTarZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: %s is not a compressed tar format", ErrUnsupportedFormat, format)
	}
}
