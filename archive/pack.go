// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// gzipOSUnknown is the OS value for "unknown" in gzip headers (RFC 1952).
const gzipOSUnknown = 255

// EntryType is the kind of an Entry written by Pack.
type EntryType int

// Entry types. Only EntryFile and EntryDir survive extraction; the others
// exist to build archives that must be rejected.
const (
	EntryFile EntryType = iota
	EntryDir
	EntrySymlink
	EntryHardlink
	EntryDevice
)

// Entry is one member of an archive built by Pack.
type Entry struct {
	Path    string
	Content []byte
	// Mode defaults to 0644 for files and 0755 for directories.
	Mode fs.FileMode
	Type EntryType
	// Link is the target of symlink and hardlink entries.
	Link string
}

func (e Entry) mode() fs.FileMode {
	if e.Mode != 0 {
		return e.Mode
	}
	if e.Type == EntryDir {
		return 0o755
	}
	return 0o644
}

// epoch is stamped on every entry so that output is reproducible.
var epoch = time.Unix(0, 0).UTC()

// Pack writes entries to w in the given format. Entries are sorted by path
// and headers are normalized, so equal input yields identical bytes.
// FormatTarBzip2 is read-only and cannot be packed.
func Pack(w io.Writer, format Format, entries []Entry) error {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })

	switch format {
	case FormatZip:
		return packZip(w, sorted)
	case FormatTar:
		return packTar(w, sorted)
	case FormatTarGzip:
		gw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return fmt.Errorf("creating gzip writer: %w", err)
		}
		gw.ModTime = epoch
		gw.OS = gzipOSUnknown
		return packCompressed(gw, sorted)
	case FormatTarXz:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("creating xz writer: %w", err)
		}
		return packCompressed(xw, sorted)
	case FormatTarZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("creating zstd writer: %w", err)
		}
		return packCompressed(zw, sorted)
	default:
		return fmt.Errorf("%w: cannot pack %s", ErrUnsupportedFormat, format)
	}
}

func packCompressed(cw io.WriteCloser, entries []Entry) error {
	if err := packTar(cw, entries); err != nil {
		_ = cw.Close()
		return err
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("closing compressor: %w", err)
	}
	return nil
}

func packTar(w io.Writer, entries []Entry) error {
	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.Path,
			Mode:    int64(e.mode().Perm()),
			ModTime: epoch,
			Format:  tar.FormatPAX,
		}
		switch e.Type {
		case EntryFile:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Content))
		case EntryDir:
			hdr.Typeflag = tar.TypeDir
		case EntrySymlink:
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Link
		case EntryHardlink:
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = e.Link
		case EntryDevice:
			hdr.Typeflag = tar.TypeChar
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing tar header for %s: %w", e.Path, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write(e.Content); err != nil {
				return fmt.Errorf("writing tar content for %s: %w", e.Path, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar writer: %w", err)
	}
	return nil
}

func packZip(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Path, Method: zip.Deflate, Modified: epoch}
		mode := e.mode()
		switch e.Type {
		case EntryFile:
		case EntryDir:
			mode |= fs.ModeDir
			if !strings.HasSuffix(hdr.Name, "/") {
				hdr.Name += "/"
			}
		case EntrySymlink, EntryHardlink:
			mode |= fs.ModeSymlink
		case EntryDevice:
			mode |= fs.ModeDevice
		}
		hdr.SetMode(mode)

		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("writing zip header for %s: %w", e.Path, err)
		}
		body := e.Content
		if e.Type == EntrySymlink || e.Type == EntryHardlink {
			body = []byte(e.Link)
		}
		if e.Type != EntryDir && len(body) > 0 {
			if _, err := fw.Write(body); err != nil {
				return fmt.Errorf("writing zip content for %s: %w", e.Path, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing zip writer: %w", err)
	}
	return nil
}
