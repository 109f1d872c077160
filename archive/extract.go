// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Default extraction limits.
const (
	// DefaultMaxFileSize caps a single extracted file (100MB).
	DefaultMaxFileSize = 100 * 1024 * 1024
	// DefaultMaxTotalSize caps the sum of all extracted files (1GB).
	DefaultMaxTotalSize = 1024 * 1024 * 1024
	// DefaultMaxEntries caps the number of entries in one archive.
	DefaultMaxEntries = 100_000
)

var (
	// ErrPathTraversal is returned when an entry would land outside the
	// destination directory.
	ErrPathTraversal = errors.New("archive entry escapes destination")
	// ErrDisallowedEntry is returned for links, devices and other
	// non-regular entries.
	ErrDisallowedEntry = errors.New("archive contains disallowed entry type")
	// ErrTooLarge is returned when an archive exceeds its Limits.
	ErrTooLarge = errors.New("archive exceeds extraction limits")
	// ErrCorrupt is returned when an archive cannot be read.
	ErrCorrupt = errors.New("archive is corrupt")
	// ErrUnsupportedFormat is returned for formats that cannot be extracted.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

// Limits bound what extraction may write. Zero fields take the defaults.
type Limits struct {
	MaxFileSize  int64
	MaxTotalSize int64
	MaxEntries   int
}

// DefaultLimits returns the default extraction limits.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:  DefaultMaxFileSize,
		MaxTotalSize: DefaultMaxTotalSize,
		MaxEntries:   DefaultMaxEntries,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = d.MaxFileSize
	}
	if l.MaxTotalSize <= 0 {
		l.MaxTotalSize = d.MaxTotalSize
	}
	if l.MaxEntries <= 0 {
		l.MaxEntries = d.MaxEntries
	}
	return l
}

type entryKind int

const (
	entryFile entryKind = iota
	entryDir
	entryLink
	entryOther
)

type entry struct {
	name string
	kind entryKind
	mode fs.FileMode
	size int64
}

// walkFunc is called for every entry. r is only valid during the call and is
// nil for non-file entries.
type walkFunc func(e entry, r io.Reader) error

// walk streams the entries of the archive at p through fn.
func walk(ctx context.Context, p string, format Format, fn walkFunc) error {
	if format == FormatZip {
		return walkZip(ctx, p, fn)
	}

	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec, err := decompressor(format, f)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer func() { _ = dec.Close() }()

	return walkTar(ctx, tar.NewReader(dec), fn)
}

func walkTar(ctx context.Context, tr *tar.Reader, fn walkFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) && header != nil {
			return fmt.Errorf("%w: %q", ErrPathTraversal, header.Name)
		}
		if err != nil {
			return fmt.Errorf("%w: reading tar header: %w", ErrCorrupt, err)
		}

		e := entry{name: header.Name, mode: fs.FileMode(header.Mode).Perm(), size: header.Size}
		switch header.Typeflag {
		case tar.TypeReg:
			e.kind = entryFile
		case tar.TypeDir:
			e.kind = entryDir
		case tar.TypeXGlobalHeader:
			continue
		case tar.TypeSymlink, tar.TypeLink:
			e.kind = entryLink
		default:
			e.kind = entryOther
		}

		var r io.Reader
		if e.kind == entryFile {
			r = tr
		}
		if err := fn(e, r); err != nil {
			return err
		}
	}
}

func walkZip(ctx context.Context, p string, fn walkFunc) error {
	zr, err := zip.OpenReader(p)
	if zr != nil {
		defer func() { _ = zr.Close() }()
	}
	if errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %w", ErrPathTraversal, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		mode := zf.Mode()
		e := entry{name: zf.Name, mode: mode.Perm(), size: int64(zf.UncompressedSize64)}
		switch {
		case mode&fs.ModeSymlink != 0:
			e.kind = entryLink
		case mode.IsDir() || strings.HasSuffix(zf.Name, "/"):
			e.kind = entryDir
		case mode.IsRegular():
			e.kind = entryFile
		default:
			e.kind = entryOther
		}

		if e.kind != entryFile {
			if err := fn(e, nil); err != nil {
				return err
			}
			continue
		}
		if err := walkZipFile(zf, e, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkZipFile(zf *zip.File, e entry, fn walkFunc) error {
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", ErrCorrupt, zf.Name, err)
	}
	defer func() { _ = rc.Close() }()
	return fn(e, rc)
}

// cleanEntryPath normalizes an entry name to a relative slash path and
// rejects anything that could escape the destination. It returns "" for the
// archive root.
func cleanEntryPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q contains NUL", ErrPathTraversal, name)
	}
	if path.IsAbs(name) || filepath.VolumeName(name) != "" || hasDriveLetter(name) {
		return "", fmt.Errorf("%w: %q is absolute", ErrPathTraversal, name)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	if clean == "." {
		return "", nil
	}
	return clean, nil
}

func hasDriveLetter(name string) bool {
	return len(name) >= 2 && name[1] == ':' &&
		((name[0] >= 'a' && name[0] <= 'z') || (name[0] >= 'A' && name[0] <= 'Z'))
}

// checker enforces entry and size limits across a walk.
type checker struct {
	limits  Limits
	entries int
	total   int64
}

func (c *checker) check(e entry) (string, error) {
	c.entries++
	if c.entries > c.limits.MaxEntries {
		return "", fmt.Errorf("%w: more than %d entries", ErrTooLarge, c.limits.MaxEntries)
	}
	rel, err := cleanEntryPath(e.name)
	if err != nil {
		return "", err
	}
	switch e.kind {
	case entryFile, entryDir:
	case entryLink:
		return "", fmt.Errorf("%w: link %q", ErrDisallowedEntry, e.name)
	default:
		return "", fmt.Errorf("%w: %q", ErrDisallowedEntry, e.name)
	}
	if e.kind == entryFile && rel == "" {
		return "", fmt.Errorf("%w: file entry %q has no name", ErrCorrupt, e.name)
	}
	if e.size > c.limits.MaxFileSize {
		return "", fmt.Errorf("%w: %s is %d bytes (max %d)", ErrTooLarge, rel, e.size, c.limits.MaxFileSize)
	}
	return rel, nil
}

// copy copies a file body enforcing both the per-file cap and the running
// total. Declared sizes are not trusted.
func (c *checker) copy(dst io.Writer, r io.Reader, rel string) error {
	remaining := min(c.limits.MaxFileSize, c.limits.MaxTotalSize-c.total)
	n, err := io.Copy(dst, io.LimitReader(r, remaining+1))
	c.total += n
	if err != nil {
		return fmt.Errorf("%w: copying %s: %w", ErrCorrupt, rel, err)
	}
	if n > remaining {
		return fmt.Errorf("%w: %s exceeds remaining budget of %d bytes", ErrTooLarge, rel, remaining)
	}
	return nil
}

// Validate walks the whole archive without writing anything and reports the
// first entry that Extract would reject. It reads every file body so that
// size limits apply to actual, not declared, sizes.
func Validate(ctx context.Context, p string, format Format, limits Limits) error {
	if !format.IsArchive() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	c := &checker{limits: limits.withDefaults()}
	return walk(ctx, p, format, func(e entry, r io.Reader) error {
		rel, err := c.check(e)
		if err != nil {
			return err
		}
		if r == nil {
			return nil
		}
		return c.copy(io.Discard, r, rel)
	})
}

// Extract unpacks the archive at p into dest, which must exist. Only regular
// files and directories are written; files get mode 0755 when any execute
// bit is set in the archive and 0644 otherwise. On error dest may hold a
// partial tree and the caller is expected to remove it.
func Extract(ctx context.Context, p string, format Format, dest string, limits Limits) error {
	if !format.IsArchive() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolving destination: %w", err)
	}

	c := &checker{limits: limits.withDefaults()}
	return walk(ctx, p, format, func(e entry, r io.Reader) error {
		rel, err := c.check(e)
		if err != nil {
			return err
		}
		if rel == "" {
			return nil
		}
		target, err := containedPath(root, rel)
		if err != nil {
			return err
		}
		if e.kind == entryDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", rel, err)
			}
			return nil
		}
		return c.writeFile(target, rel, fileMode(e.mode), r)
	})
}

func (c *checker) writeFile(target, rel string, mode fs.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", rel, err)
	}
	// #nosec G304 - target is confined to the destination by containedPath
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", rel, err)
	}
	if err := c.copy(f, r, rel); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", rel, err)
	}
	return nil
}

// containedPath joins rel onto root and checks that the result stays inside.
func containedPath(root, rel string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(rel))
	back, err := filepath.Rel(root, target)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, rel)
	}
	return target, nil
}

func fileMode(m fs.FileMode) fs.FileMode {
	if m&0o111 != 0 {
		return 0o755
	}
	return 0o644
}
