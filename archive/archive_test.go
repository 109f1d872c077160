// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, format Format, entries []Entry) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, format, entries))
	p := filepath.Join(t.TempDir(), "artifact")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o600))
	return p
}

func sampleEntries() []Entry {
	return []Entry{
		{Path: "theme/", Type: EntryDir},
		{Path: "theme/index.theme", Content: []byte("[Icon Theme]\nName=Sample\n")},
		{Path: "theme/scalable/app.svg", Content: []byte("<svg/>")},
		{Path: "theme/bin/run.sh", Content: []byte("#!/bin/sh\n"), Mode: 0o755},
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format Format
	}{
		{name: "tar", format: FormatTar},
		{name: "tar gzip", format: FormatTarGzip},
		{name: "tar xz", format: FormatTarXz},
		{name: "tar zstd", format: FormatTarZstd},
		{name: "zip", format: FormatZip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeArchive(t, tt.format, sampleEntries())
			got, err := Detect(p)
			require.NoError(t, err)
			assert.Equal(t, tt.format, got)
			assert.True(t, got.IsArchive())
		})
	}

	t.Run("plain file is raw", func(t *testing.T) {
		t.Parallel()
		p := filepath.Join(t.TempDir(), "wallpaper.tar.gz")
		require.NoError(t, os.WriteFile(p, []byte("not an archive at all"), 0o600))
		got, err := Detect(p)
		require.NoError(t, err)
		assert.Equal(t, FormatRaw, got)
		assert.False(t, got.IsArchive())
	})

	t.Run("gzip of a single file is raw", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		_, err := gw.Write(bytes.Repeat([]byte("font data "), 100))
		require.NoError(t, err)
		require.NoError(t, gw.Close())

		p := filepath.Join(t.TempDir(), "font.ttf.gz")
		require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o600))
		got, err := Detect(p)
		require.NoError(t, err)
		assert.Equal(t, FormatRaw, got)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Detect(filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)
	})
}

func TestExtract(t *testing.T) {
	t.Parallel()

	for _, format := range []Format{FormatTar, FormatTarGzip, FormatTarXz, FormatTarZstd, FormatZip} {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()
			p := writeArchive(t, format, sampleEntries())
			dest := t.TempDir()

			require.NoError(t, Validate(context.Background(), p, format, Limits{}))
			require.NoError(t, Extract(context.Background(), p, format, dest, Limits{}))

			data, err := os.ReadFile(filepath.Join(dest, "theme", "index.theme"))
			require.NoError(t, err)
			assert.Equal(t, "[Icon Theme]\nName=Sample\n", string(data))

			data, err = os.ReadFile(filepath.Join(dest, "theme", "scalable", "app.svg"))
			require.NoError(t, err)
			assert.Equal(t, "<svg/>", string(data))

			info, err := os.Stat(filepath.Join(dest, "theme", "bin", "run.sh"))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

			info, err = os.Stat(filepath.Join(dest, "theme", "index.theme"))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
		})
	}
}

func TestExtractRejectsUnsafeEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		format  Format
		entries []Entry
		wantErr error
	}{
		{
			name:    "parent traversal",
			format:  FormatTarGzip,
			entries: []Entry{{Path: "../../etc/evil", Content: []byte("x")}},
			wantErr: ErrPathTraversal,
		},
		{
			name:    "nested traversal",
			format:  FormatTar,
			entries: []Entry{{Path: "theme/../../evil", Content: []byte("x")}},
			wantErr: ErrPathTraversal,
		},
		{
			name:    "absolute path",
			format:  FormatTar,
			entries: []Entry{{Path: "/etc/evil", Content: []byte("x")}},
			wantErr: ErrPathTraversal,
		},
		{
			name:    "backslash traversal",
			format:  FormatTar,
			entries: []Entry{{Path: "..\\evil", Content: []byte("x")}},
			wantErr: ErrPathTraversal,
		},
		{
			name:    "drive letter",
			format:  FormatZip,
			entries: []Entry{{Path: "C:/evil", Content: []byte("x")}},
			wantErr: ErrPathTraversal,
		},
		{
			name:    "zip traversal",
			format:  FormatZip,
			entries: []Entry{{Path: "../evil", Content: []byte("x")}},
			wantErr: ErrPathTraversal,
		},
		{
			name:    "tar symlink",
			format:  FormatTar,
			entries: []Entry{{Path: "link", Type: EntrySymlink, Link: "/etc/passwd"}},
			wantErr: ErrDisallowedEntry,
		},
		{
			name:    "tar hardlink",
			format:  FormatTarGzip,
			entries: []Entry{{Path: "link", Type: EntryHardlink, Link: "/etc/passwd"}},
			wantErr: ErrDisallowedEntry,
		},
		{
			name:    "tar device",
			format:  FormatTar,
			entries: []Entry{{Path: "dev", Type: EntryDevice}},
			wantErr: ErrDisallowedEntry,
		},
		{
			name:    "zip symlink",
			format:  FormatZip,
			entries: []Entry{{Path: "link", Type: EntrySymlink, Link: "/etc/passwd"}},
			wantErr: ErrDisallowedEntry,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeArchive(t, tt.format, tt.entries)
			dest := t.TempDir()

			err := Validate(context.Background(), p, tt.format, Limits{})
			require.ErrorIs(t, err, tt.wantErr)

			err = Extract(context.Background(), p, tt.format, dest, Limits{})
			require.ErrorIs(t, err, tt.wantErr)

			_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

// Not parallel: counts the process's open descriptors.
func TestRejectedZipReleasesFile(t *testing.T) {
	const fdDir = "/proc/self/fd"
	if _, err := os.Stat(fdDir); err != nil {
		t.Skip("open descriptors cannot be listed on this platform")
	}
	openFDs := func() int {
		entries, err := os.ReadDir(fdDir)
		require.NoError(t, err)
		return len(entries)
	}

	p := writeArchive(t, FormatZip, []Entry{{Path: "../evil", Content: []byte("x")}})
	before := openFDs()
	for range 64 {
		err := Validate(context.Background(), p, FormatZip, Limits{})
		require.ErrorIs(t, err, ErrPathTraversal)
	}
	assert.Less(t, openFDs()-before, 8)
}

func TestLimits(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte("a"), 2048)

	tests := []struct {
		name    string
		entries []Entry
		limits  Limits
		wantErr error
	}{
		{
			name:    "file over limit",
			entries: []Entry{{Path: "big", Content: big}},
			limits:  Limits{MaxFileSize: 1024},
			wantErr: ErrTooLarge,
		},
		{
			name: "total over limit",
			entries: []Entry{
				{Path: "a", Content: big},
				{Path: "b", Content: big},
			},
			limits:  Limits{MaxTotalSize: 3000},
			wantErr: ErrTooLarge,
		},
		{
			name: "too many entries",
			entries: []Entry{
				{Path: "a", Content: []byte("a")},
				{Path: "b", Content: []byte("b")},
				{Path: "c", Content: []byte("c")},
			},
			limits:  Limits{MaxEntries: 2},
			wantErr: ErrTooLarge,
		},
		{
			name:    "within limits",
			entries: []Entry{{Path: "a", Content: big}},
			limits:  Limits{MaxFileSize: 2048, MaxTotalSize: 2048, MaxEntries: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeArchive(t, FormatTarZstd, tt.entries)
			err := Extract(context.Background(), p, FormatTarZstd, t.TempDir(), tt.limits)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, FormatTarGzip, sampleEntries()))
	truncated := buf.Bytes()[:buf.Len()/2]

	p := filepath.Join(t.TempDir(), "artifact")
	require.NoError(t, os.WriteFile(p, truncated, 0o600))

	err := Validate(context.Background(), p, FormatTarGzip, Limits{})
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestExtractCancelled(t *testing.T) {
	t.Parallel()

	p := writeArchive(t, FormatTar, sampleEntries())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Extract(ctx, p, FormatTar, t.TempDir(), Limits{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractRawIsUnsupported(t *testing.T) {
	t.Parallel()

	err := Extract(context.Background(), "unused", FormatRaw, t.TempDir(), Limits{})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestPackReproducible(t *testing.T) {
	t.Parallel()

	reversed := sampleEntries()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	for _, format := range []Format{FormatTar, FormatTarGzip, FormatZip} {
		var a, b bytes.Buffer
		require.NoError(t, Pack(&a, format, sampleEntries()))
		require.NoError(t, Pack(&b, format, reversed))
		assert.Equal(t, a.Bytes(), b.Bytes(), "format %s", format)
	}

	require.ErrorIs(t, Pack(&bytes.Buffer{}, FormatTarBzip2, nil), ErrUnsupportedFormat)
}

func TestCleanEntryPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a/b.txt", want: "a/b.txt"},
		{in: "./a/./b.txt", want: "a/b.txt"},
		{in: "a\\b.txt", want: "a/b.txt"},
		{in: "./", want: ""},
		{in: "a/../b", want: "b"},
		{in: "..", wantErr: true},
		{in: "../a", wantErr: true},
		{in: "/a", wantErr: true},
		{in: "c:\\a", wantErr: true},
		{in: "a\x00b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := cleanEntryPath(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrPathTraversal)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
