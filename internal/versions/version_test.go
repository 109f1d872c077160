// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package versions

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
		vcs       map[string]string
		expected  VersionInfo
	}{
		{
			name:      "release build",
			version:   "v0.3.1",
			commit:    "0123456789abcdef",
			buildDate: "2025-06-01T10:00:00Z",
			vcs:       map[string]string{"vcs.revision": "ffffffff"},
			expected: VersionInfo{
				Version:   "v0.3.1",
				Commit:    "0123456789abcdef",
				BuildDate: "2025-06-01 10:00:00 UTC",
			},
		},
		{
			name:      "dev build reads vcs settings",
			version:   "dev",
			commit:    unknownStr,
			buildDate: unknownStr,
			vcs:       map[string]string{"vcs.revision": "abcdef0123456789", "vcs.time": "2025-01-02T03:04:05Z"},
			expected: VersionInfo{
				Version:   "build-abcdef01",
				Commit:    "abcdef0123456789",
				BuildDate: "2025-01-02 03:04:05 UTC",
			},
		},
		{
			name:      "dev build without vcs",
			version:   "dev",
			commit:    unknownStr,
			buildDate: unknownStr,
			vcs:       map[string]string{},
			expected: VersionInfo{
				Version:   "build-unknown",
				Commit:    unknownStr,
				BuildDate: unknownStr,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := versionInfo(tt.version, tt.commit, tt.buildDate, tt.vcs)
			assert.Equal(t, tt.expected.Version, got.Version)
			assert.Equal(t, tt.expected.Commit, got.Commit)
			assert.Equal(t, tt.expected.BuildDate, got.BuildDate)
			assert.Equal(t, runtime.Version(), got.GoVersion)
			assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, got.Platform)
		})
	}
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	assert.True(t, strings.HasPrefix(UserAgent(), "ocs-custodian/"))
}
