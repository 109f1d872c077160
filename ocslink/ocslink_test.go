// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ocslink

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/ocserr"
)

func TestParseCanonical(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want *Link
	}{
		{
			name: "simple link",
			raw:  "ocs://example.org/icon-theme/42",
			want: &Link{
				Scheme:       SchemeOCS,
				ProviderHost: "example.org",
				Category:     content.CategoryIconTheme,
				RawCategory:  "icon-theme",
				ItemID:       "42",
			},
		},
		{
			name: "secure scheme with port and query hints",
			raw:  "ocss://Store.Example.org:8443/wallpaper/1337?type=wallpapers&filename=sunset.png",
			want: &Link{
				Scheme:       SchemeOCSS,
				ProviderHost: "store.example.org:8443",
				Category:     content.CategoryWallpaper,
				RawCategory:  "wallpaper",
				ItemID:       "1337",
				RawQuery:     "type=wallpapers&filename=sunset.png",
				InstallType:  content.InstallTypeWallpapers,
				FileName:     "sunset.png",
			},
		},
		{
			name: "percent-encoded segments are decoded",
			raw:  "ocs://example.org/Icon%20Theme/my%20item",
			want: &Link{
				Scheme:       SchemeOCS,
				ProviderHost: "example.org",
				Category:     content.CategoryIconTheme,
				RawCategory:  "Icon Theme",
				ItemID:       "my item",
			},
		},
		{
			name: "unknown category becomes other",
			raw:  "ocs://example.org/dolphin-service-menus/7/",
			want: &Link{
				Scheme:       SchemeOCS,
				ProviderHost: "example.org",
				Category:     content.CategoryOther,
				RawCategory:  "dolphin-service-menus",
				ItemID:       "7",
			},
		},
		{
			name: "upper-case scheme is accepted",
			raw:  "OCS://example.org/font/9",
			want: &Link{
				Scheme:       SchemeOCS,
				ProviderHost: "example.org",
				Category:     content.CategoryFont,
				RawCategory:  "font",
				ItemID:       "9",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			link, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, link)
			assert.False(t, link.Direct())
		})
	}
}

func TestParseLegacy(t *testing.T) {
	t.Parallel()

	t.Run("install with filename", func(t *testing.T) {
		t.Parallel()

		raw := "ocs://install?url=https%3A%2F%2Ffake.download%2Flocation.png&type=plasma_look_and_feel&filename=location55.png"
		link, err := Parse(raw)
		require.NoError(t, err)

		assert.True(t, link.Direct())
		assert.Equal(t, CommandInstall, link.Command)
		assert.Equal(t, "https://fake.download/location.png", link.DownloadURL)
		assert.Equal(t, "fake.download", link.ProviderHost)
		assert.Equal(t, content.InstallTypePlasmaLookAndFeel, link.InstallType)
		assert.Equal(t, content.CategoryTheme, link.Category)
		assert.Equal(t, "location55.png", link.ItemID)
		assert.Equal(t, raw, link.String())
	})

	t.Run("download derives item from url path", func(t *testing.T) {
		t.Parallel()

		link, err := Parse("ocs://download?url=https%3A%2F%2Fcdn.example.org%2Ffiles%2Fpapirus.tar.xz&type=xfwm4_themes")
		require.NoError(t, err)

		assert.Equal(t, CommandDownload, link.Command)
		assert.Equal(t, "papirus.tar.xz", link.ItemID)
		assert.Equal(t, content.InstallTypeThemes, link.InstallType)
		assert.Empty(t, link.FileName)
	})
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		raw           string
		errorContains string
	}{
		{"empty", "", "empty"},
		{"missing scheme", "example.org/icon-theme/42", "no scheme"},
		{"wrong scheme", "http://example.org/icon-theme/42", "unexpected scheme"},
		{"weird scheme", "abcd://install?url=https%3A%2F%2Ffake.download%2Flocation.png&type=icons", "unexpected scheme"},
		{"long scheme", strings.Repeat("a", 256) + "://example.org/icon-theme/42", "unexpected scheme"},
		{"opaque", "ocs:example.org/icon-theme/42", "form"},
		{"missing host", "ocs:///icon-theme/42", "no provider host"},
		{"invalid host", "ocs://exa_mple.org/icon-theme/42", "invalid provider host"},
		{"missing item", "ocs://example.org/icon-theme", "category/item"},
		{"empty item", "ocs://example.org/icon-theme/", "category/item"},
		{"too many segments", "ocs://example.org/icon-theme/42/extra", "category/item"},
		{"encoded slash in item", "ocs://example.org/icon-theme/a%2Fb", "invalid item id"},
		{"dot-dot item", "ocs://example.org/icon-theme/%2E%2E", "invalid item id"},
		{"bad escape", "ocs://example.org/icon-theme/%zz", "malformed"},
		{"fragment", "ocs://example.org/icon-theme/42#x", "fragment"},
		{"user info", "ocs://user@example.org/icon-theme/42", "user information"},
		{"traversal filename", "ocs://example.org/icon-theme/42?filename=..%2F..%2Fbashrc", "invalid filename"},
		{"legacy without url", "ocs://install?type=icons", "no download url"},
		{"legacy without type", "ocs://install?url=https%3A%2F%2Ffake.download%2Fa.png", "no install type"},
		{"legacy bad url", "ocs://install?url=ftp%3A%2F%2Ffake.download%2Fa.png&type=icons", "unsupported scheme"},
		{"legacy secure requires https", "ocss://install?url=http%3A%2F%2Ffake.download%2Fa.png&type=icons", "https"},
		{"upper-case parameters", "ocs://install?URL=https%3A%2F%2Ffake.download%2Fa.png&TYPE=icons", "no download url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			link, err := Parse(tt.raw)
			require.Error(t, err)
			assert.Nil(t, link)
			assert.Equal(t, ocserr.KindParse, ocserr.KindOf(err))
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestLinkRoundTrip(t *testing.T) {
	t.Parallel()

	links := []string{
		"ocs://example.org/icon-theme/42",
		"ocss://store.example.org:8443/wallpaper/1337?type=wallpapers",
		"ocs://example.org/Icon%20Theme/my%20item",
		"ocs://example.org/unknown-thing/x-1",
		"ocs://install?url=https%3A%2F%2Fcdn.example.org%2Fa.tar.gz&type=icons&filename=a.tar.gz",
		"ocs://download?url=https%3A%2F%2Fcdn.example.org%2Fb.zip&type=gtk3_themes",
	}

	for _, raw := range links {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()

			first, err := Parse(raw)
			require.NoError(t, err)
			second, err := Parse(first.String())
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestLinkKey(t *testing.T) {
	t.Parallel()

	a, err := Parse("ocs://example.org/icon-theme/42")
	require.NoError(t, err)
	b, err := Parse("ocss://EXAMPLE.org/icons/42?type=icons")
	require.NoError(t, err)

	assert.Equal(t, "example.org/42", a.Key())
	assert.Equal(t, a.Key(), b.Key())
	assert.True(t, b.Secure())
	assert.False(t, a.Secure())
}
