// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/env"
	"github.com/stacklok/ocs-custodian/env/mocks"
	"github.com/stacklok/ocs-custodian/pipeline"
	"github.com/stacklok/ocs-custodian/router"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(
		WithConfigPath(writeConfig(t, "")),
		WithEnvReader(env.MapReader{}),
	)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.CacheEnabled())
	assert.Equal(t, pipeline.ReinstallVerify, cfg.Policy())
	assert.Equal(t, DefaultListen, cfg.Listen)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
logLevel: debug
logFormat: text
reinstall: always
maxConcurrent: 2
recordsPath: /var/lib/ocs/records.json
cache:
  enabled: false
timeouts:
  metadata: 5s
  stall: 2m
download:
  sizeTolerance: 0.25
archive:
  maxEntries: 10
providers:
  store.example.com:
    baseURL: https://api.example.com/ocs/v1
    cdnHosts: ["*.examplecdn.net"]
routing:
  version: 1
  categories:
    wallpaper:
      candidates:
        - dir: $HOME/Pictures/Wallpapers
      strategy: copy-file
      collision: rename
`)
	cfg, err := Load(WithConfigPath(path), WithEnvReader(env.MapReader{}))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, pipeline.ReinstallAlways, cfg.Policy())
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.Equal(t, "/var/lib/ocs/records.json", cfg.RecordsPath)
	assert.False(t, cfg.CacheEnabled())
	assert.Equal(t, Duration(5*time.Second), cfg.Timeouts.Metadata)
	assert.Equal(t, Duration(2*time.Minute), cfg.Timeouts.Stall)
	assert.Equal(t, Default().Timeouts.DownloadLink, cfg.Timeouts.DownloadLink, "unset values keep their defaults")
	require.NotNil(t, cfg.Download.SizeTolerance)
	assert.InDelta(t, 0.25, *cfg.Download.SizeTolerance, 1e-9)
	assert.Equal(t, 10, cfg.Limits().MaxEntries)
	assert.Equal(t, Default().Archive.MaxFileSize, cfg.Limits().MaxFileSize)

	assert.Equal(t, ProviderConfig{
		BaseURL:  "https://api.example.com/ocs/v1",
		CDNHosts: []string{"*.examplecdn.net"},
	}, cfg.Providers["store.example.com"])
	assert.NotEmpty(t, cfg.ProviderOptions())
	assert.NotEmpty(t, cfg.FetchOptions())

	table := cfg.Table()
	require.Contains(t, table.Routes, content.CategoryWallpaper)
	assert.Equal(t, router.StrategyCopyFile, table.Routes[content.CategoryWallpaper].Strategy)
	assert.Equal(t, router.DefaultTable().Routes[content.CategoryIconTheme], table.Routes[content.CategoryIconTheme])
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "unknown key", body: "colour: blue\n"},
		{name: "bad policy", body: "reinstall: sometimes\n"},
		{name: "bad duration", body: "timeouts:\n  stall: soon\n"},
		{name: "zero concurrency", body: "maxConcurrent: 0\n"},
		{name: "negative tolerance", body: "download:\n  sizeTolerance: -1\n"},
		{name: "bad strategy", body: "routing:\n  categories:\n    font:\n      candidates: [{dir: /x}]\n      strategy: unzip\n      collision: rename\n"},
		{name: "plain base url", body: "providers:\n  example.org:\n    baseURL: ftp://example.org\n"},
		{name: "not yaml", body: "logLevel: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(WithConfigPath(writeConfig(t, tt.body)), WithEnvReader(env.MapReader{}))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err, "an explicit path must exist")

	_, err = Load(WithConfigPath(""))
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "logLevel: info\nreinstall: skip\n")
	cfg, err := Load(WithConfigPath(path), WithEnvReader(env.MapReader{
		"OCS_CUSTODIAN_LOG_LEVEL":      "warn",
		"OCS_CUSTODIAN_REINSTALL":      "always",
		"OCS_CUSTODIAN_MAX_CONCURRENT": "8",
		"OCS_CUSTODIAN_CACHE":          "false",
		"OCS_CUSTODIAN_RECORDS_PATH":   "/tmp/records.json",
		"OCS_CUSTODIAN_LISTEN":         "  ",
	}))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, pipeline.ReinstallAlways, cfg.Policy())
	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.False(t, cfg.CacheEnabled())
	assert.Equal(t, "/tmp/records.json", cfg.RecordsPath)
	assert.Equal(t, DefaultListen, cfg.Listen, "blank values are ignored")
}

func TestLoadEnvErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		vars map[string]string
	}{
		{name: "concurrency not a number", vars: map[string]string{"OCS_CUSTODIAN_MAX_CONCURRENT": "many"}},
		{name: "cache not a bool", vars: map[string]string{"OCS_CUSTODIAN_CACHE": "maybe"}},
		{name: "unknown level", vars: map[string]string{"OCS_CUSTODIAN_LOG_LEVEL": "chatty"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(WithConfigPath(writeConfig(t, "")), WithEnvReader(env.MapReader(tt.vars)))
			assert.Error(t, err)
		})
	}
}

func TestLoadReadsEnvThroughReader(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	reader := mocks.NewMockReader(ctrl)
	reader.EXPECT().Getenv("OCS_CUSTODIAN_LOG_FORMAT").Return("text").MinTimes(1)
	reader.EXPECT().Getenv(gomock.Any()).Return("").AnyTimes()

	cfg, err := Load(WithConfigPath(writeConfig(t, "")), WithEnvReader(reader))
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestDurationYAML(t *testing.T) {
	t.Parallel()

	d := Duration(90 * time.Second)
	v, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", v)
}

func TestDefaultPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FileName, filepath.Base(DefaultPath()))
}
