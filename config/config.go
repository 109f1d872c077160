// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/ocs-custodian/archive"
	"github.com/stacklok/ocs-custodian/cache"
	"github.com/stacklok/ocs-custodian/env"
	"github.com/stacklok/ocs-custodian/fetch"
	"github.com/stacklok/ocs-custodian/logging"
	"github.com/stacklok/ocs-custodian/pipeline"
	"github.com/stacklok/ocs-custodian/provider"
	"github.com/stacklok/ocs-custodian/record"
	"github.com/stacklok/ocs-custodian/router"
)

//go:embed data/config.schema.json
var schemaFS embed.FS

const (
	schemaFile = "data/config.schema.json"

	// FileName is the name of the configuration file.
	FileName = "config.yaml"

	// DefaultListen is the loopback address the local API binds to.
	DefaultListen = "127.0.0.1:7420"
)

// Duration is a time.Duration written as a Go duration string ("15s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the custodian configuration.
type Config struct {
	LogLevel  string `yaml:"logLevel,omitempty"`
	LogFormat string `yaml:"logFormat,omitempty"`
	// Reinstall is one of skip, verify or always.
	Reinstall     string `yaml:"reinstall,omitempty"`
	MaxConcurrent int    `yaml:"maxConcurrent,omitempty"`
	// Listen is the address of the local API.
	Listen    string `yaml:"listen,omitempty"`
	UserAgent string `yaml:"userAgent,omitempty"`

	RecordsPath string `yaml:"recordsPath,omitempty"`
	LockDir     string `yaml:"lockDir,omitempty"`
	// TempDir holds downloads in progress. Empty means the system default.
	TempDir string `yaml:"tempDir,omitempty"`

	Cache     CacheConfig               `yaml:"cache,omitempty"`
	Timeouts  TimeoutConfig             `yaml:"timeouts,omitempty"`
	Download  DownloadConfig            `yaml:"download,omitempty"`
	Archive   ArchiveConfig             `yaml:"archive,omitempty"`
	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`
	// Routing overrides the routes of the built-in table per category.
	Routing *router.Table `yaml:"routing,omitempty"`
}

// CacheConfig configures the artifact cache.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// TimeoutConfig bounds individual network calls.
type TimeoutConfig struct {
	Metadata     Duration `yaml:"metadata,omitempty"`
	DownloadLink Duration `yaml:"downloadLink,omitempty"`
	// Stall aborts a download that delivers no data for this long.
	Stall Duration `yaml:"stall,omitempty"`
}

// DownloadConfig limits downloads.
type DownloadConfig struct {
	SizeTolerance *float64 `yaml:"sizeTolerance,omitempty"`
	MaxSize       int64    `yaml:"maxSize,omitempty"`
}

// ArchiveConfig limits archive extraction.
type ArchiveConfig struct {
	MaxFileSize  int64 `yaml:"maxFileSize,omitempty"`
	MaxTotalSize int64 `yaml:"maxTotalSize,omitempty"`
	MaxEntries   int   `yaml:"maxEntries,omitempty"`
}

// ProviderConfig is the configuration of one OCS provider.
type ProviderConfig struct {
	BaseURL   string   `yaml:"baseURL,omitempty"`
	CDNHosts  []string `yaml:"cdnHosts,omitempty"`
	UserAgent string   `yaml:"userAgent,omitempty"`
}

// Option configures Load.
type Option func(*loaderConfig) error

type loaderConfig struct {
	path     string
	explicit bool
	env      env.Reader
}

// WithConfigPath loads the configuration from path, which must exist.
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return errors.New("path is required")
		}
		// Resolve symlinks; this cleans the path as well.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}
		cfg.path = realPath
		cfg.explicit = true
		return nil
	}
}

// WithEnvReader sets where OCS_CUSTODIAN_* overrides are read from.
func WithEnvReader(r env.Reader) Option {
	return func(cfg *loaderConfig) error {
		cfg.env = r
		return nil
	}
}

// DefaultPath returns the configuration file in the user's XDG config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "ocs-custodian", FileName)
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	enabled := true
	tolerance := fetch.DefaultSizeTolerance
	return &Config{
		LogLevel:      "info",
		LogFormat:     logging.FormatJSON.String(),
		Reinstall:     string(pipeline.ReinstallVerify),
		MaxConcurrent: pipeline.DefaultMaxConcurrent,
		Listen:        DefaultListen,
		UserAgent:     provider.DefaultUserAgent,
		RecordsPath:   record.DefaultPath(),
		LockDir:       filepath.Join(xdg.StateHome, "ocs-custodian", "locks"),
		Cache:         CacheConfig{Enabled: &enabled, Dir: cache.DefaultRoot()},
		Timeouts: TimeoutConfig{
			Metadata:     Duration(provider.DefaultMetadataTimeout),
			DownloadLink: Duration(provider.DefaultDownloadLinkTimeout),
			Stall:        Duration(fetch.DefaultStallTimeout),
		},
		Download: DownloadConfig{SizeTolerance: &tolerance, MaxSize: fetch.DefaultMaxSize},
		Archive: ArchiveConfig{
			MaxFileSize:  archive.DefaultMaxFileSize,
			MaxTotalSize: archive.DefaultMaxTotalSize,
			MaxEntries:   archive.DefaultMaxEntries,
		},
	}
}

// Load builds the configuration from the defaults, the configuration file
// and the environment, in that order of increasing precedence. Without
// WithConfigPath the file at DefaultPath is read if it exists.
func Load(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{path: DefaultPath(), env: &env.OSReader{}}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	cfg := Default()

	data, err := os.ReadFile(loaderCfg.path)
	switch {
	case err == nil:
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("loading %s: %w", loaderCfg.path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !loaderCfg.explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(loaderCfg.env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse validates data against the configuration schema and decodes it over
// cfg. Fields data does not mention keep their values.
func Parse(data []byte, cfg *Config) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if raw == nil {
		return nil
	}
	if err := validateSchema(raw); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

func validateSchema(raw any) error {
	doc, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to convert config to JSON: %w", err)
	}
	schemaData, err := schemaFS.ReadFile(schemaFile)
	if err != nil {
		return fmt.Errorf("failed to read embedded schema %s: %w", schemaFile, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaData),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("config schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	if len(msgs) == 1 {
		return fmt.Errorf("config schema validation failed: %s", msgs[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "config schema validation failed with %d errors:", len(msgs))
	for i, msg := range msgs {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, msg)
	}
	return errors.New(b.String())
}

// applyEnv overrides settings from OCS_CUSTODIAN_* variables.
func (c *Config) applyEnv(r env.Reader) error {
	strs := map[string]*string{
		"log_level":    &c.LogLevel,
		"log_format":   &c.LogFormat,
		"reinstall":    &c.Reinstall,
		"listen":       &c.Listen,
		"user_agent":   &c.UserAgent,
		"records_path": &c.RecordsPath,
		"lock_dir":     &c.LockDir,
		"temp_dir":     &c.TempDir,
		"cache_dir":    &c.Cache.Dir,
	}
	for name, dst := range strs {
		if v, ok := env.Lookup(r, name); ok {
			*dst = v
		}
	}

	if v, ok := env.Lookup(r, "max_concurrent"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env.Var("max_concurrent"), err)
		}
		c.MaxConcurrent = n
	}
	if v, ok := env.Lookup(r, "cache"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env.Var("cache"), err)
		}
		c.Cache.Enabled = &enabled
	}
	return nil
}

// Validate checks settings the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if _, err := pipeline.ParseReinstallPolicy(c.Reinstall); err != nil {
		errs = append(errs, err)
	}
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("maxConcurrent must be at least 1, got %d", c.MaxConcurrent))
	}
	if c.RecordsPath == "" {
		errs = append(errs, errors.New("recordsPath is required"))
	}
	if c.CacheEnabled() && c.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required when the cache is enabled"))
	}
	for host, p := range c.Providers {
		if host == "" || strings.ContainsAny(host, "/?#@ ") {
			errs = append(errs, fmt.Errorf("invalid provider host %q", host))
		}
		if p.BaseURL != "" && !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
			errs = append(errs, fmt.Errorf("provider %s: baseURL must be an http(s) URL", host))
		}
	}
	return errors.Join(errs...)
}

// CacheEnabled reports whether verified artifacts are cached.
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// Policy returns the reinstall policy.
func (c *Config) Policy() pipeline.ReinstallPolicy {
	p, err := pipeline.ParseReinstallPolicy(c.Reinstall)
	if err != nil {
		return pipeline.ReinstallVerify
	}
	return p
}

// Limits returns the archive extraction limits.
func (c *Config) Limits() archive.Limits {
	return archive.Limits{
		MaxFileSize:  c.Archive.MaxFileSize,
		MaxTotalSize: c.Archive.MaxTotalSize,
		MaxEntries:   c.Archive.MaxEntries,
	}
}

// Table returns the built-in routing table with the configured routes merged
// over it.
func (c *Config) Table() *router.Table {
	return router.DefaultTable().Merge(c.Routing)
}

// ProviderOptions returns the provider client options for the configured
// providers and timeouts.
func (c *Config) ProviderOptions() []provider.Option {
	opts := []provider.Option{
		provider.WithTimeouts(time.Duration(c.Timeouts.Metadata), time.Duration(c.Timeouts.DownloadLink)),
	}
	if c.UserAgent != "" {
		opts = append(opts, provider.WithUserAgent(c.UserAgent))
	}
	for host, p := range c.Providers {
		opts = append(opts, provider.WithProvider(host, provider.Config{
			BaseURL:   p.BaseURL,
			CDNHosts:  p.CDNHosts,
			UserAgent: p.UserAgent,
		}))
	}
	return opts
}

// FetchOptions returns the fetcher options for the configured limits.
func (c *Config) FetchOptions() []fetch.Option {
	opts := []fetch.Option{fetch.WithTempDir(c.TempDir)}
	if c.Timeouts.Stall > 0 {
		opts = append(opts, fetch.WithStallTimeout(time.Duration(c.Timeouts.Stall)))
	}
	if c.Download.SizeTolerance != nil {
		opts = append(opts, fetch.WithSizeTolerance(*c.Download.SizeTolerance))
	}
	if c.Download.MaxSize > 0 {
		opts = append(opts, fetch.WithMaxSize(c.Download.MaxSize))
	}
	if c.UserAgent != "" {
		opts = append(opts, fetch.WithUserAgent(c.UserAgent))
	}
	return opts
}
