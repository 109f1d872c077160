// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"github.com/stacklok/ocs-custodian/cache"
	"github.com/stacklok/ocs-custodian/config"
	"github.com/stacklok/ocs-custodian/fetch"
	"github.com/stacklok/ocs-custodian/installer"
	"github.com/stacklok/ocs-custodian/internal/versions"
	"github.com/stacklok/ocs-custodian/logging"
	"github.com/stacklok/ocs-custodian/pipeline"
	"github.com/stacklok/ocs-custodian/provider"
	"github.com/stacklok/ocs-custodian/record"
	"github.com/stacklok/ocs-custodian/router"
)

// custodian is the wired pipeline a command works with.
type custodian struct {
	cfg          *config.Config
	logger       *slog.Logger
	registry     *prometheus.Registry
	orchestrator *pipeline.Orchestrator
}

// loadConfig reads the configuration and applies the command line flags over it.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	var opts []config.Option
	if path := v.GetString(keyConfig); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}

	if s := v.GetString(keyLogLevel); s != "" {
		cfg.LogLevel = s
	}
	if s := v.GetString(keyLogFormat); s != "" {
		cfg.LogFormat = s
	}
	if s := v.GetString(keyReinstall); s != "" {
		cfg.Reinstall = s
	}
	if cfg.UserAgent == provider.DefaultUserAgent {
		cfg.UserAgent = versions.UserAgent()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command line: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.WithLevel(level), logging.WithFormat(format)), nil
}

// newCustodian wires the pipeline from the configuration.
func newCustodian(v *viper.Viper) (*custodian, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return wire(cfg, logger, router.DefaultDirs())
}

func wire(cfg *config.Config, logger *slog.Logger, dirs router.Dirs) (*custodian, error) {
	rt, err := router.New(cfg.Table(), dirs)
	if err != nil {
		return nil, fmt.Errorf("building routing table: %w", err)
	}

	resolver := provider.NewClient(append(cfg.ProviderOptions(), provider.WithLogger(logger))...)
	fetcher := fetch.NewFetcher(append(cfg.FetchOptions(), fetch.WithLogger(logger))...)

	records := record.NewFileStore(cfg.RecordsPath)
	inst := installer.New(records,
		installer.WithLockDir(cfg.LockDir),
		installer.WithArchiveLimits(cfg.Limits()),
		installer.WithLogger(logger),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []pipeline.Option{
		pipeline.WithReinstallPolicy(cfg.Policy()),
		pipeline.WithMaxConcurrent(cfg.MaxConcurrent),
		pipeline.WithMetrics(pipeline.NewMetrics(registry)),
		pipeline.WithTempDir(cfg.TempDir),
		pipeline.WithLogger(logger),
	}
	if cfg.CacheEnabled() {
		store, err := cache.New(cfg.Cache.Dir)
		if err != nil {
			logger.Warn("artifact cache disabled", "dir", cfg.Cache.Dir, logging.KeyError, err)
		} else {
			logger.Debug("artifact cache enabled", "dir", store.Dir())
			opts = append(opts, pipeline.WithCache(store))
		}
	}

	return &custodian{
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		orchestrator: pipeline.New(resolver, rt, fetcher, inst, opts...),
	}, nil
}

// Close cancels the runs in progress and waits for them.
func (c *custodian) Close() {
	c.orchestrator.Close()
}
