// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for ocs-custodian.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stacklok/ocs-custodian/cmd/ocs-custodian/app"
	"github.com/stacklok/ocs-custodian/env"
	"github.com/stacklok/ocs-custodian/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Logs go to stderr so stdout stays clean for command output.
	logger, err := logging.FromEnv(&env.OSReader{})
	if err != nil {
		logger = logging.New()
		logger.Warn("ignoring invalid logging environment", logging.KeyError, err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
