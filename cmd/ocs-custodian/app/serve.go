// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/ocs-custodian/internal/api"
)

const (
	defaultGracefulTimeout = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local API for desktop front-ends",
		Long: `Serve exposes runs, progress events and install records over HTTP so a
desktop front-end can drive installs. The API has no authentication and is
meant to listen on a loopback address only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newCustodian(v)
			if err != nil {
				return err
			}
			defer c.Close()

			address := c.cfg.Listen
			if s := v.GetString("listen"); s != "" {
				address = s
			}
			if !isLoopback(address) {
				c.logger.Warn("local API is listening on a non-loopback address", "address", address)
			}

			ln, err := net.Listen("tcp", address)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", address, err)
			}
			return c.serve(cmd.Context(), ln)
		},
	}
	cmd.Flags().String("listen", "", "Address to listen on, overriding the configured address")
	if err := v.BindPFlag("listen", cmd.Flags().Lookup("listen")); err != nil {
		slog.Error("Error binding flag", "flag", "listen", "error", err)
	}
	return cmd
}

// serve runs the API on ln until ctx is done, then shuts down gracefully.
func (c *custodian) serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler: api.NewServer(c.orchestrator,
			api.WithLogger(c.logger),
			api.WithMetricsHandler(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})),
		),
		ReadHeaderTimeout: serverReadTimeout,
		IdleTimeout:       serverIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("server listening", "address", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving local API: %w", err)
	case <-ctx.Done():
	}

	c.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultGracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shut down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	c.logger.Info("server shutdown complete")
	return nil
}

func isLoopback(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
