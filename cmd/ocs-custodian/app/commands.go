// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the ocs-custodian command line.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/ocs-custodian/env"
	"github.com/stacklok/ocs-custodian/internal/versions"
)

// Flag and viper keys shared by every command.
const (
	keyConfig    = "config"
	keyLogLevel  = "log-level"
	keyLogFormat = "log-format"
	keyReinstall = "reinstall"
)

// NewRootCmd creates the ocs-custodian command tree. Each call returns an
// independent tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(strings.TrimSuffix(env.Prefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "ocs-custodian",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Install desktop content from ocs:// links",
		Long: `ocs-custodian resolves ocs:// links against Open Collaboration Services
providers, downloads and verifies the content, and installs it where the
desktop environment looks for it.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(keyConfig, "", "Path to the configuration file (default $XDG_CONFIG_HOME/ocs-custodian/config.yaml)")
	flags.String(keyLogLevel, "", "Log level (debug, info, warn, error)")
	flags.String(keyLogFormat, "", "Log format (json, text)")
	flags.String(keyReinstall, "", "Re-install policy for installed items (skip, verify, always)")
	for _, key := range []string{keyConfig, keyLogLevel, keyLogFormat, keyReinstall} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			slog.Error("Error binding flag", "flag", key, "error", err)
		}
	}

	rootCmd.AddCommand(
		newInstallCmd(v),
		newResolveCmd(v),
		newRecordsCmd(v),
		newServeCmd(v),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd, info)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ocs-custodian %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
