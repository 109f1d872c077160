// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/ocs-custodian/internal/api"
	"github.com/stacklok/ocs-custodian/record"
)

func newRecordsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and manage install records",
	}
	cmd.AddCommand(newRecordsListCmd(v), newRecordsForgetCmd(v))
	return cmd
}

func newRecordsListCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			c, err := newCustodian(v)
			if err != nil {
				return err
			}
			defer c.Close()

			recs, err := c.orchestrator.Records(cmd.Context())
			if err != nil {
				return err
			}
			resps := api.RecordResponses(cmd.Context(), c.orchestrator, recs)
			if format == "json" {
				return writeJSON(cmd, resps)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Key", "Category", "Installed", "Cached", "Path")
			for _, r := range resps {
				if err := table.Append([]string{
					r.Key().String(),
					string(r.Category),
					r.InstalledAt.Local().Format(time.DateTime),
					strconv.FormatBool(r.Cached),
					r.InstalledPath,
				}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

func newRecordsForgetCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <provider-host/item-id>",
		Short: "Forget an installed item",
		Long: `Forget removes the install record of an item and its cached artifact. The
installed files are left in place unless --purge is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := record.ParseKey(args[0])
			if err != nil {
				return err
			}
			purge, err := cmd.Flags().GetBool("purge")
			if err != nil {
				return err
			}
			c, err := newCustodian(v)
			if err != nil {
				return err
			}
			defer c.Close()

			rec, err := c.orchestrator.Forget(cmd.Context(), key, purge)
			if err != nil {
				return err
			}
			return writeJSON(cmd, rec)
		},
	}
	cmd.Flags().Bool("purge", false, "Also delete the installed files")
	return cmd
}
