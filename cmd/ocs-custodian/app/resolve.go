// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/ocs-custodian/internal/api"
)

func newResolveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <link>",
		Short: "Show what a link refers to and where it would be installed",
		Long: `Resolve queries the provider for the item behind a link and routes it, without
downloading or installing anything. The descriptor and install target are
printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCustodian(v)
			if err != nil {
				return err
			}
			defer c.Close()

			desc, target, err := c.orchestrator.Plan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, api.PlanResponse{Descriptor: desc, Target: target})
		},
	}
}
