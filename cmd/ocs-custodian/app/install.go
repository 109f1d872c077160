// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/ocs-custodian/logging"
	"github.com/stacklok/ocs-custodian/ocserr"
	"github.com/stacklok/ocs-custodian/pipeline"
)

// installResult is printed for every link once its run has ended.
type installResult struct {
	Link    string            `json:"link"`
	RunID   string            `json:"run_id,omitempty"`
	Outcome *pipeline.Outcome `json:"outcome,omitempty"`
}

type installFunc func(ctx context.Context) (*pipeline.Run, *pipeline.Outcome, error)

func newInstallCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <link>...",
		Short: "Install the items behind ocs:// links",
		Long: `Install resolves, downloads, verifies and installs the item behind each link.
Progress is reported on stderr; the outcome of every run is printed as JSON on
stdout. With --retries, runs that fail for a transient reason (provider
unavailable, interrupted download) are started again after a back-off.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			retries, err := cmd.Flags().GetUint("retries")
			if err != nil {
				return err
			}
			quiet, err := cmd.Flags().GetBool("quiet")
			if err != nil {
				return err
			}

			c, err := newCustodian(v)
			if err != nil {
				return err
			}
			defer c.Close()

			progress := cmd.ErrOrStderr()
			if quiet {
				progress = io.Discard
			}

			results := make([]installResult, 0, len(args))
			var errs []error
			for _, link := range args {
				run, out, err := installWithRetries(cmd.Context(), c.logger, retries, backoff.NewExponentialBackOff(),
					func(ctx context.Context) (*pipeline.Run, *pipeline.Outcome, error) {
						return watchInstall(ctx, c.orchestrator, link, progress)
					})
				result := installResult{Link: link, Outcome: out}
				if run != nil {
					result.RunID = run.ID()
				}
				results = append(results, result)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", link, err))
				}
			}
			if err := writeJSON(cmd, results); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().Uint("retries", 0, "Start a run again up to this many times when it fails for a transient reason")
	cmd.Flags().BoolP("quiet", "q", false, "Do not report progress")
	return cmd
}

// watchInstall submits link, reports its progress to w and waits for the
// outcome. When ctx is done the run is cancelled.
func watchInstall(
	ctx context.Context, o *pipeline.Orchestrator, link string, w io.Writer,
) (*pipeline.Run, *pipeline.Outcome, error) {
	run := o.Submit(link)
	for ev := range run.Watch(ctx) {
		_, _ = fmt.Fprintf(w, "%-10s %3.0f%%  %s\n", ev.State, ev.Fraction*100, run.Link())
	}
	select {
	case <-run.Done():
	case <-ctx.Done():
		run.Cancel()
		<-run.Done()
	}
	out := run.Outcome()
	return run, out, out.Err
}

// installWithRetries calls install until it succeeds, fails permanently or
// retries are exhausted. The pipeline itself never retries; re-issuing a
// transient failure is the caller's decision.
func installWithRetries(
	ctx context.Context, logger *slog.Logger, retries uint, b backoff.BackOff, install installFunc,
) (*pipeline.Run, *pipeline.Outcome, error) {
	var (
		lastRun     *pipeline.Run
		lastOutcome *pipeline.Outcome
	)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		run, out, err := install(ctx)
		lastRun, lastOutcome = run, out
		if err != nil && !ocserr.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(retries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("install failed, retrying", "in", next, logging.KeyError, err)
		}),
	)
	return lastRun, lastOutcome, err
}
