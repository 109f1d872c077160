// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package logging provides the [log/slog.Logger] factory used by every
custodian component.

# Defaults

  - Format: JSON ([FormatJSON]) via [log/slog.JSONHandler]
  - Level: INFO ([log/slog.LevelInfo])
  - Output: [os.Stderr]
  - Timestamps: [time.RFC3339]

# Configuration

Use functional options to customize the logger:

	logger := logging.New(
		logging.WithFormat(logging.FormatText),
		logging.WithLevel(slog.LevelDebug),
	)

or let the environment decide, with OCS_CUSTODIAN_LOG_LEVEL and
OCS_CUSTODIAN_LOG_FORMAT:

	logger, err := logging.FromEnv(&env.OSReader{})

Pass a [log/slog.LevelVar] to change the level at runtime.

# Attributes

Components log with the shared keys [KeyRunID], [KeyProvider], [KeyItemID],
[KeyStage] and [KeyPath] so that one run can be followed across stages:

	logger.Info("item installed", logging.KeyRunID, run.ID, logging.KeyPath, rec.InstalledPath)
*/
package logging
