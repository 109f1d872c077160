// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package ocserr provides the error taxonomy for resolving and installing
ocs:// content.

Every failure the custodian reports is an *Error carrying a Kind. Stages raise
errors without a stage; the pipeline orchestrator attributes them with
WithStage so callers always learn where a run failed:

	if err := ocserr.Newf(ocserr.KindProviderNotFound, "item %s not found", id); err != nil {
		return ocserr.WithStage(err, ocserr.StageResolving)
	}

	switch ocserr.KindOf(err) {
	case ocserr.KindProviderUnavailable, ocserr.KindFetchInterrupted:
		// transient, safe to retry
	}

Only KindProviderUnavailable and KindFetchInterrupted are retryable.
*/
package ocserr
