// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package fetch downloads artifacts to temporary files and verifies them.

A download streams to a file created in the configured temp directory while
md5 (or the algorithm of the expected checksum) and sha256 are computed on
the fly. The transfer is aborted as soon as the received byte count passes
the advertised size plus a tolerance, and a watchdog aborts transfers that
stop delivering data. Failures are classified with ocserr kinds:

  - fetch_interrupted for network errors, stalls, 5xx and 429 (retryable)
  - fetch_rejected for other non-2xx answers
  - fetch_size_exceeded and fetch_integrity_mismatch
  - cancelled when the caller's context ends

The temporary file is removed on every failure, so a failed or cancelled
download leaves nothing behind.

	f := fetch.NewFetcher(fetch.WithTempDir(dir))
	artifact, err := f.Download(ctx, fetch.Request{URL: u, Checksum: sum, SizeBytes: size})
	if err != nil {
		return err
	}
	if err := fetch.Verify(artifact, sum); err != nil {
		return err
	}
	defer artifact.Discard()
*/
package fetch
