// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package pipeline coordinates the custodian's components and is the only
part callers need to face.

A run takes one link through parsing, resolving, routing, fetching,
verifying and installing, and ends completed, failed or cancelled. Stages
run strictly forward and are never retried; a failure carries the kind its
component assigned and the stage it happened in.

	o := pipeline.New(providerClient, rt, fetcher, inst)
	defer o.Close()

	run := o.Submit("ocs://example.org/icon-theme/42")
	for ev := range run.Watch(ctx) {
		fmt.Printf("%s %.0f%%\n", ev.State, ev.Fraction*100)
	}
	if out := run.Outcome(); out.Err != nil {
		return out.Err
	}

Submitting a link while a run for it is in progress returns that run.
Progress fractions never decrease; each stage owns a fixed slice of the
range, and fetching, the longest stage, advances with the received bytes.
*/
package pipeline
