// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"time"

	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/pipeline"
	"github.com/stacklok/ocs-custodian/record"
	"github.com/stacklok/ocs-custodian/router"
)

// RunRequest starts a run.
type RunRequest struct {
	Link string `json:"link"`
}

// PlanRequest asks where a link would be installed.
type PlanRequest struct {
	Link string `json:"link"`
}

// RunResponse describes one run.
type RunResponse struct {
	ID       string            `json:"id"`
	Link     string            `json:"link"`
	Created  time.Time         `json:"created"`
	State    pipeline.State    `json:"stage"`
	Fraction float64           `json:"fraction_complete"`
	Outcome  *pipeline.Outcome `json:"outcome,omitempty"`
}

// RunListResponse lists runs, oldest first.
type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}

// PlanResponse is the resolved descriptor and the install target.
type PlanResponse struct {
	Descriptor *content.Descriptor `json:"descriptor"`
	Target     *router.Target      `json:"target"`
}

// RecordResponse is an install record with the state of its cached artifact.
type RecordResponse struct {
	*record.Record
	Cached bool `json:"cached"`
}

// RecordListResponse lists install records.
type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
}

// RecordResponses pairs each record with its cache state.
func RecordResponses(ctx context.Context, o *pipeline.Orchestrator, recs []*record.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, RecordResponse{Record: rec, Cached: o.Cached(ctx, rec)})
	}
	return out
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
	// ProviderStatus is the HTTP status the provider answered with, if any.
	ProviderStatus int `json:"provider_status,omitempty"`
}

func runResponse(run *pipeline.Run) RunResponse {
	ev := run.Snapshot()
	return RunResponse{
		ID:       run.ID(),
		Link:     run.Link(),
		Created:  run.Created(),
		State:    ev.State,
		Fraction: ev.Fraction,
		Outcome:  ev.Outcome,
	}
}
