// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/ocs-custodian/httperr"
	"github.com/stacklok/ocs-custodian/internal/versions"
	"github.com/stacklok/ocs-custodian/logging"
	"github.com/stacklok/ocs-custodian/ocserr"
	"github.com/stacklok/ocs-custodian/pipeline"
	"github.com/stacklok/ocs-custodian/provider"
	"github.com/stacklok/ocs-custodian/record"
	validhttp "github.com/stacklok/ocs-custodian/validation/http"
	validname "github.com/stacklok/ocs-custodian/validation/name"
)

// maxBodyBytes bounds request bodies; they only ever carry a link.
const maxBodyBytes = 64 << 10

// Routes holds dependencies for the v1 handlers.
type Routes struct {
	orchestrator *pipeline.Orchestrator
	logger       *slog.Logger
}

// Router returns the handler for /api/v1.
func Router(o *pipeline.Orchestrator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	routes := &Routes{orchestrator: o, logger: logger}

	r.Post("/runs", routes.createRun)
	r.Get("/runs", routes.listRuns)
	r.Get("/runs/{id}", routes.getRun)
	r.Delete("/runs/{id}", routes.cancelRun)
	r.Get("/runs/{id}/events", routes.runEvents)
	r.Post("/plan", routes.plan)
	r.Get("/records", routes.listRecords)
	r.Delete("/records/{provider}/{item}", routes.forgetRecord)

	return r
}

// createRun handles POST /api/v1/runs. Malformed links are accepted and the
// run fails at parsing, like any other failure.
func (routes *Routes) createRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	run := routes.orchestrator.Submit(req.Link)
	routes.logger.InfoContext(r.Context(), "run submitted", logging.KeyRunID, run.ID(), "link", run.Link())
	w.Header().Set("Location", "/api/v1/runs/"+run.ID())
	writeJSON(w, runResponse(run), http.StatusAccepted)
}

// listRuns handles GET /api/v1/runs.
func (routes *Routes) listRuns(w http.ResponseWriter, _ *http.Request) {
	runs := routes.orchestrator.Runs()
	resp := RunListResponse{Runs: make([]RunResponse, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, runResponse(run))
	}
	writeJSON(w, resp, http.StatusOK)
}

// getRun handles GET /api/v1/runs/{id}.
func (routes *Routes) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := routes.run(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, runResponse(run), http.StatusOK)
}

// cancelRun handles DELETE /api/v1/runs/{id}. Cancelling a finished run has
// no effect.
func (routes *Routes) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := routes.run(r)
	if err != nil {
		writeError(w, err)
		return
	}
	run.Cancel()
	routes.logger.InfoContext(r.Context(), "run cancellation requested", logging.KeyRunID, run.ID())
	writeJSON(w, runResponse(run), http.StatusAccepted)
}

// runEvents handles GET /api/v1/runs/{id}/events. Events are streamed as
// newline-delimited JSON until the run ends or the client goes away.
func (routes *Routes) runEvents(w http.ResponseWriter, r *http.Request) {
	run, err := routes.run(r)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for ev := range run.Watch(r.Context()) {
		if err := enc.Encode(ev); err != nil {
			routes.logger.DebugContext(r.Context(), "event stream closed", logging.KeyRunID, run.ID(), logging.KeyError, err)
			return
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return
		}
	}
}

// plan handles POST /api/v1/plan.
func (routes *Routes) plan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	desc, target, err := routes.orchestrator.Plan(r.Context(), req.Link)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, PlanResponse{Descriptor: desc, Target: target}, http.StatusOK)
}

// listRecords handles GET /api/v1/records.
func (routes *Routes) listRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := routes.orchestrator.Records(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, RecordListResponse{Records: RecordResponses(r.Context(), routes.orchestrator, recs)}, http.StatusOK)
}

// forgetRecord handles DELETE /api/v1/records/{provider}/{item}. With
// ?purge=true the installed files are removed too.
func (routes *Routes) forgetRecord(w http.ResponseWriter, r *http.Request) {
	key := record.Key{ProviderHost: chi.URLParam(r, "provider"), ItemID: chi.URLParam(r, "item")}
	if err := validhttp.ValidateHost(key.ProviderHost); err != nil {
		writeError(w, httperr.WithCode(err, http.StatusBadRequest))
		return
	}
	if err := validname.ValidateComponent(key.ItemID); err != nil {
		writeError(w, httperr.WithCode(err, http.StatusBadRequest))
		return
	}

	purge := false
	if v := r.URL.Query().Get("purge"); v != "" {
		var err error
		if purge, err = strconv.ParseBool(v); err != nil {
			writeError(w, httperr.WithCode(fmt.Errorf("invalid purge value %q", v), http.StatusBadRequest))
			return
		}
	}

	rec, err := routes.orchestrator.Forget(r.Context(), key, purge)
	if errors.Is(err, record.ErrNotFound) {
		err = httperr.WithCode(err, http.StatusNotFound)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, rec, http.StatusOK)
}

func (routes *Routes) run(r *http.Request) (*pipeline.Run, error) {
	id := chi.URLParam(r, "id")
	run, ok := routes.orchestrator.Run(id)
	if !ok {
		return nil, httperr.New(fmt.Sprintf("run %q not found", id), http.StatusNotFound)
	}
	return run, nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, versions.GetVersionInfo(), http.StatusOK)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return httperr.WithCode(fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var coded *httperr.CodedError
	if !errors.As(err, &coded) {
		resp.Kind = string(ocserr.KindOf(err))
		resp.Stage = string(ocserr.StageOf(err))
	}
	if se, ok := provider.IsStatusError(err); ok {
		resp.ProviderStatus = se.StatusCode
	}
	writeJSON(w, resp, httperr.Code(err))
}
