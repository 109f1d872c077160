// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package api exposes the pipeline to desktop front-ends over loopback HTTP.

	POST   /api/v1/runs                       {"link": "ocs://..."} starts a run
	GET    /api/v1/runs                       lists known runs
	GET    /api/v1/runs/{id}                  one run and, once finished, its outcome
	GET    /api/v1/runs/{id}/events           progress as newline-delimited JSON
	DELETE /api/v1/runs/{id}                  cancels a run
	POST   /api/v1/plan                       resolves and routes without installing
	GET    /api/v1/records                    install records
	DELETE /api/v1/records/{provider}/{item}  forgets a record, ?purge=true deletes files
	GET    /health, /version, /metrics

Errors are JSON objects with an "error" message and, for pipeline failures,
the error "kind" and "stage".
*/
package api
