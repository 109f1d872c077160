// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package httperr maps custodian errors to HTTP status codes.

Handlers either attach a code explicitly:

	err := httperr.New("run not found", http.StatusNotFound)
	err = httperr.WithCode(err, http.StatusBadRequest)

or let the error kind decide:

	_, _, err := orchestrator.Plan(ctx, link)
	http.Error(w, err.Error(), httperr.Code(err))

A parse failure becomes 400, an unknown item 404, an unreachable provider
503, a bad download 502 and an install refused by policy 409. Errors with no
kind are 500.
*/
package httperr
