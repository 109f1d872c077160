// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package recovery provides panic recovery middleware for the local API.
//
// A panicking handler is logged with its stack trace and answered with
// 500 Internal Server Error, so a single request cannot take the server down.
//
//	r := chi.NewRouter()
//	r.Use(recovery.New(logger))
package recovery
