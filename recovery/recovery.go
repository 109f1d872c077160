// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package recovery

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Middleware recovers from panics using the default logger.
func Middleware(next http.Handler) http.Handler {
	return New(nil)(next)
}

// New returns middleware that recovers from panics in the wrapped handler,
// logs the panic value with its stack and answers 500 Internal Server Error.
// A nil logger means slog.Default(). http.ErrAbortHandler is re-raised so the
// server can abort the connection.
func New(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "recovered from panic in handler",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
