// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package httperr maps custodian errors to HTTP status codes for the local API.
package httperr

import (
	"errors"
	"net/http"

	"github.com/stacklok/ocs-custodian/ocserr"
)

// CodedError wraps an error with an HTTP status code.
// It takes precedence over the status derived from an error kind.
type CodedError struct {
	err  error
	code int
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	return e.err.Error()
}

// Unwrap returns the underlying error for errors.Is() and errors.As() compatibility.
func (e *CodedError) Unwrap() error {
	return e.err
}

// HTTPCode returns the HTTP status code associated with this error.
func (e *CodedError) HTTPCode() int {
	return e.code
}

// WithCode wraps an error with an HTTP status code.
// If err is nil, WithCode returns nil.
func WithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &CodedError{err: err, code: code}
}

// New creates a new error with the given message and HTTP status code.
func New(message string, code int) error {
	return &CodedError{err: errors.New(message), code: code}
}

var kindCodes = map[ocserr.Kind]int{
	ocserr.KindParse:                     http.StatusBadRequest,
	ocserr.KindProviderNotFound:          http.StatusNotFound,
	ocserr.KindProviderUnavailable:       http.StatusServiceUnavailable,
	ocserr.KindProviderMalformedResponse: http.StatusBadGateway,
	ocserr.KindProviderNoDownload:        http.StatusNotFound,
	ocserr.KindUnsupportedCategory:       http.StatusUnprocessableEntity,
	ocserr.KindFetchInterrupted:          http.StatusBadGateway,
	ocserr.KindFetchIntegrityMismatch:    http.StatusBadGateway,
	ocserr.KindFetchSizeExceeded:         http.StatusBadGateway,
	ocserr.KindFetchRejected:             http.StatusBadGateway,
	ocserr.KindAlreadyInstalled:          http.StatusConflict,
	ocserr.KindFilesystem:                http.StatusInternalServerError,
	ocserr.KindPathTraversalRejected:     http.StatusUnprocessableEntity,
	ocserr.KindInvalidArchive:            http.StatusUnprocessableEntity,
	ocserr.KindCancelled:                 http.StatusConflict,
	ocserr.KindInternal:                  http.StatusInternalServerError,
}

// KindCode returns the HTTP status code used for an error kind.
func KindCode(kind ocserr.Kind) int {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Code extracts the HTTP status code from an error.
// An explicit CodedError wins; otherwise the code follows the error kind.
// It returns http.StatusOK for a nil error.
func Code(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.code
	}

	return KindCode(ocserr.KindOf(err))
}
