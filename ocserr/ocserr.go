// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ocserr

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a class of failure. Kinds are stable strings so they can be
// surfaced to callers over the API and in metrics labels.
type Kind string

// Error kinds, grouped by the stage that raises them.
const (
	// KindParse is returned when an ocs:// URI is malformed.
	KindParse Kind = "parse"

	KindProviderNotFound          Kind = "provider_not_found"
	KindProviderUnavailable       Kind = "provider_unavailable"
	KindProviderMalformedResponse Kind = "provider_malformed_response"
	KindProviderNoDownload        Kind = "provider_no_download_available"

	KindUnsupportedCategory Kind = "routing_unsupported_category"

	KindFetchInterrupted       Kind = "fetch_interrupted"
	KindFetchIntegrityMismatch Kind = "fetch_integrity_mismatch"
	KindFetchSizeExceeded      Kind = "fetch_size_exceeded"
	// KindFetchRejected is returned when the download host answers with a
	// client error. Retrying the same request will not help.
	KindFetchRejected Kind = "fetch_rejected"

	KindAlreadyInstalled      Kind = "install_already_installed"
	KindFilesystem            Kind = "install_filesystem"
	KindPathTraversalRejected Kind = "install_path_traversal_rejected"
	KindInvalidArchive        Kind = "install_invalid_archive"

	KindCancelled Kind = "cancelled"
	KindInternal  Kind = "internal"
)

// Retryable reports whether an operation that failed with this kind may
// succeed when attempted again without any change.
func (k Kind) Retryable() bool {
	switch k {
	case KindProviderUnavailable, KindFetchInterrupted:
		return true
	default:
		return false
	}
}

// Stage names a pipeline stage a failure is attributed to.
type Stage string

// Pipeline stages in execution order.
const (
	StageParsing    Stage = "parsing"
	StageResolving  Stage = "resolving"
	StageRouting    Stage = "routing"
	StageFetching   Stage = "fetching"
	StageVerifying  Stage = "verifying"
	StageInstalling Stage = "installing"
)

// Error is a failure carrying its kind and, once attributed by the
// orchestrator, the stage it happened in.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is() and errors.As() compatibility.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// New wraps err with a kind. If err is nil, New returns nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Newf creates an error of the given kind from a format string.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithStage attributes err to a pipeline stage. Errors without a kind are
// classified as KindInternal, and context cancellation as KindCancelled.
// A nil err stays nil.
func WithStage(err error, stage Stage) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Stage != "" {
			return err
		}
		return &Error{Kind: e.Kind, Stage: stage, Err: err}
	}
	kind := KindInternal
	if errors.Is(err, context.Canceled) {
		kind = KindCancelled
	}
	return &Error{Kind: kind, Stage: stage, Err: New(kind, err)}
}

// KindOf returns the kind of err, KindInternal for unclassified errors and
// the empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StageOf returns the stage err is attributed to, or the empty stage.
func StageOf(err error) Stage {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return ""
		}
		if e.Stage != "" {
			return e.Stage
		}
		err = e.Err
	}
	return ""
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// FromContext converts a context error into a cancellation. A deadline that
// expired is reported with the fallback kind since it signals a slow peer,
// not a caller decision.
func FromContext(err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return New(KindCancelled, err)
	}
	return New(fallback, err)
}
