// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package httperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/ocs-custodian/ocserr"
)

func TestWithCode(t *testing.T) {
	t.Parallel()

	t.Run("wraps error with code", func(t *testing.T) {
		t.Parallel()

		baseErr := errors.New("test error")
		err := WithCode(baseErr, http.StatusNotFound)

		var coded *CodedError
		require.ErrorAs(t, err, &coded)
		require.Equal(t, http.StatusNotFound, coded.HTTPCode())
		require.Equal(t, "test error", coded.Error())
		require.ErrorIs(t, err, baseErr)
	})

	t.Run("returns nil for nil error", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, WithCode(nil, http.StatusNotFound))
	})
}

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil", err: nil, expected: http.StatusOK},
		{name: "plain error", err: errors.New("plain"), expected: http.StatusInternalServerError},
		{name: "explicit code", err: New("missing", http.StatusNotFound), expected: http.StatusNotFound},
		{
			name:     "explicit code wins over kind",
			err:      WithCode(ocserr.Newf(ocserr.KindParse, "bad"), http.StatusTeapot),
			expected: http.StatusTeapot,
		},
		{name: "parse", err: ocserr.Newf(ocserr.KindParse, "bad"), expected: http.StatusBadRequest},
		{
			name:     "not found with stage",
			err:      ocserr.WithStage(ocserr.Newf(ocserr.KindProviderNotFound, "gone"), ocserr.StageResolving),
			expected: http.StatusNotFound,
		},
		{
			name:     "provider unavailable",
			err:      fmt.Errorf("layer: %w", ocserr.Newf(ocserr.KindProviderUnavailable, "down")),
			expected: http.StatusServiceUnavailable,
		},
		{name: "integrity", err: ocserr.Newf(ocserr.KindFetchIntegrityMismatch, "x"), expected: http.StatusBadGateway},
		{name: "already installed", err: ocserr.Newf(ocserr.KindAlreadyInstalled, "x"), expected: http.StatusConflict},
		{
			name:     "cancelled",
			err:      ocserr.WithStage(context.Canceled, ocserr.StageFetching),
			expected: http.StatusConflict,
		},
		{name: "traversal", err: ocserr.Newf(ocserr.KindPathTraversalRejected, "x"), expected: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, Code(tt.err))
		})
	}
}

func TestKindCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusInternalServerError, KindCode("something_new"))
	require.Equal(t, http.StatusInternalServerError, KindCode(ocserr.KindFilesystem))
}
