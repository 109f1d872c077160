// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ocserr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindRetryable(t *testing.T) {
	t.Parallel()

	retryable := map[Kind]bool{
		KindParse:                     false,
		KindProviderNotFound:          false,
		KindProviderUnavailable:       true,
		KindProviderMalformedResponse: false,
		KindProviderNoDownload:        false,
		KindUnsupportedCategory:       false,
		KindFetchInterrupted:          true,
		KindFetchIntegrityMismatch:    false,
		KindFetchSizeExceeded:         false,
		KindFetchRejected:             false,
		KindAlreadyInstalled:          false,
		KindFilesystem:                false,
		KindPathTraversalRejected:     false,
		KindInvalidArchive:            false,
		KindCancelled:                 false,
		KindInternal:                  false,
	}

	for kind, want := range retryable {
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, want, kind.Retryable())
			assert.Equal(t, want, IsRetryable(New(kind, errors.New("boom"))))
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil error stays nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, New(KindInternal, nil))
	})

	t.Run("message carries kind", func(t *testing.T) {
		t.Parallel()
		err := Newf(KindProviderNotFound, "item %s not found", "42")
		assert.Equal(t, "provider_not_found: item 42 not found", err.Error())
		assert.Equal(t, KindProviderNotFound, KindOf(err))
		assert.Empty(t, StageOf(err))
	})
}

func TestWithStage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		stage     Stage
		wantKind  Kind
		wantStage Stage
		wantMsg   string
	}{
		{
			name:      "attributes kinded error",
			err:       Newf(KindFetchSizeExceeded, "got %d bytes", 10),
			stage:     StageFetching,
			wantKind:  KindFetchSizeExceeded,
			wantStage: StageFetching,
			wantMsg:   "fetching: fetch_size_exceeded: got 10 bytes",
		},
		{
			name:      "wrapped kinded error keeps kind",
			err:       fmt.Errorf("context: %w", New(KindParse, errors.New("bad"))),
			stage:     StageParsing,
			wantKind:  KindParse,
			wantStage: StageParsing,
			wantMsg:   "parsing: context: parse: bad",
		},
		{
			name:      "plain error becomes internal",
			err:       errors.New("boom"),
			stage:     StageInstalling,
			wantKind:  KindInternal,
			wantStage: StageInstalling,
			wantMsg:   "installing: internal: boom",
		},
		{
			name:      "context cancellation becomes cancelled",
			err:       fmt.Errorf("reading: %w", context.Canceled),
			stage:     StageResolving,
			wantKind:  KindCancelled,
			wantStage: StageResolving,
		},
		{
			name:      "existing stage is preserved",
			err:       WithStage(New(KindFilesystem, errors.New("denied")), StageInstalling),
			stage:     StageVerifying,
			wantKind:  KindFilesystem,
			wantStage: StageInstalling,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := WithStage(tt.err, tt.stage)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Equal(t, tt.wantStage, StageOf(err))
			assert.True(t, Is(err, tt.wantKind))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
			assert.ErrorIs(t, err, errors.Unwrap(errors.Unwrap(err)))
		})
	}

	assert.NoError(t, WithStage(nil, StageFetching))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindInternal))
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FromContext(nil, KindProviderUnavailable))
	assert.Equal(t, KindCancelled, KindOf(FromContext(context.Canceled, KindProviderUnavailable)))
	assert.Equal(t, KindProviderUnavailable, KindOf(FromContext(context.DeadlineExceeded, KindProviderUnavailable)))
	assert.ErrorIs(t, FromContext(context.DeadlineExceeded, KindFetchInterrupted), context.DeadlineExceeded)
}
