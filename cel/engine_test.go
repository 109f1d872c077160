// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cel_test

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/ocs-custodian/cel"
	"github.com/stacklok/ocs-custodian/content"
)

func testDescriptor() *content.Descriptor {
	return &content.Descriptor{
		ProviderHost: "example.org",
		ItemID:       "42",
		Title:        "Dash to Dock",
		Category:     content.CategoryExtension,
		InstallType:  content.InstallTypeGnomeShellExtensions,
		DownloadURL:  "https://cdn.example.org/dash.zip",
		FileName:     "dash.zip",
		SizeBytes:    4096,
	}
}

func TestEngine_Compile_ValidConditions(t *testing.T) {
	t.Parallel()

	engine := cel.NewEngine()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"install type equality", `descriptor.install_type == "gnome_shell_extensions"`, true},
		{"install type mismatch", `descriptor.install_type == "cinnamon_extensions"`, false},
		{"membership", `descriptor.install_type in ["gnome_shell_extensions", ""]`, true},
		{"size comparison", `descriptor.size_bytes < 10000`, true},
		{"string function", `descriptor.file_name.endsWith(".zip")`, true},
		{"conjunction", `descriptor.category == "extension" && descriptor.provider_host == "example.org"`, true},
		{"literal true", `true`, true},
		{"empty checksum", `descriptor.checksum == ""`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cond, err := engine.Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, cond.Source())

			got, err := cond.Matches(testDescriptor())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_Compile_Errors(t *testing.T) {
	t.Parallel()

	engine := cel.NewEngine()

	tests := []struct {
		name      string
		expr      string
		wantPhase cel.Phase
	}{
		{name: "syntax error", expr: `descriptor.category ==`, wantPhase: cel.PhaseParse},
		{name: "unbalanced", expr: `descriptor["category"`, wantPhase: cel.PhaseParse},
		{name: "undeclared variable", expr: `item.category == "font"`, wantPhase: cel.PhaseCheck},
		{name: "string result", expr: `"font"`, wantPhase: cel.PhaseResult},
		{name: "int result", expr: `1 + 2`, wantPhase: cel.PhaseResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := engine.Compile(tt.expr)
			require.Error(t, err)
			assert.ErrorIs(t, err, cel.ErrExpressionCheck)
			assert.Error(t, engine.Check(tt.expr))

			var condErr *cel.ConditionError
			require.True(t, errors.As(err, &condErr))
			assert.Equal(t, tt.wantPhase, condErr.Phase)
			assert.Equal(t, tt.expr, condErr.Source)
			assert.NotEmpty(t, condErr.Issues)
			assert.Contains(t, err.Error(), string(tt.wantPhase))
			assert.Empty(t, condErr.Route)
		})
	}
}

func TestConditionError_At(t *testing.T) {
	t.Parallel()

	_, err := cel.NewEngine().Compile(`descriptor.category ==`)
	var condErr *cel.ConditionError
	require.True(t, errors.As(err, &condErr))

	located := condErr.At("font", 2)
	assert.Equal(t, "font", located.Route)
	assert.Equal(t, 2, located.Candidate)
	assert.Empty(t, condErr.Route, "At copies")
	assert.True(t, strings.HasPrefix(located.Error(), "route font candidate 2: condition parse error"))
	assert.ErrorIs(t, located, cel.ErrExpressionCheck)

	data, err := json.Marshal(located)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"parse"`)
	assert.Contains(t, string(data), `"route":"font"`)
}

func TestEngine_Limits(t *testing.T) {
	t.Parallel()

	engine := cel.NewEngine(cel.WithMaxExpressionLength(16))
	_, err := engine.Compile(`descriptor.title == "` + strings.Repeat("x", 32) + `"`)
	require.ErrorIs(t, err, cel.ErrExpressionCheck)
	assert.Contains(t, err.Error(), "exceeds maximum")

	cheap := cel.NewEngine(cel.WithCostLimit(1))
	cond, err := cheap.Compile(`[1, 2, 3, 4, 5].all(x, x > 0 && descriptor.title != "")`)
	require.NoError(t, err)
	_, err = cond.Matches(testDescriptor())
	assert.ErrorIs(t, err, cel.ErrEvaluation)
}

func TestCondition_DynamicNonBool(t *testing.T) {
	t.Parallel()

	engine := cel.NewEngine()
	cond, err := engine.Compile(`descriptor.title`)
	require.NoError(t, err)

	_, err = cond.Matches(testDescriptor())
	assert.ErrorIs(t, err, cel.ErrInvalidResult)
}

func TestCondition_MissingAttribute(t *testing.T) {
	t.Parallel()

	engine := cel.NewEngine()
	cond, err := engine.Compile(`descriptor.nonexistent == "x"`)
	require.NoError(t, err)

	_, err = cond.Evaluate(map[string]any{})
	assert.ErrorIs(t, err, cel.ErrEvaluation)
}

func TestCondition_Concurrency(t *testing.T) {
	t.Parallel()

	engine := cel.NewEngine()
	cond, err := engine.Compile(`descriptor.size_bytes % 2 == 0`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			desc := testDescriptor()
			desc.SizeBytes = int64(i)
			got, err := cond.Matches(desc)
			assert.NoError(t, err)
			assert.Equal(t, i%2 == 0, got)
		}()
	}
	wg.Wait()
}
