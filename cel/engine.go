// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cel compiles and evaluates CEL conditions over content descriptors.
package cel

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/stacklok/ocs-custodian/content"
)

const (
	// DefaultMaxExpressionLength is the maximum allowed length for a condition.
	DefaultMaxExpressionLength = 4096

	// DefaultCostLimit is the default runtime cost limit for condition evaluation.
	DefaultCostLimit = 100000

	// DescriptorVariable is the name under which descriptor attributes are
	// exposed to conditions.
	DescriptorVariable = "descriptor"
)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxExpressionLength sets the maximum allowed length for conditions.
func WithMaxExpressionLength(maxLen int) Option {
	return func(e *Engine) {
		e.maxExpressionLength = maxLen
	}
}

// WithCostLimit sets the runtime cost limit for condition evaluation.
func WithCostLimit(limit uint64) Option {
	return func(e *Engine) {
		e.costLimit = limit
	}
}

// Engine compiles boolean conditions over descriptor attributes, for example
//
//	descriptor.install_type == "gnome_shell_extensions"
//	descriptor.size_bytes < 50000000 && descriptor.file_name.endsWith(".ttf")
//
// It is safe for concurrent use from multiple goroutines.
type Engine struct {
	once                sync.Once
	env                 *cel.Env
	envErr              error
	maxExpressionLength int
	costLimit           uint64
}

// NewEngine creates a condition engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		maxExpressionLength: DefaultMaxExpressionLength,
		costLimit:           DefaultCostLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// getEnv returns the CEL environment, creating it lazily on first access.
func (e *Engine) getEnv() (*cel.Env, error) {
	e.once.Do(func() {
		e.env, e.envErr = cel.NewEnv(
			cel.Variable(DescriptorVariable, cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return e.env, e.envErr
}

// Condition is a compiled condition ready for evaluation.
type Condition struct {
	source  string
	program cel.Program
}

// Source returns the original condition source string.
func (c *Condition) Source() string {
	return c.source
}

// Compile parses, type checks and compiles a condition. The expression must
// produce a boolean, or a dynamic value that is checked at evaluation time.
//
// Syntax errors, type errors and non-boolean results are reported as a
// *ConditionError.
func (e *Engine) Compile(expr string) (*Condition, error) {
	checked, env, err := e.check(expr)
	if err != nil {
		return nil, err
	}

	program, err := env.Program(checked, cel.CostLimit(e.costLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to create program for condition %q: %w", expr, err)
	}

	return &Condition{source: expr, program: program}, nil
}

// Check validates a condition without creating a program. It is used to
// validate configuration before any content is routed.
func (e *Engine) Check(expr string) error {
	_, _, err := e.check(expr)
	return err
}

func (e *Engine) check(expr string) (*cel.Ast, *cel.Env, error) {
	if len(expr) > e.maxExpressionLength {
		return nil, nil, fmt.Errorf("%w: condition length %d exceeds maximum of %d",
			ErrExpressionCheck, len(expr), e.maxExpressionLength)
	}

	env, err := e.getEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get CEL environment: %w", err)
	}

	parsed, issues := env.Parse(expr)
	if issues.Err() != nil {
		return nil, nil, issuesError(PhaseParse, expr, issues)
	}

	checked, issues := env.Check(parsed)
	if issues.Err() != nil {
		return nil, nil, issuesError(PhaseCheck, expr, issues)
	}

	out := checked.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, nil, resultTypeError(expr, out.String())
	}

	return checked, env, nil
}

// Matches evaluates the condition against the descriptor's attributes.
func (c *Condition) Matches(desc *content.Descriptor) (bool, error) {
	return c.Evaluate(desc.Attributes())
}

// Evaluate evaluates the condition against raw descriptor attributes.
func (c *Condition) Evaluate(attributes map[string]any) (bool, error) {
	out, _, err := c.program.Eval(map[string]any{DescriptorVariable: attributes})
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrEvaluation, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: expected bool, got %T", ErrInvalidResult, out.Value())
	}
	return result, nil
}
