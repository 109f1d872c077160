// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

var (
	// ErrExpressionCheck is returned when a condition cannot be compiled.
	ErrExpressionCheck = errors.New("condition check failed")

	// ErrEvaluation is returned when condition evaluation fails.
	ErrEvaluation = errors.New("condition evaluation failed")

	// ErrInvalidResult is returned when a condition yields something other than a bool.
	ErrInvalidResult = errors.New("condition returned invalid result type")
)

// Phase is the compilation step that rejected a condition.
type Phase string

// Phases of compilation.
const (
	PhaseParse  Phase = "parse"
	PhaseCheck  Phase = "check"
	PhaseResult Phase = "result"
)

// Issue is one problem found in a condition. Line and Column are zero when
// the problem has no position.
type Issue struct {
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Line == 0 {
		return i.Message
	}
	return fmt.Sprintf("%d:%d: %s", i.Line, i.Column, i.Message)
}

// ConditionError reports a condition that cannot be compiled. Route and
// Candidate locate the condition in a routing table once the router has
// attached them with At; they are empty for conditions compiled directly.
type ConditionError struct {
	Phase     Phase   `json:"phase"`
	Source    string  `json:"source"`
	Route     string  `json:"route,omitempty"`
	Candidate int     `json:"candidate,omitempty"`
	Issues    []Issue `json:"issues"`
}

func (e *ConditionError) Error() string {
	var b strings.Builder
	if e.Route != "" {
		fmt.Fprintf(&b, "route %s candidate %d: ", e.Route, e.Candidate)
	}
	fmt.Fprintf(&b, "condition %s error in %q", e.Phase, e.Source)
	for i, issue := range e.Issues {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(issue.String())
	}
	return b.String()
}

// Unwrap makes every ConditionError match ErrExpressionCheck.
func (*ConditionError) Unwrap() error {
	return ErrExpressionCheck
}

// At returns a copy of e located at the given route and candidate index.
func (e *ConditionError) At(route string, candidate int) *ConditionError {
	located := *e
	located.Route = route
	located.Candidate = candidate
	return &located
}

func issuesError(phase Phase, source string, issues *cel.Issues) *ConditionError {
	out := &ConditionError{Phase: phase, Source: source}
	for _, err := range issues.Errors() {
		out.Issues = append(out.Issues, Issue{
			Line:    err.Location.Line(),
			Column:  err.Location.Column(),
			Message: err.Message,
		})
	}
	return out
}

func resultTypeError(source, got string) *ConditionError {
	return &ConditionError{
		Phase:  PhaseResult,
		Source: source,
		Issues: []Issue{{Message: "condition must evaluate to bool, got " + got}},
	}
}
