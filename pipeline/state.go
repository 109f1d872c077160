// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package pipeline

import "github.com/stacklok/ocs-custodian/ocserr"

// State is the position of a run in the pipeline.
type State string

// Run states. A run moves strictly forward through the stages and ends in
// Completed, Failed or Cancelled.
const (
	StateParsing    State = "parsing"
	StateResolving  State = "resolving"
	StateRouting    State = "routing"
	StateFetching   State = "fetching"
	StateVerifying  State = "verifying"
	StateInstalling State = "installing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// span is the slice of [0, 1] a stage covers in the progress fraction.
type span struct {
	from, to float64
}

var spans = map[State]span{
	StateParsing:    {0, 0.05},
	StateResolving:  {0.05, 0.2},
	StateRouting:    {0.2, 0.25},
	StateFetching:   {0.25, 0.85},
	StateVerifying:  {0.85, 0.9},
	StateInstalling: {0.9, 1},
}

// at maps progress within a stage, in [0, 1], to the overall fraction.
func (s span) at(p float64) float64 {
	p = min(max(p, 0), 1)
	return s.from + (s.to-s.from)*p
}

// stage maps a pipeline state to the stage errors are attributed to.
func (s State) stage() ocserr.Stage {
	switch s {
	case StateParsing:
		return ocserr.StageParsing
	case StateResolving:
		return ocserr.StageResolving
	case StateRouting:
		return ocserr.StageRouting
	case StateFetching:
		return ocserr.StageFetching
	case StateVerifying:
		return ocserr.StageVerifying
	case StateInstalling:
		return ocserr.StageInstalling
	}
	return ""
}
