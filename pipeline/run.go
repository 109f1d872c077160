// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stacklok/ocs-custodian/ocserr"
	"github.com/stacklok/ocs-custodian/record"
)

// watchBuffer is the number of events a slow watcher may fall behind before
// the oldest ones are dropped.
const watchBuffer = 16

// Outcome is the terminal result of a run.
type Outcome struct {
	State State
	// Record is the install record of a completed run.
	Record *record.Record
	// Reused is set when the run completed with an existing install.
	Reused bool
	// Err is the cause of a failed or cancelled run. It is an *ocserr.Error
	// carrying the stage the run stopped at.
	Err error
}

// Stage returns the stage a failed or cancelled run stopped at.
func (o *Outcome) Stage() ocserr.Stage {
	return ocserr.StageOf(o.Err)
}

type outcomeError struct {
	Kind    ocserr.Kind  `json:"kind"`
	Stage   ocserr.Stage `json:"stage,omitempty"`
	Message string       `json:"message"`
}

// MarshalJSON renders the outcome for front-ends.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	out := struct {
		State  State          `json:"state"`
		Record *record.Record `json:"record,omitempty"`
		Reused bool           `json:"reused,omitempty"`
		Error  *outcomeError  `json:"error,omitempty"`
	}{State: o.State, Record: o.Record, Reused: o.Reused}
	if o.Err != nil {
		out.Error = &outcomeError{Kind: ocserr.KindOf(o.Err), Stage: o.Stage(), Message: o.Err.Error()}
	}
	return json.Marshal(out)
}

// Event reports the progress of a run. The last event of every run carries
// its outcome.
type Event struct {
	RunID    string   `json:"run_id"`
	State    State    `json:"stage"`
	Fraction float64  `json:"fraction_complete"`
	Outcome  *Outcome `json:"outcome,omitempty"`
}

// Run is one pass of a link through the pipeline.
type Run struct {
	id      string
	link    string
	created time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	state    State
	fraction float64
	outcome  *Outcome
	watchers map[chan Event]struct{}
}

func newRun(id, link string, cancel context.CancelFunc, now time.Time) *Run {
	return &Run{
		id:       id,
		link:     link,
		created:  now,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    StateParsing,
		watchers: make(map[chan Event]struct{}),
	}
}

// ID returns the run id.
func (r *Run) ID() string {
	return r.id
}

// Link returns the link the run was submitted with.
func (r *Run) Link() string {
	return r.link
}

// Created returns the submission time.
func (r *Run) Created() time.Time {
	return r.created
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Outcome returns the terminal outcome, or nil while the run is in progress.
func (r *Run) Outcome() *Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// Wait blocks until the run ends or ctx is done.
func (r *Run) Wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-r.done:
		return r.Outcome(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel asks the run to stop. The run ends in Cancelled unless it reaches
// another terminal state first. Cancel affects every caller observing the run.
func (r *Run) Cancel() {
	r.cancel()
}

// Snapshot returns the current state of the run as an event.
func (r *Run) Snapshot() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eventLocked()
}

func (r *Run) eventLocked() Event {
	return Event{RunID: r.id, State: r.state, Fraction: r.fraction, Outcome: r.outcome}
}

// Watch streams the events of the run, starting with its current state. The
// channel is closed after the terminal event or when ctx is done. A watcher
// that falls behind loses its oldest pending events, never the terminal one.
func (r *Run) Watch(ctx context.Context) <-chan Event {
	ch := make(chan Event, watchBuffer)

	r.mu.Lock()
	ch <- r.eventLocked()
	if r.outcome != nil {
		close(ch)
		r.mu.Unlock()
		return ch
	}
	r.watchers[ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-r.done:
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.watchers[ch]; ok {
			delete(r.watchers, ch)
			close(ch)
		}
	}()
	return ch
}

// enter moves the run into state s at the start of its span. Moving
// backwards is ignored.
func (r *Run) enter(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome != nil {
		return
	}
	r.state = s
	r.fraction = max(r.fraction, spans[s].from)
	r.publishLocked()
}

// progress reports progress p in [0, 1] within the current stage. The
// fraction never decreases.
func (r *Run) progress(p float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome != nil {
		return
	}
	f := spans[r.state].at(p)
	if f <= r.fraction {
		return
	}
	r.fraction = f
	r.publishLocked()
}

// finish records the outcome and closes every watcher. Only the first call
// has an effect.
func (r *Run) finish(o *Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome != nil {
		return false
	}
	r.outcome = o
	r.state = o.State
	if o.State == StateCompleted {
		r.fraction = 1
	}
	r.publishLocked()
	for ch := range r.watchers {
		close(ch)
	}
	clear(r.watchers)
	close(r.done)
	return true
}

func (r *Run) publishLocked() {
	ev := r.eventLocked()
	for ch := range r.watchers {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Full: drop the oldest pending event to make room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
