// Package dispatch orchestrates one job invocation: classify the input
// document, drive the matching execution path, and push every progress event
// through the envelope encoder and stream writer in arrival order.
package dispatch

import (
	"context"
	"fmt"
	"io"

	"github.com/mdrun/mdrun/pkg/events"
)

// Outcome is the terminal result of an execution path, available once its
// event stream is exhausted.
type Outcome struct {
	Converged bool
	ExitCode  int
	Err       error
}

// EventStream is the pull-based sequence of progress records an execution
// path produces. Next blocks until the next record is available and returns
// io.EOF once the sequence is exhausted; only then is Outcome meaningful.
type EventStream interface {
	Next(ctx context.Context) (events.Record, error)
	Outcome() Outcome
}

// Request carries the desired-state text and job parameters into the
// reconciliation engine.
type Request struct {
	DesiredState string
	Inventory    string
	ExtraVars    map[string]any
	Verbosity    int
}

// Reconciler is the external observe/decide/execute loop. This layer treats
// it as a black box producing a finite or unbounded record sequence; any
// retry or backoff behavior lives behind this interface.
type Reconciler interface {
	Reconcile(ctx context.Context, req Request) (EventStream, error)
}

// Script carries a legacy imperative script into its execution path.
type Script struct {
	Source    string
	Path      string
	Inventory string
	ExtraVars map[string]any
	CheckMode bool
}

// ScriptRunner is the external legacy execution path. It reports a single
// exit code rather than a fine-grained event sequence.
type ScriptRunner interface {
	Run(ctx context.Context, script Script) (int, error)
}

// scriptStream wraps a ScriptRunner's single exit code as a one-event (or,
// on runner error, zero-event) stream so both paths feed the same pump.
type scriptStream struct {
	runner ScriptRunner
	script Script

	done    bool
	outcome Outcome
}

func newScriptStream(runner ScriptRunner, script Script) *scriptStream {
	return &scriptStream{runner: runner, script: script}
}

func (s *scriptStream) Next(ctx context.Context) (events.Record, error) {
	if s.done {
		return events.Record{}, io.EOF
	}
	s.done = true

	rc, err := s.runner.Run(ctx, s.script)
	if err != nil {
		s.outcome = Outcome{ExitCode: 1, Err: err}
		return events.Record{}, err
	}
	s.outcome = Outcome{Converged: rc == 0, ExitCode: rc}

	rec := events.Record{
		Type:   events.RecordScriptComplete,
		Stdout: fmt.Sprintf("script finished: rc=%d", rc),
		Fields: map[string]any{"rc": rc, "path": s.script.Path},
	}
	return rec, nil
}

func (s *scriptStream) Outcome() Outcome {
	return s.outcome
}
