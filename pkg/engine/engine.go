// Package engine adapts the external execution paths to the dispatch
// interfaces. Both engines are consumed as subprocesses speaking
// JSON-over-stdio: the adapter never looks inside their decision or retry
// logic, it only shapes what comes back.
package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/mdrun/mdrun/pkg/dispatch"
	"github.com/mdrun/mdrun/pkg/events"
)

// maxRecordBytes bounds one JSONL record from the engine.
const maxRecordBytes = 10 * 1024 * 1024

// CommandReconciler runs the reconciliation engine as a subprocess. The
// request is written to its stdin as one JSON object; progress records come
// back as JSON lines on its stdout, consumed lazily; its stderr passes
// through to ours.
type CommandReconciler struct {
	// Command is the argv of the engine binary.
	Command []string
	Logger  zerolog.Logger
}

// wireRequest is the JSON handed to the engine on stdin.
type wireRequest struct {
	DesiredState string         `json:"desired_state"`
	Inventory    string         `json:"inventory,omitempty"`
	ExtraVars    map[string]any `json:"extra_vars,omitempty"`
	Verbosity    int            `json:"verbosity,omitempty"`
}

// Reconcile starts the engine and returns its lazy record stream.
func (r *CommandReconciler) Reconcile(ctx context.Context, req dispatch.Request) (dispatch.EventStream, error) {
	if len(r.Command) == 0 {
		return nil, fmt.Errorf("engine: reconcile command not configured")
	}

	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("engine: start %s: %w", r.Command[0], err)
	}
	r.Logger.Debug().Str("command", r.Command[0]).Int("pid", cmd.Process.Pid).Msg("Reconcile engine started")

	go func() {
		enc := json.NewEncoder(stdin)
		if err := enc.Encode(wireRequest{
			DesiredState: req.DesiredState,
			Inventory:    req.Inventory,
			ExtraVars:    req.ExtraVars,
			Verbosity:    req.Verbosity,
		}); err != nil {
			r.Logger.Warn().Err(err).Msg("Failed to write reconcile request")
		}
		_ = stdin.Close()
	}()

	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, maxRecordBytes)
	scanner.Buffer(buf, maxRecordBytes)

	return &processStream{cmd: cmd, scanner: scanner}, nil
}

// processStream pulls JSONL records from a running engine process.
type processStream struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner

	sawResult bool
	outcome   dispatch.Outcome
}

// Next returns the next engine record, blocking until the process produces
// one. io.EOF ends the stream; the process is reaped before EOF is returned.
func (s *processStream) Next(ctx context.Context) (events.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return events.Record{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				_ = s.cmd.Wait()
				return events.Record{}, fmt.Errorf("engine: read records: %w", err)
			}
			return events.Record{}, s.finish()
		}

		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			return events.Record{}, fmt.Errorf("engine: malformed record: %w", err)
		}

		// The terminal result line is part of the outcome, not an event.
		if typ, _ := raw["event"].(string); typ == "result" {
			s.sawResult = true
			converged, _ := raw["converged"].(bool)
			s.outcome = dispatch.Outcome{Converged: converged}
			continue
		}

		return toRecord(raw), nil
	}
}

// finish reaps the process and settles the outcome, returning io.EOF on a
// clean end.
func (s *processStream) finish() error {
	err := s.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("engine: exited with code %d", exitErr.ExitCode())
		}
		if !s.sawResult {
			s.outcome = dispatch.Outcome{Err: err}
		}
	} else if !s.sawResult {
		s.outcome = dispatch.Outcome{Err: fmt.Errorf("engine: stream ended without a result record")}
	}
	return io.EOF
}

func (s *processStream) Outcome() dispatch.Outcome {
	return s.outcome
}

// toRecord lifts the keys this layer interprets out of a raw engine record;
// everything else rides along untouched in Fields.
func toRecord(raw map[string]any) events.Record {
	rec := events.Record{Fields: raw}
	rec.Type, _ = raw["event"].(string)
	rec.Module, _ = raw["module"].(string)
	rec.Host, _ = raw["host"].(string)
	rec.Success, _ = raw["success"].(bool)
	rec.Changed, _ = raw["changed"].(bool)
	rec.Stdout, _ = raw["stdout"].(string)
	delete(raw, "stdout")
	return rec
}

// CommandScriptRunner runs a legacy script through the external script
// runner binary and reports its exit code.
type CommandScriptRunner struct {
	// Command is the argv prefix of the runner binary.
	Command []string
	Logger  zerolog.Logger
}

// Run invokes the legacy runner against the script file. The script text
// itself travels by path, unchanged, exactly as the controller laid it down.
func (r *CommandScriptRunner) Run(ctx context.Context, script dispatch.Script) (int, error) {
	if len(r.Command) == 0 {
		return 1, fmt.Errorf("engine: script runner command not configured")
	}

	args := append([]string(nil), r.Command[1:]...)
	if script.Inventory != "" {
		args = append(args, "--inventory", script.Inventory)
	}
	if len(script.ExtraVars) > 0 {
		ev, err := json.Marshal(script.ExtraVars)
		if err != nil {
			return 1, fmt.Errorf("engine: marshal extra vars: %w", err)
		}
		args = append(args, "--extra-vars", string(ev))
	}
	if script.CheckMode {
		args = append(args, "--check")
	}
	args = append(args, script.Path)

	cmd := exec.CommandContext(ctx, r.Command[0], args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	r.Logger.Debug().Str("command", r.Command[0]).Str("script", script.Path).Msg("Running legacy script")
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 1, fmt.Errorf("engine: run script: %w", err)
}
