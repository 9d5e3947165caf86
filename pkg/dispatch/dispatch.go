package dispatch

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mdrun/mdrun/pkg/document"
	"github.com/mdrun/mdrun/pkg/events"
	"github.com/mdrun/mdrun/pkg/protocol"
	"github.com/mdrun/mdrun/pkg/telemetry"
)

// Exit codes returned to the controller. 0/1/2 carry the meanings the
// controller already interprets for playbook jobs; 3/4/5 distinguish adapter
// malfunction from job-logic failure. Values are stable.
const (
	ExitConverged         = 0
	ExitNotConverged      = 1
	ExitTaskFailures      = 2
	ExitMalformedDocument = 3
	ExitEncodingError     = 4
	ExitStreamWriteError  = 5
)

// State tracks the dispatcher through one job invocation.
type State string

const (
	StateStart      State = "start"
	StateClassified State = "classified"
	StateExecuting  State = "executing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Journal optionally records every emitted event. Append failures are logged,
// not fatal: the wire stream is the authoritative record.
type Journal interface {
	Append(ctx context.Context, ev events.Event) error
}

// Dispatcher runs one job: classify, execute, stream. It owns the output
// sink through its Writer for the lifetime of the job and performs no
// retries; all retry logic belongs to the engine behind Reconciler.
type Dispatcher struct {
	Reconciler Reconciler
	Scripts    ScriptRunner
	Writer     *protocol.Writer
	Journal    Journal
	Logger     zerolog.Logger
	Metrics    *telemetry.Metrics
	Tracer     *telemetry.Tracer

	Ident     string
	Inventory string
	ExtraVars map[string]any
	CheckMode bool
	Verbosity int

	state State
}

// Run drives the full state machine for one input document and returns the
// process exit code. The returned error carries detail for logging; the code
// alone is what the controller sees.
func (d *Dispatcher) Run(ctx context.Context, doc document.InputDocument) (int, error) {
	start := time.Now()
	d.setState(StateStart)

	ctx, span := d.tracer().Start(ctx, "job.run",
		attribute.String("playbook", doc.Path))
	defer span.End()

	_, classifySpan := d.tracer().Start(ctx, "job.classify")
	kind := document.Classify(doc)
	classifySpan.SetAttributes(attribute.String("kind", string(kind)))
	classifySpan.End()
	d.setState(StateClassified)
	d.Logger.Info().Str("playbook", doc.Path).Str("kind", string(kind)).Msg("Classified input document")
	d.Metrics.JobStarted(string(kind))

	execCtx, execSpan := d.tracer().Start(ctx, "job.execute",
		attribute.String("kind", string(kind)))
	var (
		code int
		err  error
	)
	switch kind {
	case document.KindLegacyScript:
		code, err = d.runScript(execCtx, doc)
	default:
		code, err = d.runDesiredState(execCtx, doc)
	}
	execSpan.End()

	if code == ExitConverged {
		d.setState(StateCompleted)
	} else {
		d.setState(StateFailed)
	}
	d.Metrics.JobCompleted(code, time.Since(start))
	return code, err
}

func (d *Dispatcher) runDesiredState(ctx context.Context, doc document.InputDocument) (int, error) {
	ds, err := document.ExtractDesiredState(doc)
	if err != nil {
		d.Logger.Error().Err(err).Str("playbook", doc.Path).Msg("Could not extract desired state")
		return ExitMalformedDocument, err
	}

	tr := events.NewTranslator(d.Ident, d.Verbosity)
	if code, err := d.emit(ctx, tr.PlaybookStart(doc.Path)); err != nil {
		return code, err
	}
	if code, err := d.emit(ctx, tr.PlayStart("Reconcile")); err != nil {
		return code, err
	}

	d.setState(StateExecuting)
	stream, err := d.Reconciler.Reconcile(ctx, Request{
		DesiredState: ds.Text,
		Inventory:    d.Inventory,
		ExtraVars:    d.ExtraVars,
		Verbosity:    d.Verbosity,
	})
	if err != nil {
		d.Logger.Error().Err(err).Msg("Reconciliation did not start")
		return ExitNotConverged, err
	}

	engineErr, code, err := d.pump(ctx, stream, tr)
	if err != nil {
		return code, err
	}

	// Stats are emitted even after a mid-stream engine failure so the
	// consumer sees everything that happened before the job stops.
	if code, err := d.emit(ctx, tr.Stats()); err != nil {
		return code, err
	}

	if engineErr != nil {
		d.Logger.Error().Err(engineErr).Msg("Reconciliation raised during event production")
		return ExitNotConverged, engineErr
	}

	out := stream.Outcome()
	switch {
	case out.Err != nil:
		d.Logger.Error().Err(out.Err).Msg("Reconciliation failed")
		return ExitNotConverged, out.Err
	case tr.HasFailures():
		return ExitTaskFailures, nil
	case out.Converged:
		return ExitConverged, nil
	default:
		return ExitNotConverged, nil
	}
}

func (d *Dispatcher) runScript(ctx context.Context, doc document.InputDocument) (int, error) {
	d.setState(StateExecuting)
	tr := events.NewTranslator(d.Ident, d.Verbosity)
	stream := newScriptStream(d.Scripts, Script{
		Source:    document.ExtractScript(doc),
		Path:      doc.Path,
		Inventory: d.Inventory,
		ExtraVars: d.ExtraVars,
		CheckMode: d.CheckMode,
	})

	engineErr, code, err := d.pump(ctx, stream, tr)
	if err != nil {
		return code, err
	}
	if engineErr != nil {
		d.Logger.Error().Err(engineErr).Str("playbook", doc.Path).Msg("Script execution failed")
		return ExitNotConverged, engineErr
	}
	return stream.Outcome().ExitCode, nil
}

// pump pulls records one at a time and pushes each translated event through
// encoder and writer before requesting the next. Events are never buffered,
// reordered or batched. engineErr is a failure raised by the execution path
// during event production; everything produced before it is already flushed.
// A non-nil err is an adapter error with code carrying its exit code.
func (d *Dispatcher) pump(ctx context.Context, stream EventStream, tr *events.Translator) (engineErr error, code int, err error) {
	for {
		rec, nextErr := stream.Next(ctx)
		if errors.Is(nextErr, io.EOF) {
			return nil, ExitConverged, nil
		}
		if nextErr != nil {
			return nextErr, ExitConverged, nil
		}
		for _, ev := range tr.Translate(rec) {
			if code, err := d.emit(ctx, ev); err != nil {
				return nil, code, err
			}
		}
	}
}

// emit encodes and writes one event, journaling it as a side effect.
func (d *Dispatcher) emit(ctx context.Context, ev events.Event) (int, error) {
	envelope, err := protocol.Encode(ev)
	if err != nil {
		d.Logger.Error().Err(err).Str("event", ev.Type).Msg("Event payload not serializable")
		return ExitEncodingError, err
	}
	if err := d.Writer.WriteEvent(envelope, ev.Stdout); err != nil {
		d.Logger.Error().Err(err).Str("event", ev.Type).Msg("Output sink failed")
		return ExitStreamWriteError, err
	}
	d.Metrics.EventEmitted(ev.Type, len(envelope))
	if d.Journal != nil {
		if err := d.Journal.Append(ctx, ev); err != nil {
			d.Logger.Warn().Err(err).Str("event", ev.UUID).Msg("Journal append failed")
		}
	}
	return ExitConverged, nil
}

func (d *Dispatcher) setState(s State) {
	d.Logger.Debug().Str("from", string(d.state)).Str("to", string(s)).Msg("Dispatcher state")
	d.state = s
}

func (d *Dispatcher) tracer() *telemetry.Tracer {
	if d.Tracer != nil {
		return d.Tracer
	}
	return telemetry.NoopTracer()
}
