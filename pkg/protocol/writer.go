package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrStreamWrite indicates the output sink became unusable mid-stream. Fatal
// and not retryable: the consumer side has stopped listening. Envelopes
// already flushed remain the authoritative partial record.
var ErrStreamWrite = errors.New("protocol: stream write failed")

// Writer owns the output sink for one job. It writes envelopes in arrival
// order and flushes after every event so a tailing consumer sees progress
// live. Single writer per sink; any concurrent producers must serialize
// before this point.
type Writer struct {
	sink    io.Writer
	flusher flusher
	failed  error
}

type flusher interface {
	Flush() error
}

// NewWriter wraps the sink. If the sink buffers (exposes Flush), the writer
// flushes it after each event.
func NewWriter(sink io.Writer) *Writer {
	w := &Writer{sink: sink}
	if f, ok := sink.(flusher); ok {
		w.flusher = f
	}
	return w
}

// WriteEvent writes one encoded envelope, the event's human-readable text if
// any, and the envelope again. The controller's filter needs the event data
// on both sides of the raw text to attribute it. The whole group is flushed
// before returning.
func (w *Writer) WriteEvent(envelope []byte, stdout string) error {
	if w.failed != nil {
		return w.failed
	}
	if err := w.write(envelope); err != nil {
		return err
	}
	if stdout != "" {
		if err := w.write([]byte(stdout)); err != nil {
			return err
		}
		if !strings.HasSuffix(stdout, "\n") {
			if err := w.write([]byte("\n")); err != nil {
				return err
			}
		}
		if err := w.write(envelope); err != nil {
			return err
		}
	}
	return w.flush()
}

func (w *Writer) write(p []byte) error {
	if _, err := w.sink.Write(p); err != nil {
		w.failed = fmt.Errorf("%w: %v", ErrStreamWrite, err)
		return w.failed
	}
	return nil
}

func (w *Writer) flush() error {
	if w.flusher == nil {
		return nil
	}
	if err := w.flusher.Flush(); err != nil {
		w.failed = fmt.Errorf("%w: %v", ErrStreamWrite, err)
		return w.failed
	}
	return nil
}
