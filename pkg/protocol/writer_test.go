package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/mdrun/mdrun/pkg/events"
)

// failAfter fails every write once n bytes went through.
type failAfter struct {
	buf   bytes.Buffer
	limit int
}

func (f *failAfter) Write(p []byte) (int, error) {
	if f.buf.Len()+len(p) > f.limit {
		return 0, fmt.Errorf("broken pipe")
	}
	return f.buf.Write(p)
}

func TestWriterPreservesOrder(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(&sink)

	const n = 10
	for i := 1; i <= n; i++ {
		ev := events.Event{
			UUID:      fmt.Sprintf("u-%d", i),
			Counter:   i,
			Type:      events.TypeVerbose,
			Created:   "2026-08-28T12:00:00Z",
			EventData: map[string]any{},
		}
		env, err := Encode(ev)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if err := w.WriteEvent(env, ""); err != nil {
			t.Fatalf("WriteEvent() error = %v", err)
		}
	}

	payloads, _, err := Decode(sink.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(payloads) != n {
		t.Fatalf("sink has %d envelopes, want %d", len(payloads), n)
	}
	for i, p := range payloads {
		if int(p["counter"].(float64)) != i+1 {
			t.Errorf("envelope %d has counter %v", i, p["counter"])
		}
	}
}

func TestWriterStdoutConvention(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(&sink)

	ev := events.Event{
		UUID:      "u-1",
		Counter:   1,
		Type:      events.TypeRunnerOK,
		Created:   "2026-08-28T12:00:00Z",
		EventData: map[string]any{},
	}
	env, err := Encode(ev)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := w.WriteEvent(env, "ok: [web1]"); err != nil {
		t.Fatalf("WriteEvent() error = %v", err)
	}

	// The envelope brackets the text, and a missing trailing newline is
	// supplied.
	payloads, text, err := Decode(sink.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("sink has %d envelopes, want envelope on both sides of text", len(payloads))
	}
	if string(text) != "ok: [web1]\n" {
		t.Errorf("text = %q, want %q", text, "ok: [web1]\n")
	}
}

func TestWriterFailureIsSticky(t *testing.T) {
	sink := &failAfter{limit: 10}
	w := NewWriter(sink)

	env, err := Encode(events.Event{
		UUID:      "u-1",
		Counter:   1,
		Type:      events.TypeVerbose,
		Created:   "2026-08-28T12:00:00Z",
		EventData: map[string]any{},
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if err := w.WriteEvent(env, ""); !errors.Is(err, ErrStreamWrite) {
		t.Fatalf("WriteEvent() error = %v, want ErrStreamWrite", err)
	}
	// Later writes are rejected without touching the sink.
	before := sink.buf.Len()
	if err := w.WriteEvent(env, ""); !errors.Is(err, ErrStreamWrite) {
		t.Fatalf("second WriteEvent() error = %v, want ErrStreamWrite", err)
	}
	if sink.buf.Len() != before {
		t.Error("writer touched the sink after a failure")
	}
}
