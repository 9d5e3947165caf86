package stores

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mdrun/mdrun/pkg/events"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	j, err := Open(context.Background(), Config{Path: path, JobID: "job-1"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalAppendAndList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	evs := []events.Event{
		{
			UUID:      "uuid-1",
			Counter:   1,
			Type:      events.TypePlaybookStart,
			Created:   "2026-08-28T12:00:00Z",
			EventData: map[string]any{"playbook": "site.yml"},
		},
		{
			UUID:       "uuid-2",
			ParentUUID: "uuid-1",
			Counter:    2,
			Type:       events.TypeRunnerOK,
			Created:    "2026-08-28T12:00:01Z",
			Stdout:     "ok: [web1]",
			EventData:  map[string]any{"host": "web1"},
		},
	}
	for _, ev := range evs {
		if err := j.Append(ctx, ev); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, err := j.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if entries[0].UUID != "uuid-1" || entries[1].UUID != "uuid-2" {
		t.Errorf("entries out of order: %+v", entries)
	}
	if entries[1].ParentUUID != "uuid-1" {
		t.Errorf("parent uuid = %q, want uuid-1", entries[1].ParentUUID)
	}
	if entries[1].Stdout != "ok: [web1]" {
		t.Errorf("stdout = %q", entries[1].Stdout)
	}
	if entries[0].EventData["playbook"] != "site.yml" {
		t.Errorf("event data = %+v", entries[0].EventData)
	}
}

func TestJournalRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("Open() without a path should fail")
	}
}
