package events

import (
	"testing"
)

func TestTranslatorHierarchy(t *testing.T) {
	t.Setenv("JOB_ID", "42")
	tr := NewTranslator("1", 0)

	pb := tr.PlaybookStart("site.yml")
	if pb.Type != TypePlaybookStart || pb.Counter != 1 {
		t.Fatalf("unexpected playbook event: %+v", pb)
	}
	if pb.UUID == "" || pb.ParentUUID != "" {
		t.Fatalf("playbook event should be the root: %+v", pb)
	}
	if pb.JobID != 42 {
		t.Errorf("JobID = %d, want 42", pb.JobID)
	}

	play := tr.PlayStart("Reconcile")
	if play.ParentUUID != pb.UUID {
		t.Errorf("play parent = %q, want playbook uuid %q", play.ParentUUID, pb.UUID)
	}

	evs := tr.Translate(Record{Type: RecordModuleStart, Module: "package"})
	if len(evs) != 1 || evs[0].Type != TypeTaskStart {
		t.Fatalf("module_start should become one task_start: %+v", evs)
	}
	task := evs[0]
	if task.ParentUUID != play.UUID {
		t.Errorf("task parent = %q, want play uuid %q", task.ParentUUID, play.UUID)
	}
	if task.EventData["task"] != "package" {
		t.Errorf("task name = %v", task.EventData["task"])
	}

	evs = tr.Translate(Record{Type: RecordModuleComplete, Module: "package", Host: "web1", Success: true, Changed: true})
	if len(evs) != 1 || evs[0].Type != TypeRunnerOK {
		t.Fatalf("module_complete should become runner_on_ok: %+v", evs)
	}
	if evs[0].ParentUUID != task.UUID {
		t.Errorf("runner parent = %q, want task uuid %q", evs[0].ParentUUID, task.UUID)
	}

	// Counters increase monotonically across the whole job.
	if evs[0].Counter != 4 {
		t.Errorf("counter = %d, want 4", evs[0].Counter)
	}
}

func TestTranslatorStats(t *testing.T) {
	tr := NewTranslator("1", 0)
	tr.PlaybookStart("site.yml")
	tr.PlayStart("Reconcile")

	tr.Translate(Record{Type: RecordModuleStart, Module: "file"})
	tr.Translate(Record{Type: RecordModuleComplete, Module: "file", Host: "web1", Success: true, Changed: true})
	tr.Translate(Record{Type: RecordModuleStart, Module: "service"})
	tr.Translate(Record{Type: RecordModuleComplete, Module: "service", Host: "web1", Success: false})
	tr.Translate(Record{Type: RecordModuleStart, Module: "package"})
	tr.Translate(Record{Type: RecordModuleComplete, Module: "package", Host: "db1", Success: true})

	if !tr.HasFailures() {
		t.Error("HasFailures() = false, want true")
	}

	stats := tr.Stats()
	if stats.Type != TypeStats {
		t.Fatalf("stats event type = %q", stats.Type)
	}
	tally, ok := stats.EventData["stats"].(map[string]HostStats)
	if !ok {
		t.Fatalf("stats payload missing: %+v", stats.EventData)
	}
	web1 := tally["web1"]
	if web1.OK != 1 || web1.Changed != 1 || web1.Failed != 1 {
		t.Errorf("web1 tally = %+v", web1)
	}
	db1 := tally["db1"]
	if db1.OK != 1 || db1.Changed != 0 || db1.Failed != 0 {
		t.Errorf("db1 tally = %+v", db1)
	}
}

func TestTranslatorVerboseSuppressed(t *testing.T) {
	tr := NewTranslator("1", 0)
	tr.PlaybookStart("site.yml")

	if evs := tr.Translate(Record{Type: RecordVerbose}); len(evs) != 0 {
		t.Errorf("quiet verbose record should be dropped at verbosity 0: %+v", evs)
	}
	if evs := tr.Translate(Record{Type: RecordVerbose, Stdout: "detail"}); len(evs) != 1 {
		t.Errorf("verbose record with text must pass through: %+v", evs)
	}
}
