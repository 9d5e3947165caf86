// Package events models the structured progress events the controller UI
// renders, and translates raw engine records into the controller's event
// hierarchy (playbook -> play -> task -> runner events).
package events

// Event type tags understood by the controller's log filter.
const (
	TypePlaybookStart = "playbook_on_start"
	TypePlayStart     = "playbook_on_play_start"
	TypeTaskStart     = "playbook_on_task_start"
	TypeRunnerOK      = "runner_on_ok"
	TypeRunnerFailed  = "runner_on_failed"
	TypeStats         = "playbook_on_stats"
	TypeVerbose       = "verbose"
)

// Event is one wire-ready progress event. UUID, Counter and the type tag are
// the minimum the controller UI needs to render a task line.
type Event struct {
	UUID       string         `json:"uuid"`
	ParentUUID string         `json:"parent_uuid,omitempty"`
	Counter    int            `json:"counter"`
	Type       string         `json:"event"`
	Created    string         `json:"created"`
	PID        int            `json:"pid"`
	JobID      int            `json:"job_id,omitempty"`
	EventData  map[string]any `json:"event_data"`

	// Stdout is human-readable text shown alongside the event. It travels
	// outside the envelope and is never part of the encoded payload.
	Stdout string `json:"-"`
}

// Record is one raw progress record pulled from an execution engine. The
// engine contract is key/value shaped; the typed fields are the keys this
// layer interprets, everything else rides along in Fields.
type Record struct {
	Type    string
	Module  string
	Host    string
	Success bool
	Changed bool
	Stdout  string
	Fields  map[string]any
}

// Record type tags produced by the reconciliation engine.
const (
	RecordModuleStart    = "module_start"
	RecordModuleComplete = "module_complete"
	RecordVerbose        = "verbose"
	RecordScriptComplete = "script_complete"
)

// HostStats is the per-host task tally reported in the terminal stats event.
type HostStats struct {
	OK      int `json:"ok"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Rescued int `json:"rescued"`
	Ignored int `json:"ignored"`
}
