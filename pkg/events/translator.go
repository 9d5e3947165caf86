package events

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Translator turns raw engine records into controller events. It owns the
// per-job event counter, the UUID hierarchy and the per-host stats tally.
// Single job, single goroutine; not safe for concurrent use.
type Translator struct {
	ident     string
	verbosity int
	pid       int
	jobID     int

	counter      int
	playbookUUID string
	playUUID     string
	taskUUID     string

	stats map[string]*HostStats

	now func() time.Time
}

// NewTranslator creates a translator for one job invocation. The job id is
// picked up from the JOB_ID environment variable the controller injects, if
// present.
func NewTranslator(ident string, verbosity int) *Translator {
	jobID := 0
	if v := os.Getenv("JOB_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			jobID = n
		}
	}
	return &Translator{
		ident:     ident,
		verbosity: verbosity,
		pid:       os.Getpid(),
		jobID:     jobID,
		stats:     make(map[string]*HostStats),
		now:       time.Now,
	}
}

func (t *Translator) next(eventType, parent string, data map[string]any) Event {
	t.counter++
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		UUID:       uuid.NewString(),
		ParentUUID: parent,
		Counter:    t.counter,
		Type:       eventType,
		Created:    t.now().UTC().Format(time.RFC3339Nano),
		PID:        t.pid,
		JobID:      t.jobID,
		EventData:  data,
	}
}

// PlaybookStart emits the root event of the job hierarchy.
func (t *Translator) PlaybookStart(name string) Event {
	ev := t.next(TypePlaybookStart, "", map[string]any{
		"playbook": name,
		"ident":    t.ident,
	})
	t.playbookUUID = ev.UUID
	return ev
}

// PlayStart emits the play event under the playbook.
func (t *Translator) PlayStart(name string) Event {
	ev := t.next(TypePlayStart, t.playbookUUID, map[string]any{
		"play": name,
	})
	ev.Stdout = "\nPLAY [" + name + "] " + banner(len(name)+7)
	t.playUUID = ev.UUID
	return ev
}

// TaskStart emits the task event under the current play and remembers its
// UUID so that runner events thread under it.
func (t *Translator) TaskStart(name, action string) Event {
	ev := t.next(TypeTaskStart, t.playUUID, map[string]any{
		"task":   name,
		"action": action,
	})
	ev.Stdout = "\nTASK [" + name + "] " + banner(len(name)+7)
	t.taskUUID = ev.UUID
	return ev
}

// Translate converts one engine record into zero or more controller events,
// in emission order, updating the stats tally as it goes.
func (t *Translator) Translate(rec Record) []Event {
	switch rec.Type {
	case RecordModuleStart:
		module := rec.Module
		if module == "" {
			module = "unknown"
		}
		return []Event{t.TaskStart(module, module)}

	case RecordModuleComplete:
		host := rec.Host
		if host == "" {
			host = "localhost"
		}
		s := t.hostStats(host)
		data := map[string]any{
			"host":    host,
			"task":    rec.Module,
			"changed": rec.Changed,
			"res":     rec.Fields,
		}
		if rec.Success {
			s.OK++
			status := "ok"
			if rec.Changed {
				s.Changed++
				status = "changed"
			}
			ev := t.next(TypeRunnerOK, t.taskUUID, data)
			ev.Stdout = status + ": [" + host + "]"
			return []Event{ev}
		}
		s.Failed++
		s.Ignored++
		ev := t.next(TypeRunnerFailed, t.taskUUID, data)
		ev.Stdout = "fatal: [" + host + "]: FAILED!"
		if rec.Stdout != "" {
			ev.Stdout += " => " + rec.Stdout
		}
		return []Event{ev}

	case RecordVerbose:
		if t.verbosity == 0 && rec.Stdout == "" {
			return nil
		}
		ev := t.next(TypeVerbose, t.playbookUUID, rec.Fields)
		ev.Stdout = rec.Stdout
		return []Event{ev}

	case RecordScriptComplete:
		ev := t.next(TypeVerbose, t.playbookUUID, rec.Fields)
		ev.Stdout = rec.Stdout
		return []Event{ev}
	}

	// Unknown records are forwarded verbatim rather than dropped so the
	// journal keeps a complete trace.
	ev := t.next(TypeVerbose, t.playbookUUID, rec.Fields)
	ev.Stdout = rec.Stdout
	return []Event{ev}
}

// Stats emits the terminal stats event carrying the per-host tally.
func (t *Translator) Stats() Event {
	tally := make(map[string]HostStats, len(t.stats))
	for host, s := range t.stats {
		tally[host] = *s
	}
	return t.next(TypeStats, t.playbookUUID, map[string]any{
		"stats": tally,
	})
}

// HasFailures reports whether any host tallied a failed task.
func (t *Translator) HasFailures() bool {
	for _, s := range t.stats {
		if s.Failed > 0 {
			return true
		}
	}
	return false
}

func (t *Translator) hostStats(host string) *HostStats {
	s, ok := t.stats[host]
	if !ok {
		s = &HostStats{}
		t.stats[host] = s
	}
	return s
}

func banner(used int) string {
	const width = 79
	n := width - used
	if n < 3 {
		n = 3
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = '*'
	}
	return string(b)
}
