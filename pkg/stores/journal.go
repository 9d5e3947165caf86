// Package stores persists the events emitted during a job so the run can be
// inspected after the fact, independent of what the controller captured from
// the wire. The wire stream stays authoritative; the journal is a local
// artifact.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/mdrun/mdrun/pkg/events"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal records emitted events for one job in a SQLite database.
type Journal struct {
	db    *sql.DB
	path  string
	jobID string
}

// Config holds journal configuration.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// JobID scopes this invocation's rows. Typically the playbook start
	// event UUID or the controller's job id.
	JobID string
}

// Open opens (creating if needed) the journal database and runs migrations.
func Open(ctx context.Context, cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	j := &Journal{db: db, path: cfg.Path, jobID: cfg.JobID}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func (j *Journal) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Append records one emitted event.
func (j *Journal) Append(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `
		INSERT INTO job_events (job_id, counter, uuid, parent_uuid, event, created, stdout, event_data, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = j.db.ExecContext(ctx, query,
		j.jobID,
		ev.Counter,
		ev.UUID,
		ev.ParentUUID,
		ev.Type,
		ev.Created,
		ev.Stdout,
		string(data),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// JournalEntry is one recorded event row.
type JournalEntry struct {
	JobID      string
	Counter    int
	UUID       string
	ParentUUID string
	Event      string
	Created    string
	Stdout     string
	EventData  map[string]any
}

// List returns the recorded events for the journal's job in emission order.
func (j *Journal) List(ctx context.Context) ([]JournalEntry, error) {
	query := `
		SELECT job_id, counter, uuid, parent_uuid, event, created, stdout, event_data
		FROM job_events
		WHERE job_id = ?
		ORDER BY counter ASC
	`
	rows, err := j.db.QueryContext(ctx, query, j.jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e    JournalEntry
			data string
		)
		if err := rows.Scan(&e.JobID, &e.Counter, &e.UUID, &e.ParentUUID, &e.Event, &e.Created, &e.Stdout, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if data != "" {
			if err := json.Unmarshal([]byte(data), &e.EventData); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return entries, nil
}
