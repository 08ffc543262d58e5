package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/sensorlink/internal/infrastructure/database"
	"github.com/nerrad567/sensorlink/internal/supervisor"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Query limits.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one stored cycle.
type Entry struct {
	ID        string
	DeviceID  string
	StartedAt time.Time
	EndedAt   time.Time
	Reached   string
	Kind      supervisor.FailureKind
	Error     string
	Messages  int
}

// Journal records cycles for one device.
type Journal struct {
	db         *database.DB
	deviceID   string
	maxRecords int
}

// New creates a Journal. maxRecords <= 0 keeps every record.
func New(db *database.DB, deviceID string, maxRecords int) (*Journal, error) {
	if db == nil {
		return nil, ErrNoDatabase
	}
	return &Journal{db: db, deviceID: deviceID, maxRecords: maxRecords}, nil
}

// RecordCycle inserts rec and prunes the oldest rows beyond maxRecords.
// It implements supervisor.Recorder.
func (j *Journal) RecordCycle(ctx context.Context, rec supervisor.CycleRecord) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO cycle_journal (id, device_id, started_at, ended_at, reached, failure_kind, error, messages)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, j.deviceID,
		rec.Started.UTC().Format(timeLayout),
		rec.Ended.UTC().Format(timeLayout),
		rec.Reached.String(), string(rec.Kind), rec.Error, rec.Messages,
	)
	if err != nil {
		return fmt.Errorf("inserting cycle record: %w", err)
	}

	if j.maxRecords <= 0 {
		return nil
	}
	_, err = j.db.ExecContext(ctx,
		`DELETE FROM cycle_journal WHERE device_id = ? AND id NOT IN (
			SELECT id FROM cycle_journal WHERE device_id = ?
			ORDER BY started_at DESC, rowid DESC LIMIT ?
		)`,
		j.deviceID, j.deviceID, j.maxRecords,
	)
	if err != nil {
		return fmt.Errorf("pruning cycle journal: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
// limit <= 0 means 50; values above 500 are clamped.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, device_id, started_at, ended_at, reached, failure_kind, error, messages
		 FROM cycle_journal WHERE device_id = ?
		 ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		j.deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cycle journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var started, ended, kind string
		if err := rows.Scan(&e.ID, &e.DeviceID, &started, &ended, &e.Reached, &kind, &e.Error, &e.Messages); err != nil {
			return nil, fmt.Errorf("scanning cycle record: %w", err)
		}
		if e.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parsing started_at %q: %w", started, err)
		}
		if e.EndedAt, err = time.Parse(timeLayout, ended); err != nil {
			return nil, fmt.Errorf("parsing ended_at %q: %w", ended, err)
		}
		e.Kind = supervisor.FailureKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cycle journal: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored cycles for the device.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cycle_journal WHERE device_id = ?", j.deviceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting cycle journal: %w", err)
	}
	return n, nil
}
