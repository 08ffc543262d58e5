package journal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/sensorlink/internal/infrastructure/database"
	"github.com/nerrad567/sensorlink/internal/supervisor"
	"github.com/nerrad567/sensorlink/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func newTestJournal(t *testing.T, db *database.DB, device string, maxRecords int) *Journal {
	t.Helper()
	j, err := New(db, device, maxRecords)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return j
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(i int, kind supervisor.FailureKind) supervisor.CycleRecord {
	start := base.Add(time.Duration(i) * time.Minute)
	return supervisor.CycleRecord{
		ID:       fmt.Sprintf("cycle-%02d", i),
		Started:  start,
		Ended:    start.Add(1500 * time.Millisecond),
		Reached:  supervisor.StateServing,
		Kind:     kind,
		Error:    "boom",
		Messages: i,
	}
}

func TestNew_NilDatabase(t *testing.T) {
	if _, err := New(nil, "d1", 0); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("New(nil) error = %v, want ErrNoDatabase", err)
	}
}

func TestRecordCycle_RoundTrip(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t, openTestDB(t), "greenhouse", 0)

	rec := record(1, supervisor.FailureTransport)
	if err := j.RecordCycle(ctx, rec); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}

	got := entries[0]
	if got.ID != rec.ID || got.DeviceID != "greenhouse" {
		t.Errorf("entry = %+v", got)
	}
	if !got.StartedAt.Equal(rec.Started) || !got.EndedAt.Equal(rec.Ended) {
		t.Errorf("times = %v..%v, want %v..%v", got.StartedAt, got.EndedAt, rec.Started, rec.Ended)
	}
	if got.Reached != "serving" {
		t.Errorf("Reached = %q, want serving", got.Reached)
	}
	if got.Kind != supervisor.FailureTransport {
		t.Errorf("Kind = %q, want transport", got.Kind)
	}
	if got.Messages != 1 || got.Error != "boom" {
		t.Errorf("Messages/Error = %d/%q", got.Messages, got.Error)
	}
}

func TestRecordCycle_DuplicateID(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t, openTestDB(t), "greenhouse", 0)

	rec := record(1, supervisor.FailureTransport)
	if err := j.RecordCycle(ctx, rec); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}
	if err := j.RecordCycle(ctx, rec); err == nil {
		t.Error("RecordCycle() with duplicate ID expected error, got nil")
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t, openTestDB(t), "greenhouse", 0)

	for i := 1; i <= 5; i++ {
		if err := j.RecordCycle(ctx, record(i, supervisor.FailureLinkAssociation)); err != nil {
			t.Fatalf("RecordCycle(%d) error = %v", i, err)
		}
	}

	entries, err := j.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	want := []string{"cycle-05", "cycle-04", "cycle-03"}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].ID != w {
			t.Errorf("entries[%d].ID = %q, want %q", i, entries[i].ID, w)
		}
	}
}

func TestRecent_EmptyJournal(t *testing.T) {
	j := newTestJournal(t, openTestDB(t), "greenhouse", 0)

	entries, err := j.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("Recent() = %v, want empty non-nil slice", entries)
	}
}

func TestRecordCycle_PrunesOldest(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t, openTestDB(t), "greenhouse", 3)

	for i := 1; i <= 6; i++ {
		if err := j.RecordCycle(ctx, record(i, supervisor.FailureTransport)); err != nil {
			t.Fatalf("RecordCycle(%d) error = %v", i, err)
		}
	}

	n, err := j.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if entries[len(entries)-1].ID != "cycle-04" {
		t.Errorf("oldest kept = %q, want cycle-04", entries[len(entries)-1].ID)
	}
}

func TestJournal_DevicesAreSeparate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	a := newTestJournal(t, db, "a", 1)
	b := newTestJournal(t, db, "b", 1)

	if err := a.RecordCycle(ctx, record(1, supervisor.FailureTransport)); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}
	if err := b.RecordCycle(ctx, record(2, supervisor.FailureTransport)); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}

	for name, j := range map[string]*Journal{"a": a, "b": b} {
		n, err := j.Count(ctx)
		if err != nil {
			t.Fatalf("Count(%s) error = %v", name, err)
		}
		if n != 1 {
			t.Errorf("Count(%s) = %d, want 1", name, n)
		}
	}
}

func TestJournal_ImplementsRecorder(t *testing.T) {
	var _ supervisor.Recorder = (*Journal)(nil)
}
