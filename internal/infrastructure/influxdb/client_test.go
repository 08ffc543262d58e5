package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/sensorlink/internal/infrastructure/config"
	"github.com/nerrad567/sensorlink/internal/registry"
	"github.com/nerrad567/sensorlink/internal/supervisor"
)

// fakeWriter captures points instead of sending them.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func tagsOf(p *write.Point) map[string]string {
	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	return tags
}

func fieldsOf(p *write.Point) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

func TestConnect_Disabled(t *testing.T) {
	c, err := Connect(config.InfluxDBConfig{Enabled: false}, "d1")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if c != nil {
		t.Error("Connect() returned non-nil client when disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:59999",
		Token:   "token",
		Org:     "org",
		Bucket:  "bucket",
	}, "d1")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteUpdate(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(w, "greenhouse")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.WriteUpdate(registry.Update{Topic: "home/pico/current_temperature", Slot: "out_temp", Value: 4.5, At: at})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != "slot_value" {
		t.Errorf("Name() = %q, want slot_value", p.Name())
	}
	tags := tagsOf(p)
	if tags["device_id"] != "greenhouse" || tags["slot"] != "out_temp" || tags["topic"] != "home/pico/current_temperature" {
		t.Errorf("tags = %v", tags)
	}
	if v := fieldsOf(p)["value"]; v != 4.5 {
		t.Errorf("value = %v, want 4.5", v)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}
}

func TestWriteUpdate_ZeroTimeUsesNow(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(w, "greenhouse")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	c.WriteUpdate(registry.Update{Slot: "x", Value: 1})

	if !w.points[0].Time().Equal(fixed) {
		t.Errorf("Time() = %v, want %v", w.points[0].Time(), fixed)
	}
}

func TestWriteUpdate_FromRegistryHook(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(w, "greenhouse")

	reg, err := registry.New([]registry.Binding{{Topic: "t/a", Slot: "x"}})
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	reg.SetOnUpdate(c.WriteUpdate)

	if err := reg.Dispatch("t/a", []byte("21.5")); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := reg.Dispatch("t/a", []byte("oops")); err == nil {
		t.Fatal("Dispatch() expected error for malformed payload")
	}

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1 (malformed payload not exported)", len(w.points))
	}
	if v := fieldsOf(w.points[0])["value"]; v != 21.5 {
		t.Errorf("value = %v, want 21.5", v)
	}
}

func TestRecordCycle(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(w, "greenhouse")

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := supervisor.CycleRecord{
		ID:       "c1",
		Started:  start,
		Ended:    start.Add(2 * time.Second),
		Reached:  supervisor.StateServing,
		Kind:     supervisor.FailureTransport,
		Messages: 7,
	}
	if err := c.RecordCycle(context.Background(), rec); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}

	p := w.points[0]
	if p.Name() != "supervisor_cycle" {
		t.Errorf("Name() = %q, want supervisor_cycle", p.Name())
	}
	tags := tagsOf(p)
	if tags["reached"] != "serving" || tags["failure"] != "transport" {
		t.Errorf("tags = %v", tags)
	}
	fields := fieldsOf(p)
	if fields["messages"] != int64(7) {
		t.Errorf("messages = %v (%T), want 7", fields["messages"], fields["messages"])
	}
	if fields["duration_ms"] != int64(2000) {
		t.Errorf("duration_ms = %v, want 2000", fields["duration_ms"])
	}
}

func TestRecordCycle_NoFailureTag(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(w, "greenhouse")

	_ = c.RecordCycle(context.Background(), supervisor.CycleRecord{Reached: supervisor.StateIdle}) //nolint:errcheck // never fails

	if got := tagsOf(w.points[0])["failure"]; got != "none" {
		t.Errorf("failure tag = %q, want none", got)
	}
}

func TestClose_StopsWrites(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(w, "greenhouse")

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1 on Close", w.flushes)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}

	c.WriteUpdate(registry.Update{Slot: "x", Value: 1})
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if len(w.points) != 0 || w.flushes != 1 {
		t.Errorf("points=%d flushes=%d after Close, want 0 and 1", len(w.points), w.flushes)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c := newClient(&fakeWriter{}, "greenhouse")

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	errs <- errors.New("422 unprocessable")
	close(errs)
	c.handleWriteErrors(errs)

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	default:
		t.Error("error callback not invoked")
	}
}
