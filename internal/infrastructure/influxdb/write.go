package influxdb

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/sensorlink/internal/registry"
	"github.com/nerrad567/sensorlink/internal/supervisor"
)

// Measurement names.
const (
	measurementSlot  = "slot_value"
	measurementCycle = "supervisor_cycle"
)

// WriteUpdate writes one slot update. It has the signature expected by
// registry.SetOnUpdate and never blocks.
//
// Parameters:
//   - u: The accepted update; its slot and topic become tags
func (c *Client) WriteUpdate(u registry.Update) {
	if !c.IsConnected() {
		return
	}

	at := u.At
	if at.IsZero() {
		at = c.now()
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementSlot,
		map[string]string{
			"device_id": c.deviceID,
			"slot":      u.Slot,
			"topic":     u.Topic,
		},
		map[string]interface{}{
			"value": u.Value,
		},
		at,
	))
}

// RecordCycle writes a cycle summary point. It implements
// supervisor.Recorder; the write is queued, so it never returns an error.
//
// Parameters:
//   - rec: The finished cycle; its reached phase and failure kind become tags
//
// Returns:
//   - error: Always nil
func (c *Client) RecordCycle(_ context.Context, rec supervisor.CycleRecord) error {
	if !c.IsConnected() {
		return nil
	}

	kind := string(rec.Kind)
	if kind == "" {
		kind = "none"
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementCycle,
		map[string]string{
			"device_id": c.deviceID,
			"reached":   rec.Reached.String(),
			"failure":   kind,
		},
		map[string]interface{}{
			"messages":    rec.Messages,
			"duration_ms": rec.Duration().Milliseconds(),
		},
		rec.Ended,
	))
	return nil
}
