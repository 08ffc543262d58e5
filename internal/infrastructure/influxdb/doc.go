// Package influxdb exports slot updates and supervisor cycles to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Export is one-way:
// values are never read back, and a slow or unreachable server never
// delays dispatch because writes go through the non-blocking write API.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Device.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	reg.SetOnUpdate(client.WriteUpdate)
//
// # Points
//
//   - slot_value{device_id, slot, topic} value=<float>
//   - supervisor_cycle{device_id, reached, failure} messages=<int>,duration_ms=<int>
package influxdb
