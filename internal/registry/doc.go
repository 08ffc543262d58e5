// Package registry maps MQTT topics to named variable slots and keeps the
// latest numeric value per slot.
//
// The topic list is fixed at construction. Dispatch is the only writer of
// the Store: it is invoked synchronously by the session while the
// supervisor polls, so values change only at poll boundaries. Readers on
// other goroutines (status reporting, exporters) go through Get or
// Snapshot, which take a read lock.
//
// Values survive session and link failures. A Store is created once per
// process and never reset.
//
// Usage:
//
//	reg, err := registry.New([]registry.Binding{
//	    {Topic: "home/heat_on/current-temperature/get", Slot: "cur_temp"},
//	})
//	...
//	sess.Subscribe(reg.Topics(), reg.Dispatch)
//	temp, ok := reg.Store().Get("cur_temp")
package registry
