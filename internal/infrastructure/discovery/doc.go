// Package discovery locates the MQTT broker on the local network over
// mDNS/DNS-SD (service "_mqtt._tcp" by default).
//
// Discovery is optional. When enabled, the supervisor resolves the broker
// once per cycle, after the link is up, so a broker that moves to a new
// address is picked up on the next retry.
package discovery
