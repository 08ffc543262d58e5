// Package logging provides structured logging for SensorLink.
//
// It wraps log/slog so every component logs the same way: JSON for
// deployed devices, text for a developer terminal, and default fields
// (service, version) on every entry.
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	linkLog := logger.Component("wifi")
//	linkLog.Info("associated", "ip", ip)
//
// Never log WiFi or broker passwords.
package logging
