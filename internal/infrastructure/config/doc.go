// Package config handles loading and validating SensorLink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (and an optional .env file)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - WiFi and broker passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.WiFi.SSID)
package config
