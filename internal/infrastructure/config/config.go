package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported values for enumerated settings.
const (
	WiFiDriverWPACLI = "wpa_cli"
	WiFiDriverHost   = "host"

	MQTTProtocol311 = "3.1.1"
	MQTTProtocol5   = "5"
)

// Config is the root configuration structure for SensorLink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	WiFi       WiFiConfig       `yaml:"wifi"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Topics     []TopicConfig    `yaml:"topics"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Journal    JournalConfig    `yaml:"journal"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig identifies the device in logs, journal rows and exported points.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// WiFiConfig contains wireless link settings.
type WiFiConfig struct {
	// Driver selects the link driver: "wpa_cli" or "host".
	Driver string `yaml:"driver"`

	// Interface is the network interface name (e.g. "wlan0").
	Interface string `yaml:"interface"`

	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`

	// PollInterval is the wait between association status polls (seconds).
	PollInterval int `yaml:"poll_interval"`

	// MaxAttempts bounds the number of status polls per association.
	MaxAttempts int `yaml:"max_attempts"`

	// WPACLIPath is the wpa_cli binary used by the wpa_cli driver.
	WPACLIPath string `yaml:"wpa_cli_path"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	// Protocol is "3.1.1" (paho.mqtt.golang) or "5" (paho.golang).
	Protocol  string              `yaml:"protocol"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	Discovery MQTTDiscoveryConfig `yaml:"discovery"`

	// StatusTopic receives retained online/offline payloads. Empty disables them.
	StatusTopic string `yaml:"status_topic"`

	// InboxSize bounds the number of received messages waiting to be polled.
	InboxSize int `yaml:"inbox_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// JWTSecret, when set, replaces the username with a signed HS256 token.
	JWTSecret string `yaml:"jwt_secret"`

	// JWTTTL is the token lifetime in seconds.
	JWTTTL int `yaml:"jwt_ttl"`
}

// MQTTDiscoveryConfig controls mDNS lookup of the broker.
type MQTTDiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Service   string `yaml:"service"`
	Domain    string `yaml:"domain"`
	Interface string `yaml:"interface"`
	Timeout   int    `yaml:"timeout"`
}

// TopicConfig binds one broker topic to one in-memory slot.
type TopicConfig struct {
	Topic string `yaml:"topic"`
	Slot  string `yaml:"slot"`
}

// SupervisorConfig contains retry loop settings.
type SupervisorConfig struct {
	// RetryDelay is the fixed wait between cycles (seconds).
	RetryDelay int `yaml:"retry_delay"`

	// PollIntervalMS is the idle wait when no message was pending (milliseconds).
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// DropMalformed drops unparsable payloads instead of ending the session.
	DropMalformed bool `yaml:"drop_malformed"`
}

// JournalConfig contains SQLite cycle journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// MaxRecords caps the journal size. 0 keeps every record.
	MaxRecords int `yaml:"max_records"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// envOverrides lists every setting that may be supplied through the environment.
// Empty values leave the file value untouched.
type envOverrides struct {
	WiFiSSID      string `env:"SENSORLINK_WIFI_SSID"`
	WiFiPassword  string `env:"SENSORLINK_WIFI_PASSWORD"`
	WiFiInterface string `env:"SENSORLINK_WIFI_INTERFACE"`
	MQTTHost      string `env:"SENSORLINK_MQTT_HOST"`
	MQTTPort      int    `env:"SENSORLINK_MQTT_PORT"`
	MQTTUsername  string `env:"SENSORLINK_MQTT_USERNAME"`
	MQTTPassword  string `env:"SENSORLINK_MQTT_PASSWORD"`
	MQTTJWTSecret string `env:"SENSORLINK_MQTT_JWT_SECRET"`
	InfluxToken   string `env:"SENSORLINK_INFLUXDB_TOKEN"`
	LogLevel      string `env:"SENSORLINK_LOG_LEVEL"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file in the working directory (if present)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: SENSORLINK_SECTION_KEY
// For example: SENSORLINK_WIFI_SSID, SENSORLINK_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:   "sensorlink-001",
			Name: "SensorLink",
		},
		WiFi: WiFiConfig{
			Driver:       WiFiDriverWPACLI,
			Interface:    "wlan0",
			PollInterval: 3,
			MaxAttempts:  10,
			WPACLIPath:   "/usr/sbin/wpa_cli",
		},
		MQTT: MQTTConfig{
			Protocol: MQTTProtocol311,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sensorlink",
			},
			Auth: MQTTAuthConfig{
				JWTTTL: 3600,
			},
			QoS:       0,
			KeepAlive: 60,
			Discovery: MQTTDiscoveryConfig{
				Service: "_mqtt._tcp",
				Domain:  "local.",
				Timeout: 5,
			},
			InboxSize: 64,
		},
		Supervisor: SupervisorConfig{
			RetryDelay:     5,
			PollIntervalMS: 100,
		},
		Journal: JournalConfig{
			Path:        "./data/sensorlink.db",
			WALMode:     true,
			BusyTimeout: 5,
			MaxRecords:  1000,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// loadDotEnv populates the process environment from path.
// A missing file is not an error; variables already set are not replaced.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}

	// WiFi
	if o.WiFiSSID != "" {
		cfg.WiFi.SSID = o.WiFiSSID
	}
	if o.WiFiPassword != "" {
		cfg.WiFi.Password = o.WiFiPassword
	}
	if o.WiFiInterface != "" {
		cfg.WiFi.Interface = o.WiFiInterface
	}

	// MQTT
	if o.MQTTHost != "" {
		cfg.MQTT.Broker.Host = o.MQTTHost
	}
	if o.MQTTPort != 0 {
		cfg.MQTT.Broker.Port = o.MQTTPort
	}
	if o.MQTTUsername != "" {
		cfg.MQTT.Auth.Username = o.MQTTUsername
	}
	if o.MQTTPassword != "" {
		cfg.MQTT.Auth.Password = o.MQTTPassword
	}
	if o.MQTTJWTSecret != "" {
		cfg.MQTT.Auth.JWTSecret = o.MQTTJWTSecret
	}

	// InfluxDB
	if o.InfluxToken != "" {
		cfg.InfluxDB.Token = o.InfluxToken
	}

	// Logging
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}

	return nil
}

// Validate checks the configuration for errors.
//
// All problems are collected so a single run reports every mistake.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	// WiFi validation
	switch c.WiFi.Driver {
	case WiFiDriverWPACLI:
		if c.WiFi.SSID == "" {
			errs = append(errs, "wifi.ssid is required (set SENSORLINK_WIFI_SSID environment variable)")
		}
	case WiFiDriverHost:
	default:
		errs = append(errs, fmt.Sprintf("wifi.driver must be %q or %q", WiFiDriverWPACLI, WiFiDriverHost))
	}
	if c.WiFi.Interface == "" {
		errs = append(errs, "wifi.interface is required")
	}
	if c.WiFi.MaxAttempts < 1 {
		errs = append(errs, "wifi.max_attempts must be at least 1")
	}
	if c.WiFi.PollInterval < 0 {
		errs = append(errs, "wifi.poll_interval cannot be negative")
	}

	// MQTT validation
	if c.MQTT.Protocol != MQTTProtocol311 && c.MQTT.Protocol != MQTTProtocol5 {
		errs = append(errs, fmt.Sprintf("mqtt.protocol must be %q or %q", MQTTProtocol311, MQTTProtocol5))
	}
	if c.MQTT.Broker.Host == "" && !c.MQTT.Discovery.Enabled {
		errs = append(errs, "mqtt.broker.host is required unless mqtt.discovery.enabled is set")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.InboxSize < 1 {
		errs = append(errs, "mqtt.inbox_size must be at least 1")
	}
	if c.MQTT.Discovery.Enabled && c.MQTT.Discovery.Service == "" {
		errs = append(errs, "mqtt.discovery.service is required when discovery is enabled")
	}

	// Topic validation
	if len(c.Topics) == 0 {
		errs = append(errs, "at least one topic binding is required")
	}
	seen := make(map[string]bool, len(c.Topics))
	for i, t := range c.Topics {
		if t.Topic == "" || t.Slot == "" {
			errs = append(errs, fmt.Sprintf("topics[%d] needs both topic and slot", i))
			continue
		}
		if seen[t.Topic] {
			errs = append(errs, fmt.Sprintf("topics[%d]: duplicate topic %q", i, t.Topic))
		}
		seen[t.Topic] = true
	}

	// Supervisor validation
	if c.Supervisor.RetryDelay < 0 {
		errs = append(errs, "supervisor.retry_delay cannot be negative")
	}
	if c.Supervisor.PollIntervalMS < 0 {
		errs = append(errs, "supervisor.poll_interval_ms cannot be negative")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetWiFiPollInterval returns the association poll interval as a Duration.
func (c *Config) GetWiFiPollInterval() time.Duration {
	return time.Duration(c.WiFi.PollInterval) * time.Second
}

// GetRetryDelay returns the supervisor retry delay as a Duration.
func (c *Config) GetRetryDelay() time.Duration {
	return time.Duration(c.Supervisor.RetryDelay) * time.Second
}

// GetPollInterval returns the idle wait between empty session polls.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Supervisor.PollIntervalMS) * time.Millisecond
}

// GetDiscoveryTimeout returns the broker discovery timeout as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.MQTT.Discovery.Timeout) * time.Second
}
