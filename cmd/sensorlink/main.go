// SensorLink keeps a sensor display connected.
//
// It brings up the network link, opens an MQTT session, subscribes to the
// configured topics and keeps the latest value per topic in memory. When
// anything fails it tears both down and starts again after a fixed delay,
// until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/sensorlink/internal/infrastructure/config"
	"github.com/nerrad567/sensorlink/internal/infrastructure/database"
	"github.com/nerrad567/sensorlink/internal/infrastructure/discovery"
	"github.com/nerrad567/sensorlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/sensorlink/internal/infrastructure/logging"
	"github.com/nerrad567/sensorlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensorlink/internal/journal"
	"github.com/nerrad567/sensorlink/internal/registry"
	"github.com/nerrad567/sensorlink/internal/session"
	"github.com/nerrad567/sensorlink/internal/supervisor"
	"github.com/nerrad567/sensorlink/internal/wifi"
	"github.com/nerrad567/sensorlink/internal/wifi/hostif"
	"github.com/nerrad567/sensorlink/internal/wifi/wpacli"
	"github.com/nerrad567/sensorlink/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the components and blocks in the supervisor loop until ctx is
// cancelled. It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting SensorLink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("device_id", cfg.Device.ID)
	log.Info("configuration loaded",
		"path", configPath,
		"wifi_driver", cfg.WiFi.Driver,
		"mqtt_protocol", cfg.MQTT.Protocol,
		"topics", len(cfg.Topics),
	)

	reg, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}

	var recorders supervisor.Recorders

	if cfg.Journal.Enabled {
		db, j, err := openJournal(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing journal database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()
		recorders = append(recorders, j)
		log.Info("cycle journal enabled", "path", cfg.Journal.Path, "max_records", cfg.Journal.MaxRecords)
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB, cfg.Device.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		reg.SetOnUpdate(influxClient.WriteUpdate)
		recorders = append(recorders, influxClient)
		log.Info("InfluxDB export enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	sup := buildSupervisor(cfg, reg, log)
	if len(recorders) > 0 {
		sup.SetRecorder(recorders)
	}

	err = sup.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	log.Info("SensorLink stopped")
	return nil
}

// getConfigPath returns SENSORLINK_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("SENSORLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildRegistry creates the topic registry from the ordered topic list.
func buildRegistry(cfg *config.Config, log *logging.Logger) (*registry.Registry, error) {
	bindings := make([]registry.Binding, len(cfg.Topics))
	for i, t := range cfg.Topics {
		bindings[i] = registry.Binding{Topic: t.Topic, Slot: t.Slot}
	}

	reg, err := registry.New(bindings)
	if err != nil {
		return nil, fmt.Errorf("building topic registry: %w", err)
	}
	reg.SetLogger(log.Component("registry"))
	reg.SetDropMalformed(cfg.Supervisor.DropMalformed)
	return reg, nil
}

// openJournal opens the SQLite database, applies migrations and returns
// the journal recorder.
func openJournal(ctx context.Context, cfg *config.Config) (*database.DB, *journal.Journal, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Journal.Path,
		WALMode:     cfg.Journal.WALMode,
		BusyTimeout: cfg.Journal.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	j, err := journal.New(db, cfg.Device.ID, cfg.Journal.MaxRecords)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, err
	}
	return db, j, nil
}

// newDriver selects the link driver named in the config.
func newDriver(cfg config.WiFiConfig) wifi.Driver {
	if cfg.Driver == config.WiFiDriverHost {
		return hostif.New(cfg.Interface)
	}
	return wpacli.New(cfg.WPACLIPath, cfg.Interface)
}

// buildSupervisor wires link, session and optional discovery into a Supervisor.
func buildSupervisor(cfg *config.Config, reg *registry.Registry, log *logging.Logger) *supervisor.Supervisor {
	driver := newDriver(cfg.WiFi)
	linkOpts := wifi.Options{
		PollInterval: cfg.GetWiFiPollInterval(),
		MaxAttempts:  cfg.WiFi.MaxAttempts,
	}
	linkLog := log.Component("wifi")
	links := func() supervisor.Link {
		l := wifi.NewLink(driver, linkOpts)
		l.SetLogger(linkLog)
		return l
	}

	clients := mqtt.NewClientFactory(cfg.MQTT, log.Component("mqtt"))
	sessionLog := log.Component("session")
	sessions := func() supervisor.Session {
		s := session.New(clients)
		s.SetLogger(sessionLog)
		return s
	}

	broker := session.Broker{
		Host:     cfg.MQTT.Broker.Host,
		Port:     cfg.MQTT.Broker.Port,
		ClientID: cfg.MQTT.Broker.ClientID,
	}
	creds := session.Credentials{
		Username: cfg.MQTT.Auth.Username,
		Password: cfg.MQTT.Auth.Password,
	}

	sup := supervisor.New(supervisor.Config{
		WiFi:         wifi.Credentials{SSID: cfg.WiFi.SSID, Password: cfg.WiFi.Password},
		Broker:       broker,
		Credentials:  creds,
		RetryDelay:   cfg.GetRetryDelay(),
		PollInterval: cfg.GetPollInterval(),
	}, links, sessions, reg)
	sup.SetLogger(log.Component("supervisor"))

	if cfg.MQTT.Discovery.Enabled {
		resolver := discovery.NewResolver(discovery.Config{
			Service:   cfg.MQTT.Discovery.Service,
			Domain:    cfg.MQTT.Discovery.Domain,
			Interface: cfg.MQTT.Discovery.Interface,
			Timeout:   cfg.GetDiscoveryTimeout(),
		})
		resolver.SetLogger(log.Component("discovery"))
		sup.SetResolver(&brokerResolver{resolver: resolver, clientID: cfg.MQTT.Broker.ClientID})
	}

	return sup
}

// endpointResolver is the part of discovery.Resolver used here.
type endpointResolver interface {
	Resolve(ctx context.Context) (discovery.Endpoint, error)
}

// brokerResolver adapts mDNS discovery to supervisor.BrokerResolver.
type brokerResolver struct {
	resolver endpointResolver
	clientID string
}

func (b *brokerResolver) ResolveBroker(ctx context.Context) (session.Broker, error) {
	ep, err := b.resolver.Resolve(ctx)
	if err != nil {
		return session.Broker{}, err
	}
	return session.Broker{Host: ep.Host, Port: ep.Port, ClientID: b.clientID}, nil
}
