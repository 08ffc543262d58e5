package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Defaults applied by NewResolver.
const (
	DefaultService = "_mqtt._tcp"
	DefaultDomain  = "local."
	DefaultTimeout = 5 * time.Second
)

// Config controls the browse.
type Config struct {
	Service   string
	Domain    string
	Interface string // empty browses on every multicast interface
	Timeout   time.Duration
}

// Endpoint is a resolved service instance.
type Endpoint struct {
	Instance string
	Host     string // IP literal when the instance advertised one, else the host name
	Port     int
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, fmt.Sprint(e.Port))
}

type browseFunc func(ctx context.Context, service, domain string,
	entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

func zeroconfBrowse(ctx context.Context, service, domain string,
	entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
	return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Resolver finds the first advertised broker instance.
type Resolver struct {
	cfg    Config
	browse browseFunc
	logger Logger
}

// NewResolver creates a Resolver. Zero config fields take the defaults.
func NewResolver(cfg Config) *Resolver {
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Resolver{cfg: cfg, browse: zeroconfBrowse, logger: noopLogger{}}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// Resolve browses until the first instance with a port and an address
// arrives, the timeout expires or ctx is cancelled.
func (r *Resolver) Resolve(ctx context.Context) (Endpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	browseErr := make(chan error, 1)

	go func() {
		browseErr <- r.browse(ctx, r.cfg.Service, r.cfg.Domain, entries, removed, r.options()...)
	}()

	r.logger.Debug("browsing for broker", "service", r.cfg.Service, "domain", r.cfg.Domain)

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			ep, usable := toEndpoint(entry)
			if !usable {
				continue
			}
			r.logger.Info("broker discovered", "instance", ep.Instance, "address", ep.Address())
			return ep, nil

		case <-removed:
			// Removals are irrelevant until something was found.

		case err := <-browseErr:
			if err != nil {
				return Endpoint{}, fmt.Errorf("%w: %w", ErrBrowse, err)
			}
			browseErr = nil

		case <-ctx.Done():
			if err := ctx.Err(); errors.Is(err, context.Canceled) {
				return Endpoint{}, err
			}
			return Endpoint{}, fmt.Errorf("%w: %s within %v", ErrNotFound, r.cfg.Service, r.cfg.Timeout)
		}
	}
}

func (r *Resolver) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if r.cfg.Interface != "" {
		if iface, err := net.InterfaceByName(r.cfg.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// toEndpoint picks an address for entry, preferring IPv4.
func toEndpoint(entry *zeroconf.ServiceEntry) (Endpoint, bool) {
	if entry == nil || entry.Port <= 0 {
		return Endpoint{}, false
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return Endpoint{}, false
	}

	return Endpoint{Instance: entry.Instance, Host: host, Port: entry.Port}, true
}
