package wifi

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Association polling defaults.
const (
	// DefaultPollInterval is the wait between status polls.
	DefaultPollInterval = 3 * time.Second

	// DefaultMaxAttempts bounds the number of status polls per Connect.
	DefaultMaxAttempts = 10

	// DefaultCheckInterval is the minimum spacing between driver
	// association checks made by IsConnected.
	DefaultCheckInterval = time.Second
)

// Options tunes association polling.
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int

	// CheckInterval caches a positive association check for this long.
	// Negative values query the driver on every IsConnected call.
	CheckInterval time.Duration
}

// Link manages one association lifecycle over a Driver.
//
// A Link is created per supervisor cycle and discarded after Disconnect;
// it is not meant to be reconnected.
//
// Thread Safety:
//   - State and IsConnected may be called from any goroutine.
//   - Connect and Disconnect are expected to be called from one goroutine.
type Link struct {
	driver Driver
	opts   Options
	logger Logger

	now func() time.Time

	mu        sync.RWMutex
	state     LinkState
	active    bool
	checkedAt time.Time
}

// NewLink creates a Link.
//
// Defaults apply per field:
//   - MaxAttempts <= 0 uses DefaultMaxAttempts.
//   - PollInterval < 0 uses DefaultPollInterval; zero polls without waiting.
//   - CheckInterval == 0 uses DefaultCheckInterval.
func NewLink(driver Driver, opts Options) *Link {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.PollInterval < 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CheckInterval == 0 {
		opts.CheckInterval = DefaultCheckInterval
	}

	return &Link{
		driver: driver,
		opts:   opts,
		logger: noopLogger{},
		now:    time.Now,
		state:  LinkState{Phase: PhaseDown},
	}
}

// SetLogger sets the logger for the link.
func (l *Link) SetLogger(logger Logger) {
	l.logger = logger
}

// Connect activates the interface, requests association and polls until
// the link reaches a terminal status or the attempt budget is spent.
//
// It succeeds only when the final status is StatusGotIP. Any other outcome
// returns an error wrapping ErrAssociationFailed. Cancelling ctx aborts the
// wait and returns ctx.Err().
func (l *Link) Connect(ctx context.Context, creds Credentials) error {
	l.mu.Lock()
	l.active = true
	l.state = LinkState{Phase: PhaseAssociating}
	l.mu.Unlock()

	l.logger.Info("connecting to WiFi", "ssid", creds.SSID)

	if err := l.driver.Activate(true); err != nil {
		l.setDown()
		return fmt.Errorf("%w: activating interface: %w", ErrAssociationFailed, err)
	}
	if err := l.driver.Associate(creds.SSID, creds.Password); err != nil {
		l.setDown()
		return fmt.Errorf("%w: requesting association: %w", ErrAssociationFailed, err)
	}

	status, err := l.awaitTerminal(ctx)
	if err != nil {
		l.setDown()
		return err
	}

	if status != StatusGotIP {
		l.setDown()
		l.logger.Warn("WiFi association failed", "ssid", creds.SSID, "status", status)
		return fmt.Errorf("%w: final status %s", ErrAssociationFailed, status)
	}

	ip := ""
	if cfg, err := l.driver.IPConfig(); err != nil {
		l.logger.Warn("reading IP configuration failed", "error", err)
	} else {
		ip = cfg.IP
	}

	l.mu.Lock()
	l.state = LinkState{Phase: PhaseUp, IP: ip}
	l.checkedAt = l.now()
	l.mu.Unlock()

	l.logger.Info("WiFi connected", "ssid", creds.SSID, "ip", ip)
	return nil
}

// awaitTerminal polls the driver at most MaxAttempts times, sleeping
// PollInterval after each non-terminal status, then returns the last status.
func (l *Link) awaitTerminal(ctx context.Context) (Status, error) {
	for attempt := 1; attempt <= l.opts.MaxAttempts; attempt++ {
		status := l.pollStatus()
		if status.Terminal() {
			return status, nil
		}

		l.logger.Info("waiting for WiFi association",
			"attempt", attempt,
			"max_attempts", l.opts.MaxAttempts,
			"status", status,
		)

		if err := sleep(ctx, l.opts.PollInterval); err != nil {
			return StatusIdle, err
		}
	}
	return l.pollStatus(), nil
}

// pollStatus reads the driver status. Driver errors count as a non-terminal poll.
func (l *Link) pollStatus() Status {
	status, err := l.driver.Status()
	if err != nil {
		l.logger.Debug("status poll failed", "error", err)
		return StatusIdle
	}
	return status
}

// Disconnect drops the association and powers the interface down.
//
// It is idempotent and never fails: driver errors are logged and swallowed.
func (l *Link) Disconnect() {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	l.active = false
	l.state = LinkState{Phase: PhaseDown}
	l.mu.Unlock()

	if err := l.driver.Disassociate(); err != nil {
		l.logger.Debug("disassociate failed", "error", err)
	}
	if err := l.driver.Activate(false); err != nil {
		l.logger.Debug("deactivate failed", "error", err)
	}

	l.logger.Info("disconnected from WiFi")
}

// IsConnected reports whether the link is up and the driver still sees an
// association. A lost association moves the link to PhaseDown.
//
// The driver is queried at most once per CheckInterval; in between, the
// last positive answer is reused. A loss is therefore noticed up to one
// CheckInterval late.
func (l *Link) IsConnected() bool {
	l.mu.RLock()
	up := l.state.Phase == PhaseUp
	fresh := l.opts.CheckInterval > 0 && l.now().Sub(l.checkedAt) < l.opts.CheckInterval
	l.mu.RUnlock()
	if !up {
		return false
	}
	if fresh {
		return true
	}

	if l.driver.IsAssociated() {
		l.mu.Lock()
		l.checkedAt = l.now()
		l.mu.Unlock()
		return true
	}

	l.setDown()
	return false
}

// State returns the current link state.
func (l *Link) State() LinkState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IP returns the address assigned on the last successful Connect, or "".
func (l *Link) IP() string {
	return l.State().IP
}

func (l *Link) setDown() {
	l.mu.Lock()
	l.state = LinkState{Phase: PhaseDown}
	l.mu.Unlock()
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
