package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/sensorlink/internal/registry"
	"github.com/nerrad567/sensorlink/internal/session"
	"github.com/nerrad567/sensorlink/internal/wifi"
)

// Loop timing defaults.
const (
	DefaultRetryDelay   = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond

	// recordTimeout bounds a Recorder call; it runs even after ctx is cancelled.
	recordTimeout = 2 * time.Second
)

// Link is the network link used for one cycle.
type Link interface {
	Connect(ctx context.Context, creds wifi.Credentials) error
	Disconnect()
	IsConnected() bool
	IP() string
}

// Session is the broker session used for one cycle.
type Session interface {
	Connect(broker session.Broker, creds session.Credentials) error
	Subscribe(topics []string, dispatcher session.Dispatcher) error
	PollOnce() (bool, error)
	Disconnect()
}

// Recorders fans a cycle record out to several recorders.
// Every recorder is called; their errors are joined.
type Recorders []Recorder

// RecordCycle implements Recorder.
func (rs Recorders) RecordCycle(ctx context.Context, rec CycleRecord) error {
	var errs []error
	for _, r := range rs {
		if err := r.RecordCycle(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LinkFactory creates a fresh Link.
type LinkFactory func() Link

// SessionFactory creates a fresh Session.
type SessionFactory func() Session

// BrokerResolver looks up the broker address at the start of a session.
type BrokerResolver interface {
	ResolveBroker(ctx context.Context) (session.Broker, error)
}

// Recorder persists cycle records.
type Recorder interface {
	RecordCycle(ctx context.Context, rec CycleRecord) error
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the fixed inputs of every cycle.
type Config struct {
	WiFi        wifi.Credentials
	Broker      session.Broker
	Credentials session.Credentials

	// RetryDelay is the fixed wait after every cycle. It never grows.
	RetryDelay time.Duration

	// PollInterval is the wait after a poll that found nothing.
	PollInterval time.Duration
}

// Supervisor drives the link/session cycle.
type Supervisor struct {
	cfg        Config
	newLink    LinkFactory
	newSession SessionFactory
	registry   *registry.Registry

	resolver BrokerResolver
	recorder Recorder
	logger   Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	newID func() string

	mu    sync.RWMutex
	stats Stats
}

// New creates a Supervisor. Zero durations in cfg take the defaults.
func New(cfg Config, links LinkFactory, sessions SessionFactory, reg *registry.Registry) *Supervisor {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Supervisor{
		cfg:        cfg,
		newLink:    links,
		newSession: sessions,
		registry:   reg,
		logger:     noopLogger{},
		sleep:      sleep,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// SetResolver enables broker lookup before each session.
func (s *Supervisor) SetResolver(r BrokerResolver) {
	s.resolver = r
}

// SetRecorder sets where finished cycles are recorded.
func (s *Supervisor) SetRecorder(r Recorder) {
	s.recorder = r
}

// Run cycles until ctx is cancelled and returns ctx.Err().
// There is no retry limit.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor starting",
		"topics", len(s.registry.Topics()),
		"retry_delay", s.cfg.RetryDelay,
	)

	for {
		rec := s.runCycle(ctx)
		s.finishCycle(ctx, rec)

		if ctx.Err() != nil {
			s.logger.Info("supervisor stopped", "cycles", s.Stats().Cycles)
			return ctx.Err()
		}

		s.logger.Info("retrying", "delay", s.cfg.RetryDelay)
		if err := s.sleep(ctx, s.cfg.RetryDelay); err != nil {
			s.logger.Info("supervisor stopped", "cycles", s.Stats().Cycles)
			return err
		}
	}
}

// runCycle performs one full cycle and returns its record.
func (s *Supervisor) runCycle(ctx context.Context) CycleRecord {
	rec := CycleRecord{ID: s.newID(), Started: s.now(), Reached: StateIdle}
	s.setState(StateIdle)

	err := s.cycle(ctx, &rec)

	rec.Ended = s.now()
	s.setState(StateIdle)

	var ce *CycleError
	switch {
	case err == nil:
	case errors.As(err, &ce):
		rec.Kind = ce.Kind
		rec.Error = ce.Err.Error()
	default:
		rec.Kind = FailureUnknown
		rec.Error = err.Error()
	}
	return rec
}

// cycle walks the states. Teardown is deferred so it runs on every exit.
func (s *Supervisor) cycle(ctx context.Context, rec *CycleRecord) error {
	link := s.newLink()
	var sess Session

	defer func() {
		s.setState(StateTearDown)
		s.teardown(sess, link)
	}()

	if err := link.Connect(ctx, s.cfg.WiFi); err != nil {
		s.logger.Warn("WiFi connect failed", "error", err)
		return fail(kindFor(ctx, FailureLinkAssociation), err)
	}
	if !link.IsConnected() {
		s.logger.Warn("WiFi link down after association")
		return fail(FailureLinkAssociation, ErrLinkLost)
	}
	s.enter(rec, StateLinkUp)
	s.logger.Info("network link up", "ip", link.IP())

	broker := s.cfg.Broker
	if s.resolver != nil {
		resolved, err := s.resolver.ResolveBroker(ctx)
		if err != nil {
			s.logger.Warn("broker discovery failed", "error", err)
			return fail(kindFor(ctx, FailureDiscovery), err)
		}
		broker = resolved
	}

	sess = s.newSession()
	if err := sess.Connect(broker, s.cfg.Credentials); err != nil {
		return fail(FailureSessionConnect, err)
	}
	s.enter(rec, StateSessionUp)

	if err := sess.Subscribe(s.registry.Topics(), s.registry.Dispatch); err != nil {
		return fail(FailureSubscription, err)
	}
	s.enter(rec, StateServing)
	s.logger.Info("serving", "broker", broker.Host, "topics", len(s.registry.Topics()))

	return s.serve(ctx, link, sess, rec)
}

// serve polls until something fails. The link is checked before every poll.
func (s *Supervisor) serve(ctx context.Context, link Link, sess Session, rec *CycleRecord) error {
	for {
		if err := ctx.Err(); err != nil {
			return fail(FailureCancelled, err)
		}
		if !link.IsConnected() {
			s.logger.Warn("WiFi link lost while serving")
			return fail(FailureLinkLost, ErrLinkLost)
		}

		handled, err := sess.PollOnce()
		if handled {
			rec.Messages++
			s.mu.Lock()
			s.stats.Messages++
			s.mu.Unlock()
		}
		if err != nil {
			s.logger.Warn("session ended", "error", err)
			return fail(pollFailureKind(err), err)
		}

		if !handled {
			if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
				return fail(FailureCancelled, err)
			}
		}
	}
}

// teardown disconnects the session, then the link. Both are best-effort.
func (s *Supervisor) teardown(sess Session, link Link) {
	if sess != nil {
		s.safely("session disconnect", sess.Disconnect)
	}
	s.safely("link disconnect", link.Disconnect)
}

// safely runs fn and logs a panic instead of letting it skip the rest of
// teardown.
func (s *Supervisor) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during teardown", "step", what, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// finishCycle logs the outcome and retained values, then records the cycle.
func (s *Supervisor) finishCycle(ctx context.Context, rec CycleRecord) {
	s.mu.Lock()
	s.stats.Cycles++
	s.stats.LastKind = rec.Kind
	s.stats.LastError = rec.Error
	s.stats.LastCycleAt = rec.Ended
	s.mu.Unlock()

	s.logger.Info("cycle ended",
		"cycle_id", rec.ID,
		"reached", rec.Reached.String(),
		"failure", string(rec.Kind),
		"error", rec.Error,
		"messages", rec.Messages,
		"duration", rec.Duration(),
	)
	s.logSnapshot()

	if s.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.recorder.RecordCycle(rctx, rec); err != nil {
		s.logger.Warn("recording cycle failed", "cycle_id", rec.ID, "error", err)
	}
}

// logSnapshot logs the values kept across the failure.
func (s *Supervisor) logSnapshot() {
	snap := s.registry.Store().Snapshot()
	slots := make([]string, 0, len(snap))
	for slot := range snap {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	args := make([]any, 0, 2*len(slots))
	for _, slot := range slots {
		r := snap[slot]
		if r.Valid {
			args = append(args, slot, r.Value)
		} else {
			args = append(args, slot, nil)
		}
	}
	s.logger.Info("using saved data", args...)
}

func (s *Supervisor) enter(rec *CycleRecord, st State) {
	rec.Reached = st
	s.setState(st)
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	prev := s.stats.State
	s.stats.State = st
	s.mu.Unlock()

	if prev != st {
		s.logger.Debug("state transition", "from", prev.String(), "to", st.String())
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.State
}

// Stats returns a copy of the supervisor statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// pollFailureKind classifies an error returned by PollOnce.
func pollFailureKind(err error) FailureKind {
	switch {
	case errors.Is(err, registry.ErrInvalidPayload):
		return FailurePayloadParse
	case errors.Is(err, session.ErrTransport):
		return FailureTransport
	default:
		return FailureUnknown
	}
}

// kindFor reports FailureCancelled when ctx ended, else kind.
func kindFor(ctx context.Context, kind FailureKind) FailureKind {
	if ctx.Err() != nil {
		return FailureCancelled
	}
	return kind
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
