package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/sensorlink/internal/registry"
	"github.com/nerrad567/sensorlink/internal/session"
	"github.com/nerrad567/sensorlink/internal/wifi"
)

// eventLog records calls across mocks so ordering can be asserted.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) count(e string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, got := range l.events {
		if got == e {
			n++
		}
	}
	return n
}

func (l *eventLog) indexOf(e string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, got := range l.events {
		if got == e {
			return i
		}
	}
	return -1
}

// MockLink implements Link.
type MockLink struct {
	log        *eventLog
	connectErr error

	// upChecks is how many IsConnected calls report true; negative means always.
	upChecks int
	checks   int
}

func (m *MockLink) Connect(context.Context, wifi.Credentials) error {
	m.log.add("link.connect")
	return m.connectErr
}

func (m *MockLink) Disconnect() { m.log.add("link.disconnect") }

func (m *MockLink) IsConnected() bool {
	m.checks++
	return m.upChecks < 0 || m.checks <= m.upChecks
}

func (m *MockLink) IP() string { return "192.168.1.50" }

type pollStep struct {
	topic   string
	payload string
	err     error
}

// MockSession implements Session with a scripted poll sequence.
// Once the script is exhausted, polls report nothing pending.
type MockSession struct {
	log          *eventLog
	connectErr   error
	subscribeErr error
	panicOnClose bool

	steps      []pollStep
	dispatcher session.Dispatcher
	topics     []string
	polls      int
	gotBroker  session.Broker
}

func (m *MockSession) Connect(b session.Broker, _ session.Credentials) error {
	m.log.add("session.connect")
	m.gotBroker = b
	return m.connectErr
}

func (m *MockSession) Subscribe(topics []string, d session.Dispatcher) error {
	m.log.add("session.subscribe")
	m.topics = topics
	m.dispatcher = d
	return m.subscribeErr
}

func (m *MockSession) PollOnce() (bool, error) {
	m.polls++
	if len(m.steps) == 0 {
		return false, nil
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	if step.err != nil {
		return false, step.err
	}
	return true, m.dispatcher(step.topic, []byte(step.payload))
}

func (m *MockSession) Disconnect() {
	m.log.add("session.disconnect")
	if m.panicOnClose {
		panic("socket already closed")
	}
}

// MockRecorder captures cycle records.
type MockRecorder struct {
	mu      sync.Mutex
	records []CycleRecord
	err     error
}

func (m *MockRecorder) RecordCycle(_ context.Context, rec CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

// MockResolver returns a fixed broker or error.
type MockResolver struct {
	broker session.Broker
	err    error
}

func (m *MockResolver) ResolveBroker(context.Context) (session.Broker, error) {
	return m.broker, m.err
}

type fixture struct {
	log      *eventLog
	links    []*MockLink
	sessions []*MockSession
	reg      *registry.Registry
	sup      *Supervisor
	sleeps   []time.Duration
}

// newFixture builds a supervisor whose factories hand out the given mocks
// in order. Sleeps return immediately and are recorded.
func newFixture(t *testing.T, links []*MockLink, sessions []*MockSession) *fixture {
	t.Helper()

	f := &fixture{log: &eventLog{}, links: links, sessions: sessions}
	for _, l := range links {
		l.log = f.log
	}
	for _, s := range sessions {
		s.log = f.log
	}

	reg, err := registry.New([]registry.Binding{
		{Topic: "t/a", Slot: "x"},
		{Topic: "t/b", Slot: "y"},
	})
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	f.reg = reg

	nextLink, nextSession := 0, 0
	f.sup = New(Config{
		WiFi:   wifi.Credentials{SSID: "greenhouse", Password: "secret"},
		Broker: session.Broker{Host: "broker.local", Port: 1883, ClientID: "pico_client"},
	},
		func() Link {
			if nextLink >= len(f.links) {
				t.Fatalf("more links requested than scripted")
			}
			l := f.links[nextLink]
			nextLink++
			return l
		},
		func() Session {
			if nextSession >= len(f.sessions) {
				t.Fatalf("more sessions requested than scripted")
			}
			s := f.sessions[nextSession]
			nextSession++
			return s
		},
		reg,
	)
	f.sup.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	}
	f.sup.newID = func() string { return "cycle" }
	return f
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:      "idle",
		StateLinkUp:    "link_up",
		StateSessionUp: "session_up",
		StateServing:   "serving",
		StateTearDown:  "teardown",
		State(42):      "unknown",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(st), got, want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	sup := New(Config{}, nil, nil, nil)
	if sup.cfg.RetryDelay != 5*time.Second {
		t.Errorf("RetryDelay = %v, want 5s", sup.cfg.RetryDelay)
	}
	if sup.cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", sup.cfg.PollInterval)
	}
}

func TestCycle_LinkAssociationFailure(t *testing.T) {
	link := &MockLink{connectErr: wifi.ErrAssociationFailed, upChecks: -1}
	f := newFixture(t, []*MockLink{link}, nil)

	rec := f.sup.runCycle(context.Background())

	if rec.Kind != FailureLinkAssociation {
		t.Errorf("Kind = %q, want %q", rec.Kind, FailureLinkAssociation)
	}
	if rec.Reached != StateIdle {
		t.Errorf("Reached = %s, want idle", rec.Reached)
	}
	if n := f.log.count("link.disconnect"); n != 1 {
		t.Errorf("link disconnects = %d, want 1", n)
	}
	if n := f.log.count("session.connect"); n != 0 {
		t.Errorf("session connects = %d, want 0", n)
	}
}

func TestCycle_LinkDownAfterAssociation(t *testing.T) {
	link := &MockLink{upChecks: 0}
	f := newFixture(t, []*MockLink{link}, nil)

	rec := f.sup.runCycle(context.Background())

	if rec.Kind != FailureLinkAssociation {
		t.Errorf("Kind = %q, want %q", rec.Kind, FailureLinkAssociation)
	}
	if n := f.log.count("link.disconnect"); n != 1 {
		t.Errorf("link disconnects = %d, want 1", n)
	}
}

func TestCycle_SessionConnectFailure(t *testing.T) {
	link := &MockLink{upChecks: -1}
	sess := &MockSession{connectErr: session.ErrConnectFailed}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})

	rec := f.sup.runCycle(context.Background())

	if rec.Kind != FailureSessionConnect {
		t.Errorf("Kind = %q, want %q", rec.Kind, FailureSessionConnect)
	}
	if rec.Reached != StateLinkUp {
		t.Errorf("Reached = %s, want link_up", rec.Reached)
	}
	if f.log.count("session.disconnect") != 1 || f.log.count("link.disconnect") != 1 {
		t.Errorf("events = %v, want one disconnect each", f.log.events)
	}
}

func TestCycle_SubscriptionFailure(t *testing.T) {
	link := &MockLink{upChecks: -1}
	sess := &MockSession{subscribeErr: session.ErrSubscribeFailed}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})

	rec := f.sup.runCycle(context.Background())

	if rec.Kind != FailureSubscription {
		t.Errorf("Kind = %q, want %q", rec.Kind, FailureSubscription)
	}
	if rec.Reached != StateSessionUp {
		t.Errorf("Reached = %s, want session_up", rec.Reached)
	}
	if len(sess.topics) != 2 || sess.topics[0] != "t/a" || sess.topics[1] != "t/b" {
		t.Errorf("subscribed topics = %v, want registry order", sess.topics)
	}
	if sess.polls != 0 {
		t.Errorf("polls = %d after subscribe failure, want 0", sess.polls)
	}
}

func TestCycle_ServingUntilTransportError(t *testing.T) {
	link := &MockLink{upChecks: -1}
	sess := &MockSession{steps: []pollStep{
		{topic: "t/a", payload: "23.5"},
		{topic: "t/unbound", payload: "1"},
		{topic: "t/b", payload: "-2"},
		{err: session.ErrTransport},
	}}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})

	rec := f.sup.runCycle(context.Background())

	if rec.Kind != FailureTransport {
		t.Errorf("Kind = %q, want %q", rec.Kind, FailureTransport)
	}
	if rec.Reached != StateServing {
		t.Errorf("Reached = %s, want serving", rec.Reached)
	}
	if rec.Messages != 3 {
		t.Errorf("Messages = %d, want 3", rec.Messages)
	}
	if v, _ := f.reg.Store().Get("x"); v != 23.5 {
		t.Errorf("x = %v, want 23.5", v)
	}
	if v, _ := f.reg.Store().Get("y"); v != -2 {
		t.Errorf("y = %v, want -2", v)
	}

	si, li := f.log.indexOf("session.disconnect"), f.log.indexOf("link.disconnect")
	if si < 0 || li < 0 || si > li {
		t.Errorf("teardown order = %v, want session before link", f.log.events)
	}
	if f.log.count("session.disconnect") != 1 || f.log.count("link.disconnect") != 1 {
		t.Errorf("events = %v, want one disconnect each", f.log.events)
	}
	if f.sup.State() != StateIdle {
		t.Errorf("State() = %s after cycle, want idle", f.sup.State())
	}
}

func TestCycle_PayloadParseFailure(t *testing.T) {
	link := &MockLink{upChecks: -1}
	sess := &MockSession{steps: []pollStep{
		{topic: "t/a", payload: "20"},
		{topic: "t/a", payload: "abc"},
	}}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})

	rec := f.sup.runCycle(context.Background())

	if rec.Kind != FailurePayloadParse {
		t.Errorf("Kind = %q, want %q", rec.Kind, FailurePayloadParse)
	}
	if v, _ := f.reg.Store().Get("x"); v != 20 {
		t.Errorf("x = %v, want 20 kept", v)
	}
}

func TestCycle_DropMalformedKeepsServing(t *testing.T) {
	link := &MockLink{upChecks: -1}
	sess := &MockSession{steps: []pollStep{
		{topic: "t/a", payload: "abc"},
		{topic: "t/a", payload: "21"},
		{err: session.ErrTransport},
	}}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})
	f.reg.SetDropMalformed(true)

	rec := f.sup.runCycle(context.Background())

	if rec.Kind != FailureTransport {
		t.Errorf("Kind = %q, want %q", rec.Kind, FailureTransport)
	}
	if v, _ := f.reg.Store().Get("x"); v != 21 {
		t.Errorf("x = %v, want 21", v)
	}
}

func TestCycle_LinkLostWhileServing(t *testing.T) {
	// One check after Connect, two during serving, then the link drops.
	link := &MockLink{upChecks: 3}
	sess := &MockSession{steps: []pollStep{
		{topic: "t/a", payload: "1"},
		{topic: "t/a", payload: "2"},
		{topic: "t/a", payload: "3"},
	}}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})

	rec := f.sup.runCycle(context.Background())

	if rec.Kind != FailureLinkLost {
		t.Errorf("Kind = %q, want %q", rec.Kind, FailureLinkLost)
	}
	if sess.polls != 2 {
		t.Errorf("polls = %d, want 2 (no poll after link loss)", sess.polls)
	}
	if v, _ := f.reg.Store().Get("x"); v != 2 {
		t.Errorf("x = %v, want 2", v)
	}
}

func TestCycle_IdlesOnlyWhenNothingPending(t *testing.T) {
	link := &MockLink{upChecks: 5}
	sess := &MockSession{steps: []pollStep{
		{topic: "t/a", payload: "1"},
		{topic: "t/a", payload: "2"},
	}}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})

	f.sup.runCycle(context.Background())

	// Polls 1 and 2 dispatched, polls 3 and 4 were empty.
	if len(f.sleeps) != 2 {
		t.Fatalf("sleeps = %v, want 2 idle waits", f.sleeps)
	}
	for _, d := range f.sleeps {
		if d != DefaultPollInterval {
			t.Errorf("idle sleep = %v, want %v", d, DefaultPollInterval)
		}
	}
}

func TestCycle_ResolverSuppliesBroker(t *testing.T) {
	link := &MockLink{upChecks: 1}
	sess := &MockSession{}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})
	f.sup.SetResolver(&MockResolver{broker: session.Broker{Host: "10.0.0.2", Port: 1884}})

	f.sup.runCycle(context.Background())

	if sess.gotBroker.Host != "10.0.0.2" || sess.gotBroker.Port != 1884 {
		t.Errorf("session broker = %+v, want resolved address", sess.gotBroker)
	}
}

func TestCycle_ResolverFailure(t *testing.T) {
	link := &MockLink{upChecks: -1}
	f := newFixture(t, []*MockLink{link}, nil)
	f.sup.SetResolver(&MockResolver{err: errors.New("no answer")})

	rec := f.sup.runCycle(context.Background())

	if rec.Kind != FailureDiscovery {
		t.Errorf("Kind = %q, want %q", rec.Kind, FailureDiscovery)
	}
	if f.log.count("link.disconnect") != 1 {
		t.Errorf("link disconnects = %d, want 1", f.log.count("link.disconnect"))
	}
}

func TestCycle_PanickingDisconnectStillReleasesLink(t *testing.T) {
	link := &MockLink{upChecks: -1}
	sess := &MockSession{panicOnClose: true, steps: []pollStep{{err: session.ErrTransport}}}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})

	f.sup.runCycle(context.Background())

	if f.log.count("link.disconnect") != 1 {
		t.Errorf("link disconnects = %d, want 1", f.log.count("link.disconnect"))
	}
}

func TestCycle_UnknownPollError(t *testing.T) {
	link := &MockLink{upChecks: -1}
	sess := &MockSession{steps: []pollStep{{err: errors.New("weird")}}}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})

	if rec := f.sup.runCycle(context.Background()); rec.Kind != FailureUnknown {
		t.Errorf("Kind = %q, want %q", rec.Kind, FailureUnknown)
	}
}

func TestRun_StorePersistsAcrossCycles(t *testing.T) {
	links := []*MockLink{
		{upChecks: -1},
		{connectErr: wifi.ErrAssociationFailed},
		{upChecks: -1},
	}
	sessions := []*MockSession{
		{steps: []pollStep{{topic: "t/a", payload: "23.5"}, {err: session.ErrTransport}}},
		{steps: []pollStep{{topic: "t/b", payload: "7"}, {err: session.ErrTransport}}},
	}
	f := newFixture(t, links, sessions)
	recorder := &MockRecorder{}
	f.sup.SetRecorder(recorder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	retries := 0
	f.sup.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		if d == DefaultRetryDelay {
			retries++
			if retries == 3 {
				cancel()
			}
		}
		return ctx.Err()
	}

	err := f.sup.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	if v, ok := f.reg.Store().Get("x"); !ok || v != 23.5 {
		t.Errorf("x = %v (ok=%v), want 23.5 kept across cycles", v, ok)
	}
	if v, ok := f.reg.Store().Get("y"); !ok || v != 7 {
		t.Errorf("y = %v (ok=%v), want 7", v, ok)
	}

	wantKinds := []FailureKind{FailureTransport, FailureLinkAssociation, FailureTransport}
	if len(recorder.records) != len(wantKinds) {
		t.Fatalf("records = %d, want %d", len(recorder.records), len(wantKinds))
	}
	for i, want := range wantKinds {
		if recorder.records[i].Kind != want {
			t.Errorf("record %d kind = %q, want %q", i, recorder.records[i].Kind, want)
		}
	}

	stats := f.sup.Stats()
	if stats.Cycles != 3 || stats.Messages != 2 {
		t.Errorf("Stats() = %+v, want 3 cycles and 2 messages", stats)
	}
	if f.log.count("link.disconnect") != 3 {
		t.Errorf("link disconnects = %d, want one per cycle", f.log.count("link.disconnect"))
	}
}

func TestRun_CancelWhileServing(t *testing.T) {
	link := &MockLink{upChecks: -1}
	sess := &MockSession{}
	f := newFixture(t, []*MockLink{link}, []*MockSession{sess})
	recorder := &MockRecorder{}
	f.sup.SetRecorder(recorder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sup.sleep = func(ctx context.Context, _ time.Duration) error {
		if sess.polls >= 3 {
			cancel()
		}
		return ctx.Err()
	}

	if err := f.sup.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(recorder.records) != 1 || recorder.records[0].Kind != FailureCancelled {
		t.Errorf("records = %+v, want one cancelled cycle", recorder.records)
	}
	if f.log.count("session.disconnect") != 1 || f.log.count("link.disconnect") != 1 {
		t.Errorf("events = %v, want teardown on cancel", f.log.events)
	}
}

func TestRun_RecorderErrorIsNotFatal(t *testing.T) {
	links := []*MockLink{{connectErr: wifi.ErrAssociationFailed}}
	f := newFixture(t, links, nil)
	f.sup.SetRecorder(&MockRecorder{err: errors.New("disk full")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sup.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	if err := f.sup.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestSleep(t *testing.T) {
	if err := sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleep() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleep() error = %v, want context.Canceled", err)
	}
}

func TestRecorders_FanOut(t *testing.T) {
	a := &MockRecorder{}
	b := &MockRecorder{err: errors.New("disk full")}
	c := &MockRecorder{}

	err := Recorders{a, b, c}.RecordCycle(context.Background(), CycleRecord{ID: "c1"})
	if err == nil || err.Error() != "disk full" {
		t.Errorf("RecordCycle() error = %v, want disk full", err)
	}
	for i, r := range []*MockRecorder{a, b, c} {
		if len(r.records) != 1 {
			t.Errorf("recorder %d got %d records, want 1", i, len(r.records))
		}
	}

	if err := (Recorders{}).RecordCycle(context.Background(), CycleRecord{}); err != nil {
		t.Errorf("empty Recorders error = %v", err)
	}
}
