package supervisor

import "time"

// State is the supervisor's position in the cycle.
type State int

// Cycle states.
const (
	StateIdle State = iota
	StateLinkUp
	StateSessionUp
	StateServing
	StateTearDown
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateLinkUp:    "link_up",
	StateSessionUp: "session_up",
	StateServing:   "serving",
	StateTearDown:  "teardown",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CycleRecord summarises one cycle.
type CycleRecord struct {
	ID      string
	Started time.Time
	Ended   time.Time

	// Reached is the furthest state entered before teardown.
	Reached State

	Kind     FailureKind
	Error    string
	Messages int
}

// Duration returns how long the cycle ran.
func (r CycleRecord) Duration() time.Duration {
	return r.Ended.Sub(r.Started)
}

// Stats is a point-in-time view of the supervisor.
type Stats struct {
	State       State
	Cycles      int
	Messages    int
	LastKind    FailureKind
	LastError   string
	LastCycleAt time.Time
}
