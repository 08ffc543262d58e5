package wifi

import "fmt"

// Status is a driver-reported association status code.
type Status int

const (
	StatusWrongPassword Status = -3
	StatusNoAPFound     Status = -2
	StatusConnectFail   Status = -1
	StatusIdle          Status = 0
	StatusConnecting    Status = 1
	StatusNoIP          Status = 2
	StatusGotIP         Status = 3
)

// Terminal reports whether polling can stop at this status.
func (s Status) Terminal() bool {
	return s < 0 || s >= StatusGotIP
}

func (s Status) String() string {
	switch s {
	case StatusWrongPassword:
		return "wrong_password"
	case StatusNoAPFound:
		return "no_ap_found"
	case StatusConnectFail:
		return "connect_fail"
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusNoIP:
		return "no_ip"
	case StatusGotIP:
		return "got_ip"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Phase is the coarse lifecycle position of a Link.
type Phase string

const (
	PhaseDown        Phase = "down"
	PhaseAssociating Phase = "associating"
	PhaseUp          Phase = "up"
)

// LinkState is owned by a Link. IP is set only in PhaseUp.
type LinkState struct {
	Phase Phase
	IP    string
}

func (s LinkState) String() string {
	if s.Phase == PhaseUp && s.IP != "" {
		return fmt.Sprintf("%s(%s)", s.Phase, s.IP)
	}
	return string(s.Phase)
}
