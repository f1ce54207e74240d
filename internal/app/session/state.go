package session

import "fmt"

// State is the lifecycle of one coordinator. Transitions only go forward:
// Idle -> Joining -> Joined -> Leaving -> Left, with Joining -> Left on a
// failed or cancelled join and Idle -> Left when left before joining.
type State int

const (
	Idle State = iota
	Joining
	Joined
	Leaving
	Left
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Leaving:
		return "leaving"
	case Left:
		return "left"
	default:
		return "invalid"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Left; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}
