package relay

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a subscriber that cannot keep up.
type Policy interface {
	OnBackpressure(channel string, sid SessionID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(string, SessionID) BackpressureAction {
	return KickMember
}

// DropPolicy only drops frames and keeps slow subscribers.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(string, SessionID) BackpressureAction {
	return DropFrame
}
