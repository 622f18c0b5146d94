package app

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	Disconnect
)

// Policy decides what happens when an observer's send queue is full.
type Policy interface {
	OnBackPressure(client, msgType string) BackpressureAction
}

type SimplePolicy struct{}

// OnBackPressure drops state snapshots, since a newer one supersedes them,
// and disconnects observers that fall behind on anything else.
func (SimplePolicy) OnBackPressure(_ string, msgType string) BackpressureAction {
	if msgType == "state" {
		return DropFrame
	}
	return Disconnect
}
