package domain

// Side names one of the two simulated peers.
type Side int

const (
	SideLocal Side = iota
	SideRemote
)

func (s Side) String() string {
	switch s {
	case SideLocal:
		return "local"
	case SideRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Opposite returns the peer on the other end of the session.
func (s Side) Opposite() Side {
	if s == SideLocal {
		return SideRemote
	}
	return SideLocal
}

// ParseSide maps "local" or "remote" back to a Side.
func ParseSide(raw string) (Side, bool) {
	switch raw {
	case "local":
		return SideLocal, true
	case "remote":
		return SideRemote, true
	default:
		return SideLocal, false
	}
}
