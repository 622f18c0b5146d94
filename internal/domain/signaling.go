package domain

// SignalingState mirrors RTCSignalingState. The value is always reported by
// the peer connection; nothing in this module derives it.
type SignalingState int

const (
	SignalingStateUnknown SignalingState = iota
	SignalingStateStable
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
)

var signalingStateNames = map[SignalingState]string{
	SignalingStateStable:             "stable",
	SignalingStateHaveLocalOffer:     "have-local-offer",
	SignalingStateHaveRemoteOffer:    "have-remote-offer",
	SignalingStateHaveLocalPranswer:  "have-local-pranswer",
	SignalingStateHaveRemotePranswer: "have-remote-pranswer",
	SignalingStateClosed:             "closed",
}

func (s SignalingState) String() string {
	if name, ok := signalingStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSignalingState maps the W3C spelling back to a SignalingState.
func ParseSignalingState(raw string) SignalingState {
	for s, name := range signalingStateNames {
		if name == raw {
			return s
		}
	}
	return SignalingStateUnknown
}

func (s SignalingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SignalingState) UnmarshalText(text []byte) error {
	*s = ParseSignalingState(string(text))
	return nil
}

// SDPType is the type of a session description.
type SDPType int

const (
	SDPTypeUnknown SDPType = iota
	SDPTypeOffer
	SDPTypePranswer
	SDPTypeAnswer
	SDPTypeRollback
)

func (t SDPType) String() string {
	switch t {
	case SDPTypeOffer:
		return "offer"
	case SDPTypePranswer:
		return "pranswer"
	case SDPTypeAnswer:
		return "answer"
	case SDPTypeRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// ParseSDPType maps "offer", "answer", ... to an SDPType.
func ParseSDPType(raw string) SDPType {
	switch raw {
	case "offer":
		return SDPTypeOffer
	case "pranswer":
		return SDPTypePranswer
	case "answer":
		return SDPTypeAnswer
	case "rollback":
		return SDPTypeRollback
	default:
		return SDPTypeUnknown
	}
}

// Description is an SDP offer or answer.
type Description struct {
	Type SDPType
	SDP  string
}
