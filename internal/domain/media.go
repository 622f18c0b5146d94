package domain

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// TrackInfo is a read-only view of a media track for observers.
type TrackInfo struct {
	ID       string    `json:"id"`
	Kind     TrackKind `json:"kind"`
	StreamID string    `json:"stream_id,omitempty"`
	Label    string    `json:"label,omitempty"`
}

// SenderRef identifies an outbound sender on one peer connection.
type SenderRef struct {
	ID      string    `json:"id"`
	TrackID string    `json:"track_id"`
	Kind    TrackKind `json:"kind"`
}

// Constraints select what getUserMedia should capture.
type Constraints struct {
	Audio         bool
	Video         bool
	VideoDeviceID string
}

type DeviceKind string

const (
	DeviceKindVideoInput DeviceKind = "videoinput"
	DeviceKindAudioInput DeviceKind = "audioinput"
)

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Kind  DeviceKind `json:"kind"`
}
