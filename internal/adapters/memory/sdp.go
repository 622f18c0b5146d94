package memory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/dkeye/loopcall/internal/domain"
)

type remoteTrack struct {
	id     string
	kind   domain.TrackKind
	stream string
	label  string
}

func (t *remoteTrack) ID() string             { return t.id }
func (t *remoteTrack) Kind() domain.TrackKind { return t.kind }
func (t *remoteTrack) StreamID() string       { return t.stream }
func (t *remoteTrack) Label() string          { return t.label }

func payloadType(kind domain.TrackKind) string {
	if kind == domain.TrackKindAudio {
		return "111"
	}
	return "96"
}

// marshalDescription renders the senders as one sendonly m-section each,
// carrying the stream grouping in msid the way browsers do.
func marshalDescription(sessionID, version uint64, senders []sender) (string, error) {
	sd := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: version,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName:      "-",
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{}}},
	}
	for i, s := range senders {
		md := &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   string(s.ref.Kind),
				Port:    sdp.RangedPort{Value: 9},
				Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
				Formats: []string{payloadType(s.ref.Kind)},
			},
		}
		stream := s.stream
		if stream == "" {
			stream = "-"
		}
		md = md.
			WithValueAttribute("mid", strconv.Itoa(i)).
			WithValueAttribute("msid", stream+" "+s.track.ID()).
			WithPropertyAttribute("sendonly")
		if label := s.track.Label(); label != "" {
			md = md.WithValueAttribute("label", label)
		}
		sd = sd.WithMedia(md)
	}
	raw, err := sd.Marshal()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// unmarshalTracks returns the tracks the far side sends in raw.
func unmarshalTracks(raw string) ([]*remoteTrack, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("malformed description: %w", err)
	}
	var out []*remoteTrack
	for _, md := range sd.MediaDescriptions {
		msid, ok := md.Attribute("msid")
		if !ok {
			continue
		}
		fields := strings.Fields(msid)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed msid %q", msid)
		}
		stream := fields[0]
		if stream == "-" {
			stream = ""
		}
		label, _ := md.Attribute("label")
		out = append(out, &remoteTrack{
			id:     fields[1],
			kind:   domain.TrackKind(md.MediaName.Media),
			stream: stream,
			label:  label,
		})
	}
	return out, nil
}
