package memory

import (
	"fmt"
	"strings"

	"github.com/pion/ice/v4"

	"github.com/dkeye/loopcall/internal/domain"
)

// hostCandidate builds a loopback host candidate in the same form browsers
// put into RTCIceCandidate.candidate.
func hostCandidate(port int) (domain.Candidate, error) {
	c, err := ice.NewCandidateHost(&ice.CandidateHostConfig{
		Network:   "udp",
		Address:   "127.0.0.1",
		Port:      port,
		Component: 1,
	})
	if err != nil {
		return domain.Candidate{}, err
	}
	mid := "0"
	var index uint16
	return domain.Candidate{
		Candidate:     "candidate:" + c.Marshal(),
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}, nil
}

func validateCandidate(c domain.Candidate) error {
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(c.Candidate, "candidate:")); err != nil {
		return fmt.Errorf("malformed candidate %q: %w", c.Candidate, err)
	}
	return nil
}
