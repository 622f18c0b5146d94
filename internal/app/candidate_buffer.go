package app

import (
	"errors"

	"github.com/dkeye/loopcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// CandidateSink is the destination of buffered candidates.
type CandidateSink interface {
	SignalingState() domain.SignalingState
	AddICECandidate(domain.Candidate) error
}

// CandidateBuffer queues candidates discovered by one side while the other
// side is not stable. It is not safe for concurrent use; the coordinator is
// its only writer.
type CandidateBuffer struct {
	from, to domain.Side
	queue    []domain.Candidate
}

func NewCandidateBuffer(from, to domain.Side) *CandidateBuffer {
	return &CandidateBuffer{from: from, to: to}
}

// Offer appends c unconditionally.
func (b *CandidateBuffer) Offer(c domain.Candidate) {
	b.queue = append(b.queue, c)
	log.Debug().
		Str("module", "app.candidates").
		Str("from", b.from.String()).
		Str("to", b.to.String()).
		Int("pending", len(b.queue)).
		Msg("candidate buffered")
}

func (b *CandidateBuffer) Len() int { return len(b.queue) }

// DrainInto delivers every queued candidate to dst in FIFO order and empties
// the buffer, but only if dst is stable right now; otherwise it does nothing.
// Candidates the sink rejects are not re-queued; their errors are joined.
func (b *CandidateBuffer) DrainInto(dst CandidateSink) (int, error) {
	if len(b.queue) == 0 {
		return 0, nil
	}
	if state := dst.SignalingState(); state != domain.SignalingStateStable {
		log.Debug().
			Str("module", "app.candidates").
			Str("to", b.to.String()).
			Str("state", state.String()).
			Msg("destination not stable, keep candidates")
		return 0, nil
	}

	pending := b.queue
	b.queue = nil

	var errs []error
	for _, c := range pending {
		if err := dst.AddICECandidate(c); err != nil {
			errs = append(errs, err)
		}
	}
	log.Debug().
		Str("module", "app.candidates").
		Str("from", b.from.String()).
		Str("to", b.to.String()).
		Int("drained", len(pending)).
		Int("failed", len(errs)).
		Msg("candidates drained")
	return len(pending), errors.Join(errs...)
}

// Clear drops everything queued and reports how many were dropped.
func (b *CandidateBuffer) Clear() int {
	n := len(b.queue)
	b.queue = nil
	return n
}
