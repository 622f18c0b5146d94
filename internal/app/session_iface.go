package app

import (
	"context"

	"github.com/dkeye/loopcall/internal/domain"
)

// Session is the consumer-facing handle of a loopback call, as used by the
// HTTP and WebSocket adapters.
type Session interface {
	Start(ctx context.Context) error
	Restart(ctx context.Context) error
	Close() error

	AddTracks(ctx context.Context) error
	RemoveTracks(ctx context.Context) error
	SelectCamera(ctx context.Context, deviceID string) error
	Renegotiate(ctx context.Context, offerer domain.Side) error
	Devices(ctx context.Context) ([]domain.DeviceInfo, error)

	State() SessionState
	Subscribe() (<-chan SessionState, func())
}
