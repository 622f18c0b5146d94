package core

// Frame is a raw payload pushed to an observer.
type Frame []byte

// SignalConnection is the outbound channel to one connected observer.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
