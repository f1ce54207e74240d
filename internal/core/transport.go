package core

import "context"

// Frame is a raw side-channel payload.
type Frame []byte

// Transport is a best-effort pub/sub for side-channel frames.
// Subscribe's channel is closed when ctx ends or the transport closes.
type Transport interface {
	Publish(ctx context.Context, channel string, f Frame) error
	Subscribe(ctx context.Context, channel string) (<-chan Frame, error)
	Close() error
}

// SignalConnection abstracts a per-peer messaging endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
