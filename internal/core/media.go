package core

import (
	"context"

	"github.com/connectra/meeting-client/internal/domain"
)

type EventType int

const (
	UserJoined EventType = iota
	UserPublished
	UserUnpublished
	UserLeft
)

func (t EventType) String() string {
	switch t {
	case UserJoined:
		return "user-joined"
	case UserPublished:
		return "user-published"
	case UserUnpublished:
		return "user-unpublished"
	case UserLeft:
		return "user-left"
	default:
		return "unknown"
	}
}

// Event is a remote-user lifecycle notification. Kind is only set for
// publish/unpublish.
type Event struct {
	Type EventType
	UID  domain.UID
	Kind domain.MediaKind
}

// Engine is the media engine binding: it creates clients and local captures.
type Engine interface {
	NewClient(appID string) (Client, error)
	CreateMicrophoneTrack(ctx context.Context) (LocalTrack, error)
	CreateCameraTrack(ctx context.Context) (LocalTrack, error)
	// CreateScreenTrack binds sourceID when set, otherwise the platform picker.
	CreateScreenTrack(ctx context.Context, sourceID string) (LocalTrack, error)
}

// Client is one connection to a media channel.
// Events is valid from construction, before Join, and is closed after Leave.
type Client interface {
	Events() <-chan Event
	Join(ctx context.Context, channel, token string, uid domain.UID) error
	Publish(ctx context.Context, tracks ...LocalTrack) error
	Unpublish(ctx context.Context, tracks ...LocalTrack) error
	Subscribe(ctx context.Context, uid domain.UID, kind domain.MediaKind) (RemoteTrack, error)
	Leave(ctx context.Context) error
}

// LocalTrack is a capture owned by the caller; the caller must Close it.
type LocalTrack interface {
	domain.Track
	SetEnabled(enabled bool) error
	Enabled() bool
	Close() error
	// OnEnded fires once when the capture is stopped outside the app.
	OnEnded(fn func())
}

type RemoteTrack interface {
	domain.Track
	UID() domain.UID
	Play() error
	Stop()
}
