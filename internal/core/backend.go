package core

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/backend.go -package=mocks . SessionGateway,MeetingService,AttendanceRecorder

import (
	"context"

	"github.com/connectra/meeting-client/internal/domain"
)

// SessionGateway issues and releases media session descriptors.
type SessionGateway interface {
	JoinSession(ctx context.Context, meetingID string) (*domain.MediaSessionDescriptor, error)
	LeaveSession(ctx context.Context, meetingID string) error
}

type MeetingService interface {
	GetMeeting(ctx context.Context, meetingID string) (*domain.Meeting, error)
	Roster(ctx context.Context, meetingID string) ([]domain.RosterEntry, error)
}

type AttendanceRecorder interface {
	RecordJoin(ctx context.Context, meetingID string) error
	RecordLeave(ctx context.Context, meetingID string) error
}

// ScreenSource is a shareable screen or window exposed by a desktop shell.
type ScreenSource struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail"`
}

type ScreenSourceLister interface {
	ListScreenSources(ctx context.Context) ([]ScreenSource, error)
}
