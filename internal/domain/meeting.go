package domain

import "time"

type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "SCHEDULED"
	MeetingLive      MeetingStatus = "LIVE"
	MeetingEnded     MeetingStatus = "ENDED"
	MeetingCancelled MeetingStatus = "CANCELLED"
)

// Terminal reports whether the meeting can no longer be attended.
func (s MeetingStatus) Terminal() bool {
	return s == MeetingEnded || s == MeetingCancelled
}

type Meeting struct {
	ID                 string        `json:"meetingId"`
	Title              string        `json:"title"`
	Description        string        `json:"description,omitempty"`
	ScheduledStartTime time.Time     `json:"scheduledStartTime"`
	ScheduledEndTime   time.Time     `json:"scheduledEndTime"`
	ActualStartTime    *time.Time    `json:"actualStartTime,omitempty"`
	ActualEndTime      *time.Time    `json:"actualEndTime,omitempty"`
	Status             MeetingStatus `json:"status"`
	CreatedByID        int64         `json:"createdById"`
	CreatedByName      string        `json:"createdByName"`
	TargetDegree       string        `json:"targetDegree,omitempty"`
	TargetBatch        int           `json:"targetBatch,omitempty"`
}

// RosterEntry is backend-sourced identity for a channel UID. It never
// carries audio/video flags.
type RosterEntry struct {
	UID         UID    `json:"agoraUid"`
	DisplayName string `json:"displayName"`
	IsHost      bool   `json:"isHost"`
}
