// Package messaging implements the meeting side-channel: presence and
// control facts that the media engine does not carry.
package messaging

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/domain"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrNotConnected       = errors.New("side-channel not connected")
)

type Type string

const (
	TypeParticipantInfo Type = "PARTICIPANT_INFO"
	TypeMuteAll         Type = "MUTE_ALL"
	TypeHandRaise       Type = "HAND_RAISE"
)

// Message is the closed set of side-channel payloads.
type Message interface {
	Type() Type
	isMessage()
}

type ParticipantInfo struct {
	UID           domain.UID `json:"uid"`
	DisplayName   string     `json:"displayName"`
	IsHost        bool       `json:"isHost"`
	ScreenSharing bool       `json:"isScreenSharing"`
}

type MuteAll struct {
	Muted      bool   `json:"isMuted"`
	IssuerName string `json:"issuerName"`
}

type HandRaise struct {
	UID    domain.UID `json:"uid"`
	Name   string     `json:"name"`
	Raised bool       `json:"raised"`
}

func (ParticipantInfo) Type() Type { return TypeParticipantInfo }
func (MuteAll) Type() Type         { return TypeMuteAll }
func (HandRaise) Type() Type       { return TypeHandRaise }

func (ParticipantInfo) isMessage() {}
func (MuteAll) isMessage()         {}
func (HandRaise) isMessage()       {}

// Envelope is a decoded frame: routing header plus payload.
type Envelope struct {
	ID        string
	Channel   string
	From      domain.UID
	Timestamp int64
	Message   Message
}

type wireEnvelope struct {
	Type      Type            `json:"type"`
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	From      domain.UID      `json:"from,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func Encode(env Envelope) (core.Frame, error) {
	if env.Message == nil {
		return nil, ErrMalformedMessage
	}
	data, err := json.Marshal(env.Message)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Message.Type(), err)
	}
	b, err := json.Marshal(wireEnvelope{
		Type:      env.Message.Type(),
		ID:        env.ID,
		Channel:   env.Channel,
		From:      env.From,
		Timestamp: env.Timestamp,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// Decode parses a frame. Unknown type tags are rejected with
// ErrUnknownMessageType.
func Decode(f core.Frame) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(f, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	env := Envelope{ID: w.ID, Channel: w.Channel, From: w.From, Timestamp: w.Timestamp}

	var msg Message
	switch w.Type {
	case TypeParticipantInfo:
		var m ParticipantInfo
		if err := decodeData(w.Data, &m); err != nil {
			return env, err
		}
		if m.UID.IsZero() {
			return env, fmt.Errorf("%w: participant info without uid", ErrMalformedMessage)
		}
		msg = m
	case TypeMuteAll:
		var m MuteAll
		if err := decodeData(w.Data, &m); err != nil {
			return env, err
		}
		msg = m
	case TypeHandRaise:
		var m HandRaise
		if err := decodeData(w.Data, &m); err != nil {
			return env, err
		}
		if m.UID.IsZero() {
			return env, fmt.Errorf("%w: hand raise without uid", ErrMalformedMessage)
		}
		msg = m
	default:
		return env, fmt.Errorf("%w: %q", ErrUnknownMessageType, w.Type)
	}
	env.Message = msg
	return env, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedMessage)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}
