package domain

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Track is the smallest handle shared by local and remote tracks.
type Track interface {
	ID() string
	Kind() MediaKind
}

// MediaSessionDescriptor is issued by the backend once per join attempt.
// Tokens are never reused across joins.
type MediaSessionDescriptor struct {
	AppID       string `json:"appId"`
	ChannelName string `json:"channelName"`
	Token       string `json:"agoraToken"`
	UID         UID    `json:"uid"`
	IsHost      bool   `json:"isHost"`
	UserName    string `json:"userName"`
}

// RemoteParticipant is one UID currently visible in the channel.
type RemoteParticipant struct {
	UID           UID    `json:"uid"`
	HasVideo      bool   `json:"hasVideo"`
	HasAudio      bool   `json:"hasAudio"`
	VideoTrack    Track  `json:"-"`
	AudioTrack    Track  `json:"-"`
	DisplayName   string `json:"displayName,omitempty"`
	IsHost        bool   `json:"isHost,omitempty"`
	ScreenSharing bool   `json:"screenSharing,omitempty"`
}

// LocalMediaState holds what the local participant publishes. VideoTrack is
// either the camera or the screen, never both.
type LocalMediaState struct {
	MicMuted      bool  `json:"micMuted"`
	CameraOff     bool  `json:"cameraOff"`
	ScreenSharing bool  `json:"screenSharing"`
	VideoTrack    Track `json:"-"`
	AudioTrack    Track `json:"-"`
}
