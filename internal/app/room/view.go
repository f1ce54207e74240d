package room

import (
	"fmt"
	"time"

	"github.com/connectra/meeting-client/internal/app/messaging"
	"github.com/connectra/meeting-client/internal/app/roster"
	"github.com/connectra/meeting-client/internal/app/session"
	"github.com/connectra/meeting-client/internal/domain"
)

type Layout string

const (
	LayoutGrid      Layout = "grid"
	LayoutSpotlight Layout = "spotlight"
)

type ParticipantView struct {
	UID           domain.UID `json:"uid"`
	Name          string     `json:"name"`
	IsLocal       bool       `json:"isLocal"`
	IsHost        bool       `json:"isHost"`
	HasVideo      bool       `json:"hasVideo"`
	HasAudio      bool       `json:"hasAudio"`
	ScreenSharing bool       `json:"isScreenSharing"`
	HandRaised    bool       `json:"handRaised"`
}

type View struct {
	MeetingID          string                 `json:"meetingId"`
	Title              string                 `json:"title"`
	HostedBy           string                 `json:"hostedBy,omitempty"`
	Status             domain.MeetingStatus   `json:"status,omitempty"`
	State              session.State          `json:"state"`
	Joined             bool                   `json:"isJoined"`
	Loading            bool                   `json:"isLoading"`
	Error              string                 `json:"error,omitempty"`
	Participants       []ParticipantView      `json:"participants"`
	Layout             Layout                 `json:"layout"`
	RemoteScreenSharer *ParticipantView       `json:"remoteScreenSharer,omitempty"`
	Elapsed            string                 `json:"elapsed"`
	MuteAll            messaging.MuteAllState `json:"muteAll"`
	RaisedHands        []messaging.RaisedHand `json:"raisedHands"`
	SideChannel        bool                   `json:"sideChannel"`
	RosterDegraded     bool                   `json:"rosterDegraded"`
	Ended              bool                   `json:"ended"`
}

// ViewInput is everything the view is derived from.
type ViewInput struct {
	Session        session.Snapshot
	Meeting        *domain.Meeting
	UserName       string
	ViewerIsHost   bool
	Presence       map[domain.UID]messaging.ParticipantInfo
	Hands          []messaging.RaisedHand
	MuteAll        messaging.MuteAllState
	SideChannel    bool
	Elapsed        time.Duration
	RosterDegraded bool
	Ended          bool
}

// BuildView derives the renderable room state. It is pure: the same input
// always yields the same view.
func BuildView(in ViewInput) View {
	snap := in.Session
	viewerIsHost := in.ViewerIsHost
	if snap.User != nil {
		viewerIsHost = snap.User.IsHost
	}

	v := View{
		MeetingID:      snap.MeetingID,
		State:          snap.State,
		Joined:         snap.Joined,
		Loading:        snap.Loading,
		Elapsed:        FormatElapsed(in.Elapsed),
		MuteAll:        in.MuteAll,
		RaisedHands:    in.Hands,
		SideChannel:    in.SideChannel,
		RosterDegraded: in.RosterDegraded,
		Ended:          in.Ended,
		Title:          "Meeting Room",
	}
	if snap.Err != nil {
		v.Error = snap.Err.Message()
	}
	if in.Meeting != nil {
		if in.Meeting.Title != "" {
			v.Title = in.Meeting.Title
		}
		v.HostedBy = in.Meeting.CreatedByName
		v.Status = in.Meeting.Status
	}

	raised := make(map[domain.UID]bool, len(in.Hands))
	for _, h := range in.Hands {
		raised[h.UID] = true
	}

	local := snap.Local
	self := ParticipantView{
		Name:          roster.LocalLabel(snap.User, in.UserName, viewerIsHost),
		IsLocal:       true,
		IsHost:        viewerIsHost,
		HasVideo:      (local.VideoTrack != nil && !local.CameraOff) || local.ScreenSharing,
		HasAudio:      local.AudioTrack != nil && !local.MicMuted,
		ScreenSharing: local.ScreenSharing,
	}
	if snap.User != nil {
		self.UID = snap.User.UID
		self.HandRaised = raised[snap.User.UID]
	}
	v.Participants = append(v.Participants, self)

	naming := roster.Naming{ViewerIsHost: viewerIsHost}
	if in.Meeting != nil {
		naming.CreatorName = in.Meeting.CreatedByName
	}
	naming.Presence = func(uid domain.UID) (string, bool, bool) {
		p, ok := in.Presence[uid]
		return p.DisplayName, p.IsHost, ok
	}

	for i, p := range snap.Remote {
		name, isHost := naming.Label(p, i)
		pv := ParticipantView{
			UID:           p.UID,
			Name:          name,
			IsHost:        isHost,
			HasVideo:      p.HasVideo,
			HasAudio:      p.HasAudio,
			ScreenSharing: p.ScreenSharing || in.Presence[p.UID].ScreenSharing,
			HandRaised:    raised[p.UID],
		}
		v.Participants = append(v.Participants, pv)
		if pv.ScreenSharing && v.RemoteScreenSharer == nil {
			sharer := pv
			v.RemoteScreenSharer = &sharer
		}
	}

	v.Layout = LayoutGrid
	if len(v.Participants) > 2 || local.ScreenSharing {
		v.Layout = LayoutSpotlight
	}
	return v
}

// FormatElapsed renders m:ss below an hour and h:mm:ss above.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
