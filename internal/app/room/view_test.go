package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/connectra/meeting-client/internal/app/messaging"
	"github.com/connectra/meeting-client/internal/app/session"
	"github.com/connectra/meeting-client/internal/core/coretest"
	"github.com/connectra/meeting-client/internal/domain"
)

func joinedSnapshot(remote ...domain.RemoteParticipant) session.Snapshot {
	engine := coretest.NewEngine()
	mic, _ := engine.CreateMicrophoneTrack(context.Background())
	cam, _ := engine.CreateCameraTrack(context.Background())
	return session.Snapshot{
		MeetingID: testMeeting,
		State:     session.Joined,
		Joined:    true,
		User:      &domain.CurrentUser{UID: "42", UserName: "Sam", IsHost: false},
		Local:     domain.LocalMediaState{AudioTrack: mic, VideoTrack: cam},
		Remote:    remote,
	}
}

func TestBuildViewLabelsAndLayout(t *testing.T) {
	in := ViewInput{
		Session: joinedSnapshot(
			domain.RemoteParticipant{UID: "7", HasVideo: true},
			domain.RemoteParticipant{UID: "8", HasAudio: true},
			domain.RemoteParticipant{UID: "9", DisplayName: "Jane Doe"},
		),
		Meeting:  liveMeeting(),
		Presence: map[domain.UID]messaging.ParticipantInfo{"8": {UID: "8", DisplayName: "Ana", ScreenSharing: true}},
		Hands:    []messaging.RaisedHand{{UID: "9", Name: "Jane Doe"}},
		Elapsed:  75 * time.Second,
	}
	v := BuildView(in)

	require.Len(t, v.Participants, 4)
	require.Equal(t, ParticipantView{UID: "42", Name: "Sam", IsLocal: true, HasVideo: true, HasAudio: true}, v.Participants[0])
	require.Equal(t, "Dr. Lee (Host)", v.Participants[1].Name)
	require.True(t, v.Participants[1].IsHost)
	require.Equal(t, "Ana", v.Participants[2].Name)
	require.Equal(t, "Jane Doe", v.Participants[3].Name)
	require.True(t, v.Participants[3].HandRaised)
	require.Equal(t, LayoutSpotlight, v.Layout)
	require.NotNil(t, v.RemoteScreenSharer)
	require.Equal(t, domain.UID("8"), v.RemoteScreenSharer.UID)
	require.Equal(t, "1:15", v.Elapsed)

	require.Equal(t, v, BuildView(in), "same input, same view")
}

func TestBuildViewGridUnlessSharing(t *testing.T) {
	snap := joinedSnapshot(domain.RemoteParticipant{UID: "7"})
	v := BuildView(ViewInput{Session: snap})
	require.Equal(t, LayoutGrid, v.Layout)
	require.Equal(t, "Lecturer (Host)", v.Participants[1].Name)

	snap.Local.ScreenSharing = true
	snap.Local.CameraOff = true
	v = BuildView(ViewInput{Session: snap})
	require.Equal(t, LayoutSpotlight, v.Layout)
	require.True(t, v.Participants[0].HasVideo)
}

func TestBuildViewHostViewer(t *testing.T) {
	snap := joinedSnapshot(domain.RemoteParticipant{UID: "7"})
	snap.User.IsHost = true
	snap.Local.MicMuted = true
	snap.Local.CameraOff = true

	v := BuildView(ViewInput{Session: snap})
	require.Equal(t, "Sam (Host)", v.Participants[0].Name)
	require.False(t, v.Participants[0].HasAudio)
	require.False(t, v.Participants[0].HasVideo)
	require.Equal(t, "Participant 1", v.Participants[1].Name)
}

func TestBuildViewBeforeJoin(t *testing.T) {
	v := BuildView(ViewInput{
		Session:      session.Snapshot{MeetingID: testMeeting, State: session.Joining, Loading: true},
		UserName:     "Dr. Lee",
		ViewerIsHost: true,
	})
	require.Equal(t, "Dr. Lee (Host)", v.Participants[0].Name)
	require.True(t, v.Loading)
	require.Len(t, v.Participants, 1)
}

func TestFormatElapsed(t *testing.T) {
	require.Equal(t, "0:00", FormatElapsed(0))
	require.Equal(t, "0:09", FormatElapsed(9*time.Second))
	require.Equal(t, "59:59", FormatElapsed(59*time.Minute+59*time.Second))
	require.Equal(t, "1:00:00", FormatElapsed(time.Hour))
	require.Equal(t, "2:03:04", FormatElapsed(2*time.Hour+3*time.Minute+4*time.Second))
	require.Equal(t, "0:00", FormatElapsed(-time.Second))
}
