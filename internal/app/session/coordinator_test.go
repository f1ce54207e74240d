package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/core/coretest"
	"github.com/connectra/meeting-client/internal/core/mocks"
	"github.com/connectra/meeting-client/internal/domain"
)

const testMeeting = "5b0e7c2a-meeting"

func testDescriptor() *domain.MediaSessionDescriptor {
	return &domain.MediaSessionDescriptor{
		AppID:       "app",
		ChannelName: "meeting-5b0e",
		Token:       "tok",
		UID:         domain.NumericUID(42),
		IsHost:      false,
		UserName:    "Sam Student",
	}
}

func testOptions() Options {
	return Options{JoinTimeout: time.Second, DeviceTimeout: time.Second, LeaveTimeout: time.Second}
}

func joinedCoordinator(t *testing.T) (*Coordinator, *coretest.Engine, *coretest.Client, *mocks.MockSessionGateway) {
	t.Helper()
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockSessionGateway(ctrl)
	gw.EXPECT().JoinSession(gomock.Any(), testMeeting).Return(testDescriptor(), nil)

	engine := coretest.NewEngine()
	c := New(testMeeting, gw, engine, testOptions())
	require.NoError(t, c.Join(context.Background()))
	return c, engine, engine.LastClient(), gw
}

func remoteByUID(s Snapshot, uid domain.UID) (domain.RemoteParticipant, bool) {
	for _, p := range s.Remote {
		if p.UID == uid {
			return p, true
		}
	}
	return domain.RemoteParticipant{}, false
}

func TestJoinPublishesAcquiredTracks(t *testing.T) {
	c, engine, client, _ := joinedCoordinator(t)

	snap := c.Snapshot()
	require.True(t, snap.Joined)
	require.False(t, snap.Loading)
	require.Nil(t, snap.Err)
	require.Equal(t, &domain.CurrentUser{UID: "42", UserName: "Sam Student"}, snap.User)

	require.Equal(t, "app", client.AppID)
	require.Equal(t, "meeting-5b0e", client.Channel)
	require.Equal(t, "tok", client.Token)
	require.Equal(t, domain.UID("42"), client.UID)
	require.Len(t, client.Published(), 2)
	require.Equal(t, 2, engine.OpenTracks())
	require.NotNil(t, snap.Local.AudioTrack)
	require.NotNil(t, snap.Local.VideoTrack)
}

func TestJoinWithoutCameraStillJoins(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockSessionGateway(ctrl)
	gw.EXPECT().JoinSession(gomock.Any(), testMeeting).Return(testDescriptor(), nil)

	engine := coretest.NewEngine()
	engine.CamErr = errors.New("NotAllowedError: Permission denied")
	c := New(testMeeting, gw, engine, testOptions())

	require.NoError(t, c.Join(context.Background()))
	snap := c.Snapshot()
	require.True(t, snap.Joined)
	require.NotNil(t, snap.Local.AudioTrack)
	require.Nil(t, snap.Local.VideoTrack)

	published := engine.LastClient().Published()
	require.Len(t, published, 1)
	for _, tr := range published {
		require.Equal(t, domain.MediaAudio, tr.Kind())
	}

	_, err := c.ToggleCam(context.Background())
	require.ErrorIs(t, err, ErrNoTrack)
}

func TestJoinGatewayFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockSessionGateway(ctrl)
	gw.EXPECT().JoinSession(gomock.Any(), testMeeting).Return(nil, errors.New("Network Error"))

	engine := coretest.NewEngine()
	c := New(testMeeting, gw, engine, testOptions())

	err := c.Join(context.Background())
	var je *JoinError
	require.ErrorAs(t, err, &je)
	require.Equal(t, KindNetwork, je.Kind)

	snap := c.Snapshot()
	require.False(t, snap.Joined)
	require.Equal(t, Left, snap.State)
	require.Equal(t, je, snap.Err)
	require.Equal(t, "Network error. Please check your internet connection.", snap.Err.Message())
	require.Nil(t, engine.LastClient())
	require.Zero(t, engine.OpenTracks())
}

func TestJoinDuplicateSessionReleasesClient(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockSessionGateway(ctrl)
	gw.EXPECT().JoinSession(gomock.Any(), testMeeting).Return(testDescriptor(), nil)
	gw.EXPECT().LeaveSession(gomock.Any(), testMeeting).Return(nil)

	engine := coretest.NewEngine()
	engine.JoinErr = errors.New("AgoraRTCError UID_CONFLICT: uid conflict")
	c := New(testMeeting, gw, engine, testOptions())

	err := c.Join(context.Background())
	var je *JoinError
	require.ErrorAs(t, err, &je)
	require.Equal(t, KindDuplicateSession, je.Kind)
	require.True(t, engine.LastClient().Left())
	require.Zero(t, engine.OpenTracks())
	require.False(t, c.Snapshot().Joined)
}

func TestJoinIsNotReentrant(t *testing.T) {
	c, engine, _, _ := joinedCoordinator(t)

	require.NoError(t, c.Join(context.Background()))
	require.Len(t, engine.Clients, 1)
	require.Equal(t, Joined, c.State())
}

func TestLeaveWhileJoiningReleasesEverything(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockSessionGateway(ctrl)
	gw.EXPECT().JoinSession(gomock.Any(), testMeeting).Return(testDescriptor(), nil)
	gw.EXPECT().LeaveSession(gomock.Any(), testMeeting).Return(nil)

	engine := coretest.NewEngine()
	entered := make(chan struct{})
	engine.JoinHook = func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}
	c := New(testMeeting, gw, engine, Options{JoinTimeout: time.Minute, DeviceTimeout: time.Second, LeaveTimeout: time.Second})

	errCh := make(chan error, 1)
	go func() { errCh <- c.Join(context.Background()) }()
	<-entered
	require.Equal(t, Joining, c.State())

	c.Leave(context.Background())

	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	snap := c.Snapshot()
	require.Equal(t, Left, snap.State)
	require.Nil(t, snap.Err)
	require.True(t, engine.LastClient().Left())
	require.Zero(t, engine.OpenTracks())
}

func TestJoinTimeoutIsNetworkError(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockSessionGateway(ctrl)
	gw.EXPECT().JoinSession(gomock.Any(), testMeeting).DoAndReturn(
		func(ctx context.Context, _ string) (*domain.MediaSessionDescriptor, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	c := New(testMeeting, gw, coretest.NewEngine(), Options{JoinTimeout: 20 * time.Millisecond})
	err := c.Join(context.Background())
	var je *JoinError
	require.ErrorAs(t, err, &je)
	require.Equal(t, KindNetwork, je.Kind)
}

func TestLeaveIsIdempotent(t *testing.T) {
	c, engine, client, gw := joinedCoordinator(t)
	gw.EXPECT().LeaveSession(gomock.Any(), testMeeting).Return(nil).Times(1)

	client.Emit(core.Event{Type: core.UserJoined, UID: "7"})
	require.Eventually(t, func() bool { return len(c.Snapshot().Remote) == 1 }, time.Second, 5*time.Millisecond)

	c.Leave(context.Background())
	first := c.Snapshot()
	c.Leave(context.Background())
	second := c.Snapshot()

	require.Equal(t, first, second)
	require.Equal(t, Left, second.State)
	require.False(t, second.Joined)
	require.Empty(t, second.Remote)
	require.True(t, client.Left())
	require.Zero(t, engine.OpenTracks())
}

func TestLeaveSwallowsBackendFailure(t *testing.T) {
	c, _, client, gw := joinedCoordinator(t)
	gw.EXPECT().LeaveSession(gomock.Any(), testMeeting).Return(errors.New("503"))

	c.Leave(context.Background())
	require.Equal(t, Left, c.State())
	require.True(t, client.Left())
}

func TestLeaveBeforeJoin(t *testing.T) {
	c := New(testMeeting, mocks.NewMockSessionGateway(gomock.NewController(t)), coretest.NewEngine(), testOptions())
	c.Leave(context.Background())
	require.Equal(t, Left, c.State())
	require.NoError(t, c.Join(context.Background()))
	require.Equal(t, Left, c.State())
}

func TestRemoteEventTrace(t *testing.T) {
	c, _, client, _ := joinedCoordinator(t)
	uid := domain.UID("7")

	type flags struct{ video, audio, present bool }
	expect := func(want flags) {
		t.Helper()
		require.Eventually(t, func() bool {
			p, ok := remoteByUID(c.Snapshot(), uid)
			return ok == want.present && p.HasVideo == want.video && p.HasAudio == want.audio
		}, time.Second, 5*time.Millisecond)
	}

	client.Emit(core.Event{Type: core.UserJoined, UID: uid})
	expect(flags{present: true})

	client.Emit(core.Event{Type: core.UserPublished, UID: uid, Kind: domain.MediaAudio})
	expect(flags{present: true, audio: true})

	client.Emit(core.Event{Type: core.UserPublished, UID: uid, Kind: domain.MediaVideo})
	expect(flags{present: true, audio: true, video: true})

	client.Emit(core.Event{Type: core.UserUnpublished, UID: uid, Kind: domain.MediaAudio})
	expect(flags{present: true, video: true})

	client.Emit(core.Event{Type: core.UserLeft, UID: uid})
	expect(flags{})

	subs := client.Subscriptions()
	require.Len(t, subs, 2)
	require.Equal(t, domain.MediaAudio, subs[0].Kind())
	require.False(t, subs[0].Playing(), "audio stopped on unpublish")
}

func TestPublishBeforeJoinedUpserts(t *testing.T) {
	c, _, client, _ := joinedCoordinator(t)

	client.Emit(core.Event{Type: core.UserPublished, UID: "9", Kind: domain.MediaVideo})
	require.Eventually(t, func() bool {
		p, ok := remoteByUID(c.Snapshot(), "9")
		return ok && p.HasVideo && !p.HasAudio && p.VideoTrack != nil
	}, time.Second, 5*time.Millisecond)

	client.Emit(core.Event{Type: core.UserJoined, UID: "9"})
	client.Emit(core.Event{Type: core.UserJoined, UID: "10"})
	require.Eventually(t, func() bool { return len(c.Snapshot().Remote) == 2 }, time.Second, 5*time.Millisecond)

	p, _ := remoteByUID(c.Snapshot(), "9")
	require.True(t, p.HasVideo, "late user-joined keeps published state")
}

func TestRemoteAudioPlaysOnSubscribe(t *testing.T) {
	c, _, client, _ := joinedCoordinator(t)

	client.Emit(core.Event{Type: core.UserPublished, UID: "3", Kind: domain.MediaAudio})
	require.Eventually(t, func() bool {
		p, ok := remoteByUID(c.Snapshot(), "3")
		return ok && p.HasAudio
	}, time.Second, 5*time.Millisecond)

	subs := client.Subscriptions()
	require.Len(t, subs, 1)
	require.True(t, subs[0].Playing())
}

func TestToggleMicTwiceRestores(t *testing.T) {
	c, _, _, _ := joinedCoordinator(t)
	mic := c.Snapshot().Local.AudioTrack.(core.LocalTrack)

	muted, err := c.ToggleMic()
	require.NoError(t, err)
	require.True(t, muted)
	require.False(t, mic.Enabled())
	require.True(t, c.Snapshot().Local.MicMuted)

	muted, err = c.ToggleMic()
	require.NoError(t, err)
	require.False(t, muted)
	require.True(t, mic.Enabled())
	require.Same(t, mic, c.Snapshot().Local.AudioTrack.(core.LocalTrack))
}

func TestSetMicMutedIsIdempotent(t *testing.T) {
	c, _, _, _ := joinedCoordinator(t)

	muted, err := c.SetMicMuted(true)
	require.NoError(t, err)
	require.True(t, muted)
	muted, err = c.SetMicMuted(true)
	require.NoError(t, err)
	require.True(t, muted)
	require.True(t, c.Snapshot().Local.MicMuted)
}

func TestToggleCamKeepsTrack(t *testing.T) {
	c, engine, client, _ := joinedCoordinator(t)
	cam := c.Snapshot().Local.VideoTrack.(core.LocalTrack)

	off, err := c.ToggleCam(context.Background())
	require.NoError(t, err)
	require.True(t, off)
	require.False(t, cam.Enabled())

	off, err = c.ToggleCam(context.Background())
	require.NoError(t, err)
	require.False(t, off)
	require.True(t, cam.Enabled())
	require.Contains(t, client.Published(), cam.ID())
	require.Equal(t, 2, engine.OpenTracks())
}

func TestScreenShareRoundTripPreservesCamera(t *testing.T) {
	c, engine, client, _ := joinedCoordinator(t)
	cam := c.Snapshot().Local.VideoTrack.(core.LocalTrack)

	require.NoError(t, c.StartScreenShare(context.Background(), ""))
	snap := c.Snapshot()
	require.True(t, snap.Local.ScreenSharing)
	screen := snap.Local.VideoTrack.(core.LocalTrack)
	require.NotEqual(t, cam.ID(), screen.ID())
	require.NotContains(t, client.Published(), cam.ID())
	require.Contains(t, client.Published(), screen.ID())

	require.NoError(t, c.StopScreenShare(context.Background()))
	snap = c.Snapshot()
	require.False(t, snap.Local.ScreenSharing)
	require.Same(t, cam, snap.Local.VideoTrack.(core.LocalTrack))
	require.Contains(t, client.Published(), cam.ID())
	require.NotContains(t, client.Published(), screen.ID())
	require.True(t, screen.(*coretest.Track).Closed())
	require.Equal(t, 2, engine.OpenTracks())
}

func TestScreenShareWithCameraOffRestoresNothing(t *testing.T) {
	c, _, client, _ := joinedCoordinator(t)
	_, err := c.ToggleCam(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.StartScreenShare(context.Background(), ""))
	require.NoError(t, c.StopScreenShare(context.Background()))

	snap := c.Snapshot()
	require.Nil(t, snap.Local.VideoTrack)
	require.Len(t, client.Published(), 1)

	off, err := c.ToggleCam(context.Background())
	require.NoError(t, err)
	require.False(t, off)
	require.NotNil(t, c.Snapshot().Local.VideoTrack)
	require.Len(t, client.Published(), 2)
}

func TestCameraToggledDuringShareFollowsStop(t *testing.T) {
	c, _, client, _ := joinedCoordinator(t)
	cam := c.Snapshot().Local.VideoTrack.(core.LocalTrack)
	_, err := c.ToggleCam(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.StartScreenShare(context.Background(), ""))
	off, err := c.ToggleCam(context.Background())
	require.NoError(t, err)
	require.False(t, off)
	require.NotContains(t, client.Published(), cam.ID())

	require.NoError(t, c.StopScreenShare(context.Background()))
	snap := c.Snapshot()
	require.False(t, snap.Local.CameraOff)
	require.Same(t, cam, snap.Local.VideoTrack.(core.LocalTrack))
	require.Contains(t, client.Published(), cam.ID())
	require.True(t, cam.Enabled())
}

func TestCameraTurnedOffDuringShareStaysOff(t *testing.T) {
	c, _, client, _ := joinedCoordinator(t)
	cam := c.Snapshot().Local.VideoTrack.(core.LocalTrack)

	require.NoError(t, c.StartScreenShare(context.Background(), ""))
	off, err := c.ToggleCam(context.Background())
	require.NoError(t, err)
	require.True(t, off)

	require.NoError(t, c.StopScreenShare(context.Background()))
	snap := c.Snapshot()
	require.True(t, snap.Local.CameraOff)
	require.Nil(t, snap.Local.VideoTrack)
	require.NotContains(t, client.Published(), cam.ID())
}

func TestScreenShareGuards(t *testing.T) {
	c, engine, _, _ := joinedCoordinator(t)

	require.ErrorIs(t, c.StopScreenShare(context.Background()), ErrNotSharing)
	require.NoError(t, c.StartScreenShare(context.Background(), NativePickerSource))
	require.ErrorIs(t, c.StartScreenShare(context.Background(), "screen:1"), ErrAlreadySharing)
	require.Equal(t, []string{""}, engine.ScreenReqs)
}

func TestScreenShareRequiresJoin(t *testing.T) {
	c := New(testMeeting, mocks.NewMockSessionGateway(gomock.NewController(t)), coretest.NewEngine(), testOptions())
	require.ErrorIs(t, c.StartScreenShare(context.Background(), ""), ErrNotJoined)
}

func TestScreenShareEndedExternally(t *testing.T) {
	c, _, client, _ := joinedCoordinator(t)
	cam := c.Snapshot().Local.VideoTrack.(core.LocalTrack)

	require.NoError(t, c.StartScreenShare(context.Background(), "window:12"))
	screen := c.Snapshot().Local.VideoTrack.(*coretest.Track)
	screen.End()

	require.Eventually(t, func() bool { return !c.Snapshot().Local.ScreenSharing }, time.Second, 5*time.Millisecond)
	require.Contains(t, client.Published(), cam.ID())

	screen.End()
	require.False(t, c.Snapshot().Local.ScreenSharing)
}

func TestMergeRosterNeverCreates(t *testing.T) {
	c, _, client, _ := joinedCoordinator(t)

	client.Emit(core.Event{Type: core.UserJoined, UID: "7"})
	require.Eventually(t, func() bool { return len(c.Snapshot().Remote) == 1 }, time.Second, 5*time.Millisecond)

	roster := []domain.RosterEntry{
		{UID: "7", DisplayName: "Jane Doe", IsHost: true},
		{UID: "8", DisplayName: "Ghost"},
	}
	require.Equal(t, 1, c.MergeRoster(roster))
	p, ok := remoteByUID(c.Snapshot(), "7")
	require.True(t, ok)
	require.Equal(t, "Jane Doe", p.DisplayName)
	require.True(t, p.IsHost)
	require.Len(t, c.Snapshot().Remote, 1)

	client.Emit(core.Event{Type: core.UserLeft, UID: "7"})
	require.Eventually(t, func() bool { return len(c.Snapshot().Remote) == 0 }, time.Second, 5*time.Millisecond)
	require.Zero(t, c.MergeRoster(roster))
	require.Empty(t, c.Snapshot().Remote)
}

func TestWatchSignalsChanges(t *testing.T) {
	c, _, client, _ := joinedCoordinator(t)
	ch, stop := c.Watch()
	defer stop()

	client.Emit(core.Event{Type: core.UserJoined, UID: "11"})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
}
