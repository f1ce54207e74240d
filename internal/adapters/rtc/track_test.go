package rtc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/domain"
)

func syntheticEngine() *Engine {
	return NewEngine(Config{SignalURL: "ws://unused", Synthetic: true})
}

func TestLocalTrackEnableAndClose(t *testing.T) {
	e := syntheticEngine()
	tr, err := e.CreateMicrophoneTrack(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.MediaAudio, tr.Kind())
	require.True(t, tr.Enabled())

	require.NoError(t, tr.SetEnabled(false))
	require.False(t, tr.Enabled())
	require.Equal(t, TrackStateMuted, tr.(*LocalTrack).GetState())
	require.NoError(t, tr.SetEnabled(true))
	require.True(t, tr.Enabled())

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	require.ErrorIs(t, tr.SetEnabled(true), ErrTrackClosed)
	require.Equal(t, TrackStateDelete, tr.(*LocalTrack).GetState())
}

func TestLocalTrackEndsWithSource(t *testing.T) {
	sample, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "screen", "screen")
	require.NoError(t, err)
	tr := newLocalTrack(sample, domain.MediaVideo, nullFactory(3, time.Millisecond), false)
	require.NoError(t, tr.start())
	defer tr.Close()

	ended := make(chan struct{})
	tr.OnEnded(func() { close(ended) })
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("track did not end")
	}

	late := make(chan struct{})
	tr.OnEnded(func() { close(late) })
	<-late
}

func TestLoopingTrackKeepsRunning(t *testing.T) {
	sample, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "mic", "mic")
	require.NoError(t, err)
	tr := newLocalTrack(sample, domain.MediaAudio, nullFactory(2, time.Millisecond), true)
	require.NoError(t, tr.start())

	ended := make(chan struct{})
	tr.OnEnded(func() { close(ended) })
	select {
	case <-ended:
		t.Fatal("looping track ended")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, tr.Close())
}

func TestMissingDevices(t *testing.T) {
	e := NewEngine(Config{})
	_, err := e.CreateCameraTrack(context.Background())
	require.ErrorIs(t, err, ErrNoDevice)
	_, err = e.CreateMicrophoneTrack(context.Background())
	require.ErrorIs(t, err, ErrNoDevice)
	_, err = e.CreateScreenTrack(context.Background(), "")
	require.ErrorIs(t, err, ErrNoDevice)
	_, err = e.NewClient("app")
	require.Error(t, err)

	e = NewEngine(Config{CameraFile: filepath.Join(t.TempDir(), "missing.ivf")})
	_, err = e.CreateCameraTrack(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileScreenSources(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.ivf", "a_window.ivf", "a_window.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.ivf"), 0o755))

	sources, err := FileScreenSources{Dir: dir}.ListScreenSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, core.ScreenSource{ID: "a_window.ivf", Name: "a window", Thumbnail: "data:image/png;base64,eA=="}, sources[0])
	require.Equal(t, "b.ivf", sources[1].ID)
	require.Empty(t, sources[1].Thumbnail)

	path, err := pickSource(dir, sources, "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a_window.ivf"), path)
	path, err = pickSource(dir, sources, "b.ivf")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "b.ivf"), path)
	_, err = pickSource(dir, sources, "../etc/passwd")
	require.ErrorIs(t, err, ErrNoDevice)
}
