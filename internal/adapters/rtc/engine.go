// Package rtc binds the session core to a pion/webrtc media stack. Local
// capture is file backed: IVF/VP8 for camera and screen, Ogg/Opus for the
// microphone.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/domain"
)

// ErrNoDevice reports a capture device that is not configured.
var ErrNoDevice = errors.New("capture device not available")

type Config struct {
	SignalURL  string
	ICEServers []string
	// CameraFile and MicrophoneFile are looped for as long as the track
	// lives.
	CameraFile     string
	MicrophoneFile string
	// ScreenDir holds one IVF file per shareable source. A screen share
	// ends when its file is exhausted.
	ScreenDir string
	// Synthetic replaces missing capture files with placeholder samples.
	Synthetic bool
}

type Engine struct {
	cfg   Config
	sinks func(uid domain.UID, kind domain.MediaKind) PacketSink
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// SetSinks routes played remote tracks. Without it packets are discarded.
func (e *Engine) SetSinks(fn func(uid domain.UID, kind domain.MediaKind) PacketSink) {
	e.sinks = fn
}

func (e *Engine) sinkFor(uid domain.UID, kind domain.MediaKind) PacketSink {
	if e.sinks == nil {
		return nil
	}
	return e.sinks(uid, kind)
}

func (e *Engine) NewClient(appID string) (core.Client, error) {
	if e.cfg.SignalURL == "" {
		return nil, fmt.Errorf("new client: signal url not configured")
	}
	return newClient(appID, e), nil
}

func (e *Engine) CreateMicrophoneTrack(ctx context.Context) (core.LocalTrack, error) {
	factory, err := e.factory(e.cfg.MicrophoneFile, openOgg, 20*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("microphone: %w", err)
	}
	return e.newTrack(ctx, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		domain.MediaAudio, "mic", factory, true)
}

func (e *Engine) CreateCameraTrack(ctx context.Context) (core.LocalTrack, error) {
	factory, err := e.factory(e.cfg.CameraFile, openIVF, 33*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	return e.newTrack(ctx, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		domain.MediaVideo, "camera", factory, true)
}

// CreateScreenTrack captures the source with sourceID, or the first source
// when sourceID is empty.
func (e *Engine) CreateScreenTrack(ctx context.Context, sourceID string) (core.LocalTrack, error) {
	var factory sourceFactory
	switch {
	case e.cfg.ScreenDir != "":
		sources, err := FileScreenSources{Dir: e.cfg.ScreenDir}.ListScreenSources(ctx)
		if err != nil {
			return nil, fmt.Errorf("screen: %w", err)
		}
		path, err := pickSource(e.cfg.ScreenDir, sources, sourceID)
		if err != nil {
			return nil, fmt.Errorf("screen: %w", err)
		}
		factory = fileFactory(path, openIVF)
	case e.cfg.Synthetic:
		// Ten seconds of placeholder frames.
		factory = nullFactory(300, 33*time.Millisecond)
	default:
		return nil, fmt.Errorf("screen: %w", ErrNoDevice)
	}
	return e.newTrack(ctx, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		domain.MediaVideo, "screen", factory, false)
}

func pickSource(dir string, sources []core.ScreenSource, sourceID string) (string, error) {
	if len(sources) == 0 {
		return "", ErrNoDevice
	}
	if sourceID == "" {
		return filepath.Join(dir, sources[0].ID), nil
	}
	for _, s := range sources {
		if s.ID == sourceID {
			return filepath.Join(dir, s.ID), nil
		}
	}
	return "", fmt.Errorf("source %q: %w", sourceID, ErrNoDevice)
}

func (e *Engine) factory(path string, open func(string) (sampleSource, error), every time.Duration) (sourceFactory, error) {
	switch {
	case path != "":
		return fileFactory(path, open), nil
	case e.cfg.Synthetic:
		return nullFactory(0, every), nil
	default:
		return nil, ErrNoDevice
	}
}

func (e *Engine) newTrack(ctx context.Context, codec webrtc.RTPCodecCapability, kind domain.MediaKind, prefix string, factory sourceFactory, loop bool) (core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := prefix + "-" + uuid.NewString()
	// Subscribers see the track under the publisher's uid as stream id.
	sample, err := webrtc.NewTrackLocalStaticSample(codec, id, id)
	if err != nil {
		return nil, err
	}
	t := newLocalTrack(sample, kind, factory, loop)
	if err := t.start(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "adapters.rtc").Str("track", id).Str("kind", string(kind)).Msg("capture started")
	return t, nil
}
