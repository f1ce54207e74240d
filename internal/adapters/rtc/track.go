package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/domain"
)

var ErrTrackClosed = errors.New("track closed")

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// LocalTrack is a captured track published as samples. Muting stops
// sample writes without tearing the capture down.
type LocalTrack struct {
	Track *webrtc.TrackLocalStaticSample
	kind  domain.MediaKind
	state atomic.Int32

	// loop restarts the source at EOF; otherwise EOF ends the track.
	loop   bool
	source sourceFactory

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	onEnded   func()
	ended     bool
	endedOnce sync.Once
}

func newLocalTrack(track *webrtc.TrackLocalStaticSample, kind domain.MediaKind, source sourceFactory, loop bool) *LocalTrack {
	return &LocalTrack{Track: track, kind: kind, source: source, loop: loop}
}

// start opens the first source synchronously so device errors surface to
// the caller, then captures in the background.
func (t *LocalTrack) start() error {
	src, err := t.source()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.capture(ctx, src)
	return nil
}

func (t *LocalTrack) ID() string             { return t.Track.ID() }
func (t *LocalTrack) Kind() domain.MediaKind { return t.kind }

func (t *LocalTrack) GetState() TrackState { return TrackState(t.state.Load()) }

func (t *LocalTrack) SetEnabled(enabled bool) error {
	next := TrackStateMuted
	if enabled {
		next = TrackStateOk
	}
	for {
		cur := t.state.Load()
		if TrackState(cur) == TrackStateDelete {
			return ErrTrackClosed
		}
		if t.state.CompareAndSwap(cur, int32(next)) {
			return nil
		}
	}
}

func (t *LocalTrack) Enabled() bool { return t.GetState() == TrackStateOk }

func (t *LocalTrack) Close() error {
	if TrackState(t.state.Swap(int32(TrackStateDelete))) == TrackStateDelete {
		return nil
	}
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	return nil
}

// OnEnded registers fn for a capture that ends on its own. A track that
// already ended calls fn right away.
func (t *LocalTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	ended := t.ended
	t.mu.Unlock()
	if ended && fn != nil {
		fn()
	}
}

func (t *LocalTrack) end() {
	t.endedOnce.Do(func() {
		t.mu.Lock()
		t.ended = true
		fn := t.onEnded
		t.mu.Unlock()
		log.Info().Str("module", "adapters.rtc").Str("track", t.ID()).Msg("capture ended")
		if fn != nil {
			fn()
		}
	})
}

func (t *LocalTrack) capture(ctx context.Context, src sampleSource) {
	defer close(t.done)
	defer func() { _ = src.Close() }()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			return
		}
		sample, err := src.Next()
		if isEOF(err) {
			_ = src.Close()
			if !t.loop {
				t.end()
				return
			}
			if src, err = t.source(); err != nil {
				log.Error().Err(err).Str("module", "adapters.rtc").Str("track", t.ID()).Msg("reopen capture")
				t.end()
				return
			}
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.rtc").Str("track", t.ID()).Msg("read capture")
			t.end()
			return
		}

		if t.GetState() == TrackStateOk {
			if err := t.Track.WriteSample(sample); err != nil {
				log.Warn().Err(err).Str("module", "adapters.rtc").Str("track", t.ID()).Msg("write sample")
			}
		}

		timer.Reset(sample.Duration)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}
