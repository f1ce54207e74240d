package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/domain"
)

// PacketSink receives the RTP packets of a playing remote track.
type PacketSink interface {
	WriteRTP(pkt *rtp.Packet) error
}

// RemoteTrack is a received track. Play drains it into the sink; without
// a sink packets are counted and discarded.
type RemoteTrack struct {
	Src  *webrtc.TrackRemote
	uid  domain.UID
	kind domain.MediaKind
	sink PacketSink

	packets atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newRemoteTrack(src *webrtc.TrackRemote, uid domain.UID, kind domain.MediaKind, sink PacketSink) *RemoteTrack {
	return &RemoteTrack{Src: src, uid: uid, kind: kind, sink: sink}
}

func (r *RemoteTrack) ID() string             { return r.Src.ID() }
func (r *RemoteTrack) Kind() domain.MediaKind { return r.kind }
func (r *RemoteTrack) UID() domain.UID        { return r.uid }
func (r *RemoteTrack) Packets() uint64        { return r.packets.Load() }

func (r *RemoteTrack) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.loop(ctx)
	return nil
}

func (r *RemoteTrack) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *RemoteTrack) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.rtc").Str("uid", r.uid.String()).Str("kind", string(r.kind)).Msg("remote track read stopped")
			return
		}
		r.packets.Add(1)
		if r.sink == nil {
			continue
		}
		if err := r.sink.WriteRTP(pkt); err != nil {
			log.Warn().Err(err).Str("module", "adapters.rtc").Str("uid", r.uid.String()).Msg("sink write failed, stopping playback")
			return
		}
	}
}
