package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/domain"
)

// Peer wraps one PeerConnection and its application callbacks.
type Peer struct {
	pc     *webrtc.PeerConnection
	uid    domain.UID
	ctx    context.Context
	cancel context.CancelFunc

	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onClosed func()
}

// WebRTCConfig builds the peer configuration. No servers means host
// candidates only.
func WebRTCConfig(iceServers []string) webrtc.Configuration {
	var cfg webrtc.Configuration
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return cfg
}

func NewPeer(cfg webrtc.Configuration, uid domain.UID) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Peer{pc: pc, uid: uid, ctx: ctx, cancel: cancel}, nil
}

// Start installs the connection callbacks. Register OnICECandidate,
// OnTrack and OnClosed before calling it.
func (p *Peer) Start(ctx context.Context) {
	context.AfterFunc(ctx, p.cancel)

	p.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("uid", p.uid.String()).Str("ice_state", s.String()).Msg("ICE state")
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("uid", p.uid.String()).Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			p.cancel()
			if p.onClosed != nil {
				p.onClosed()
			}
		}
	})

	p.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && p.onICE != nil {
			p.onICE(cand.ToJSON())
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "adapters.rtc").
			Str("uid", p.uid.String()).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if p.onTrack != nil {
			p.onTrack(track, receiver)
		}
	})
}

// ApplyOfferAndCreateAnswer answers a remote offer once ICE gathering is
// complete.
func (p *Peer) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete
	return p.pc.LocalDescription(), nil
}

// CreateOffer sets and returns a local offer with every candidate gathered.
func (p *Peer) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gatherComplete
	return p.pc.LocalDescription(), nil
}

func (p *Peer) ApplyAnswer(answer webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(answer)
}

func (p *Peer) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(ci)
}

func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) { p.onICE = fn }

func (p *Peer) OnTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	p.onTrack = fn
}

func (p *Peer) OnClosed(fn func()) { p.onClosed = fn }

// AddLocalTrack attaches track and drains its RTCP so interceptors run.
func (p *Peer) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (p *Peer) RemoveTrack(sender *webrtc.RTPSender) error {
	return p.pc.RemoveTrack(sender)
}

// Done is closed once the connection failed or closed.
func (p *Peer) Done() <-chan struct{} { return p.ctx.Done() }

func (p *Peer) SignalingState() webrtc.SignalingState { return p.pc.SignalingState() }

func (p *Peer) Close() {
	p.cancel()
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "adapters.rtc").Str("uid", p.uid.String()).Msg("close error")
	} else {
		log.Info().Str("module", "adapters.rtc").Str("uid", p.uid.String()).Msg("closed")
	}
}
