package rtc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/domain"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrNotJoined    = errors.New("client not joined")
	ErrNotPublished = errors.New("remote track not published")
	ErrForeignTrack = errors.New("track not created by this engine")
	ErrJoinRejected = errors.New("join rejected")
	ErrUIDConflict  = errors.New("UID_CONFLICT")
)

type remoteKey struct {
	uid  domain.UID
	kind domain.MediaKind
}

// Client is one channel membership over the SFU signalling protocol.
type Client struct {
	appID  string
	engine *Engine

	// Events are queued without bound and delivered in order by pumpEvents.
	events chan core.Event
	wake   chan struct{}
	quit   chan struct{}

	mu      sync.Mutex
	closed  bool
	queue   []core.Event
	sig     *signalConn
	peer    *Peer
	uid     domain.UID
	joined  chan signalMessage
	answers chan signalMessage
	senders map[string]*webrtc.RTPSender
	remote  map[remoteKey]*RemoteTrack

	// negMu serializes offer/answer rounds.
	negMu sync.Mutex
}

func newClient(appID string, engine *Engine) *Client {
	c := &Client{
		appID:   appID,
		engine:  engine,
		events:  make(chan core.Event),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		joined:  make(chan signalMessage, 1),
		answers: make(chan signalMessage, 1),
		senders: make(map[string]*webrtc.RTPSender),
		remote:  make(map[remoteKey]*RemoteTrack),
	}
	go c.pumpEvents()
	return c
}

func (c *Client) Events() <-chan core.Event { return c.events }

func (c *Client) emit(ev core.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, ev)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// pumpEvents delivers queued events until Leave, then closes events.
func (c *Client) pumpEvents() {
	defer close(c.events)
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		if len(batch) == 0 {
			select {
			case <-c.quit:
				return
			case <-c.wake:
			}
			continue
		}
		for _, ev := range batch {
			select {
			case <-c.quit:
				return
			default:
			}
			select {
			case <-c.quit:
				return
			case c.events <- ev:
			}
		}
	}
}

func (c *Client) Join(ctx context.Context, channel, token string, uid domain.UID) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.sig != nil {
		c.mu.Unlock()
		return fmt.Errorf("join %s: already joined", channel)
	}
	c.mu.Unlock()

	peer, err := NewPeer(WebRTCConfig(c.engine.cfg.ICEServers), uid)
	if err != nil {
		return fmt.Errorf("new peer: %w", err)
	}
	sig, err := dialSignal(ctx, c.engine.cfg.SignalURL, http.Header{})
	if err != nil {
		peer.Close()
		return err
	}

	peer.OnTrack(c.handleTrack)
	peer.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		_ = sig.sendJSON(candidateMessage(ci))
	})
	peer.Start(context.Background())

	c.mu.Lock()
	c.sig, c.peer, c.uid = sig, peer, uid
	c.mu.Unlock()

	go sig.writePump()
	go sig.readPump(c.handleSignal)

	if err := sig.sendJSON(signalMessage{Type: msgJoin, AppID: c.appID, Room: channel, Token: token, UID: uid}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sig.done:
		return ErrSignalClosed
	case m := <-c.joined:
		if m.Type == msgError {
			if m.Error == ErrUIDConflict.Error() {
				return ErrUIDConflict
			}
			return fmt.Errorf("%w: %s", ErrJoinRejected, m.Error)
		}
	}
	log.Info().Str("module", "adapters.rtc").Str("channel", channel).Str("uid", uid.String()).Msg("channel joined")
	return nil
}

func (c *Client) handleSignal(m signalMessage) {
	switch m.Type {
	case msgJoined:
		c.deliver(c.joined, m)
	case msgError:
		log.Warn().Str("module", "adapters.rtc").Str("error", m.Error).Msg("signalling error")
		c.deliver(c.joined, m)
	case msgAnswer:
		c.deliver(c.answers, m)
	case msgOffer:
		c.handleOffer(m)
	case msgCandidate:
		if p := c.currentPeer(); p != nil {
			if err := p.AddICECandidate(m.candidate()); err != nil {
				log.Error().Err(err).Str("module", "adapters.rtc").Msg("add ice candidate")
			}
		}
	case msgMemberJoined:
		if m.UID != c.uid {
			c.emit(core.Event{Type: core.UserJoined, UID: m.UID})
		}
	case msgMemberLeft:
		c.dropRemote(m.UID, "")
		c.emit(core.Event{Type: core.UserLeft, UID: m.UID})
	case msgUnpublished:
		if c.dropRemote(m.UID, m.Kind) {
			c.emit(core.Event{Type: core.UserUnpublished, UID: m.UID, Kind: m.Kind})
		}
	case msgPing:
		if sig := c.currentSig(); sig != nil {
			_ = sig.sendJSON(signalMessage{Type: msgPong})
		}
	case msgPong:
	default:
		log.Warn().Str("module", "adapters.rtc").Str("type", m.Type).Msg("unknown signal")
	}
}

func (c *Client) deliver(ch chan signalMessage, m signalMessage) {
	select {
	case ch <- m:
	default:
		log.Warn().Str("module", "adapters.rtc").Str("type", m.Type).Msg("unexpected signal dropped")
	}
}

func (c *Client) currentPeer() *Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *Client) currentSig() *signalConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sig
}

// handleOffer answers a server renegotiation, e.g. a new remote track.
func (c *Client) handleOffer(m signalMessage) {
	c.negMu.Lock()
	defer c.negMu.Unlock()
	peer, sig := c.currentPeer(), c.currentSig()
	if peer == nil || sig == nil {
		return
	}
	answer, err := peer.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: m.SDP})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.rtc").Msg("apply server offer")
		return
	}
	_ = sig.sendJSON(signalMessage{Type: msgAnswer, SDP: answer.SDP})
}

// handleTrack maps a received track to its publisher. Publishers are
// identified by the stream id.
func (c *Client) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	uid := domain.UID(track.StreamID())
	kind := domain.MediaVideo
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		kind = domain.MediaAudio
	}
	rt := newRemoteTrack(track, uid, kind, c.engine.sinkFor(uid, kind))

	c.mu.Lock()
	prev := c.remote[remoteKey{uid, kind}]
	c.remote[remoteKey{uid, kind}] = rt
	c.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
	c.emit(core.Event{Type: core.UserPublished, UID: uid, Kind: kind})
}

// dropRemote forgets the uid's track of kind, or all of them when kind is
// empty. It reports whether anything was dropped.
func (c *Client) dropRemote(uid domain.UID, kind domain.MediaKind) bool {
	c.mu.Lock()
	var dropped []*RemoteTrack
	for k, rt := range c.remote {
		if k.uid == uid && (kind == "" || k.kind == kind) {
			dropped = append(dropped, rt)
			delete(c.remote, k)
		}
	}
	c.mu.Unlock()
	for _, rt := range dropped {
		rt.Stop()
	}
	return len(dropped) > 0
}

func (c *Client) Publish(ctx context.Context, tracks ...core.LocalTrack) error {
	peer := c.currentPeer()
	if peer == nil {
		return ErrNotJoined
	}
	for _, t := range tracks {
		lt, ok := t.(*LocalTrack)
		if !ok {
			return ErrForeignTrack
		}
		c.mu.Lock()
		_, already := c.senders[lt.ID()]
		c.mu.Unlock()
		if already {
			continue
		}
		sender, err := peer.AddLocalTrack(lt.Track)
		if err != nil {
			return fmt.Errorf("add track %s: %w", lt.ID(), err)
		}
		c.mu.Lock()
		c.senders[lt.ID()] = sender
		c.mu.Unlock()
	}
	return c.negotiate(ctx)
}

func (c *Client) Unpublish(ctx context.Context, tracks ...core.LocalTrack) error {
	peer := c.currentPeer()
	if peer == nil {
		return ErrNotJoined
	}
	for _, t := range tracks {
		c.mu.Lock()
		sender, ok := c.senders[t.ID()]
		delete(c.senders, t.ID())
		c.mu.Unlock()
		if !ok {
			continue
		}
		if err := peer.RemoveTrack(sender); err != nil {
			return fmt.Errorf("remove track %s: %w", t.ID(), err)
		}
	}
	return c.negotiate(ctx)
}

// negotiate runs one client-initiated offer/answer round.
func (c *Client) negotiate(ctx context.Context) error {
	c.negMu.Lock()
	defer c.negMu.Unlock()
	peer, sig := c.currentPeer(), c.currentSig()
	if peer == nil || sig == nil {
		return ErrNotJoined
	}
	offer, err := peer.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := sig.sendJSON(signalMessage{Type: msgOffer, SDP: offer.SDP}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sig.done:
		return ErrSignalClosed
	case m := <-c.answers:
		if err := peer.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}); err != nil {
			return fmt.Errorf("apply answer: %w", err)
		}
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, uid domain.UID, kind domain.MediaKind) (core.RemoteTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.remote[remoteKey{uid, kind}]
	if !ok {
		return nil, fmt.Errorf("subscribe %s %s: %w", uid, kind, ErrNotPublished)
	}
	return rt, nil
}

func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.closed = true
	c.queue = nil
	close(c.quit)
	sig, peer := c.sig, c.peer
	remote := c.remote
	c.remote = make(map[remoteKey]*RemoteTrack)
	c.mu.Unlock()

	for _, rt := range remote {
		rt.Stop()
	}
	// The server treats the closed socket as a leave.
	if sig != nil {
		sig.Close()
	}
	if peer != nil {
		peer.Close()
	}
	log.Info().Str("module", "adapters.rtc").Str("uid", c.uid.String()).Msg("client left")
	return nil
}
