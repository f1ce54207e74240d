package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/app/notify"
	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/domain"
	"github.com/connectra/meeting-client/internal/metrics"
)

// ChannelName scopes side-channel traffic to one meeting.
func ChannelName(meetingID string) string {
	return "meeting:" + meetingID
}

// MuteAllState is the single current mute-all value.
type MuteAllState struct {
	Muted      bool       `json:"isMuted"`
	IssuerName string     `json:"issuerName,omitempty"`
	IssuedBy   domain.UID `json:"issuedBy,omitempty"`
	At         time.Time  `json:"at"`
	FromSelf   bool       `json:"fromSelf"`
}

type RaisedHand struct {
	UID  domain.UID `json:"uid"`
	Name string     `json:"name"`
	At   time.Time  `json:"at"`
}

// Channel is a best-effort side-channel bound to one meeting at a time.
// Its failures never reach the media session.
type Channel struct {
	transport core.Transport

	mu        sync.RWMutex
	meetingID string
	name      string
	self      domain.UID
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
	presence  map[domain.UID]ParticipantInfo
	muteAll   MuteAllState
	hands     map[domain.UID]RaisedHand

	changes *notify.Notifier
}

func NewChannel(transport core.Transport) *Channel {
	return &Channel{
		transport: transport,
		presence:  make(map[domain.UID]ParticipantInfo),
		hands:     make(map[domain.UID]RaisedHand),
		changes:   notify.New(),
	}
}

func (c *Channel) Watch() (<-chan struct{}, func()) {
	return c.changes.Watch()
}

// Connect subscribes to the meeting's channel as self. Calling it again for
// the same meeting is a no-op; a different meeting replaces the subscription
// and clears the state learned so far.
func (c *Channel) Connect(ctx context.Context, meetingID string, self domain.UID) error {
	name := ChannelName(meetingID)

	c.mu.Lock()
	if c.connected && c.name == name {
		c.self = self
		c.mu.Unlock()
		return nil
	}
	prevCancel, prevDone := c.cancel, c.done
	c.mu.Unlock()
	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	frames, err := c.transport.Subscribe(subCtx, name)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.connected = false
		c.cancel, c.done = nil, nil
		c.mu.Unlock()
		log.Warn().Err(err).Str("module", "app.messaging").Str("channel", name).Msg("side-channel connect failed")
		return fmt.Errorf("subscribe %s: %w", name, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.meetingID = meetingID
	c.name = name
	c.self = self
	c.connected = true
	c.cancel = cancel
	c.done = done
	c.presence = make(map[domain.UID]ParticipantInfo)
	c.hands = make(map[domain.UID]RaisedHand)
	c.muteAll = MuteAllState{}
	c.mu.Unlock()

	go c.readLoop(subCtx, name, frames, done)
	log.Info().Str("module", "app.messaging").Str("channel", name).Str("uid", self.String()).Msg("side-channel connected")
	c.changes.Notify()
	return nil
}

func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close drops the subscription. The transport stays with its owner.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.connected = false
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Channel) readLoop(ctx context.Context, name string, frames <-chan core.Frame, done chan struct{}) {
	defer close(done)
	defer func() {
		c.mu.Lock()
		if c.name == name {
			c.connected = false
		}
		c.mu.Unlock()
		log.Info().Str("module", "app.messaging").Str("channel", name).Msg("side-channel read loop closed")
		c.changes.Notify()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			c.handleFrame(name, f)
		}
	}
}

func (c *Channel) handleFrame(subscribed string, f core.Frame) {
	env, err := Decode(f)
	if err != nil {
		outcome := "malformed"
		if errors.Is(err, ErrUnknownMessageType) {
			outcome = "unknown"
		}
		metrics.SideChannelReceived(outcome)
		log.Warn().Err(err).Str("module", "app.messaging").Str("channel", subscribed).Msg("dropping side-channel frame")
		return
	}

	c.mu.Lock()
	if env.Channel != c.name || env.Channel != subscribed {
		c.mu.Unlock()
		metrics.SideChannelReceived("foreign")
		log.Debug().Str("module", "app.messaging").Str("channel", env.Channel).Msg("ignoring message for another channel")
		return
	}
	c.applyLocked(env)
	c.mu.Unlock()

	metrics.SideChannelReceived("ok")
	c.changes.Notify()
}

func (c *Channel) applyLocked(env Envelope) {
	at := time.UnixMilli(env.Timestamp)
	switch m := env.Message.(type) {
	case ParticipantInfo:
		c.presence[m.UID] = m
	case MuteAll:
		c.muteAll = MuteAllState{
			Muted:      m.Muted,
			IssuerName: m.IssuerName,
			IssuedBy:   env.From,
			At:         at,
			FromSelf:   env.From == c.self,
		}
	case HandRaise:
		if m.Raised {
			c.hands[m.UID] = RaisedHand{UID: m.UID, Name: m.Name, At: at}
		} else {
			delete(c.hands, m.UID)
		}
	}
}

// publish applies msg locally first so the sender sees its own state
// without a round trip, then sends it.
func (c *Channel) publish(ctx context.Context, msg Message) error {
	c.mu.Lock()
	env := Envelope{
		ID:        uuid.NewString(),
		Channel:   c.name,
		From:      c.self,
		Timestamp: time.Now().UnixMilli(),
		Message:   msg,
	}
	c.applyLocked(env)
	connected, name := c.connected, c.name
	c.mu.Unlock()
	c.changes.Notify()

	if !connected {
		return ErrNotConnected
	}
	f, err := Encode(env)
	if err != nil {
		return err
	}
	err = c.transport.Publish(ctx, name, f)
	metrics.SideChannelSent(err)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.messaging").Str("channel", name).Str("type", string(msg.Type())).Msg("side-channel publish failed")
		return fmt.Errorf("publish %s: %w", msg.Type(), err)
	}
	return nil
}

// BroadcastParticipantInfo announces identity for uid. An empty display
// name falls back to "Lecturer" for hosts and "Participant <uid>" otherwise.
func (c *Channel) BroadcastParticipantInfo(ctx context.Context, info ParticipantInfo) error {
	if info.UID.IsZero() {
		return domain.ErrUIDEmpty
	}
	name, err := domain.ValidateDisplayName(info.DisplayName)
	switch {
	case errors.Is(err, domain.ErrDisplayNameEmpty):
		if info.IsHost {
			name = "Lecturer"
		} else {
			name = "Participant " + info.UID.String()
		}
	case err != nil:
		name = domain.TruncateDisplayName(info.DisplayName)
	}
	info.DisplayName = name
	return c.publish(ctx, info)
}

func (c *Channel) BroadcastMuteAll(ctx context.Context, muted bool, issuerName string) error {
	return c.publish(ctx, MuteAll{Muted: muted, IssuerName: issuerName})
}

func (c *Channel) RaiseHand(ctx context.Context, uid domain.UID, name string) error {
	return c.publish(ctx, HandRaise{UID: uid, Name: name, Raised: true})
}

func (c *Channel) LowerHand(ctx context.Context, uid domain.UID) error {
	return c.publish(ctx, HandRaise{UID: uid, Raised: false})
}

func (c *Channel) Presence() map[domain.UID]ParticipantInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[domain.UID]ParticipantInfo, len(c.presence))
	for k, v := range c.presence {
		out[k] = v
	}
	return out
}

func (c *Channel) PresenceOf(uid domain.UID) (ParticipantInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.presence[uid]
	return p, ok
}

func (c *Channel) MuteAll() MuteAllState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muteAll
}

// RaisedHands returns raised hands oldest first.
func (c *Channel) RaisedHands() []RaisedHand {
	c.mu.RLock()
	out := make([]RaisedHand, 0, len(c.hands))
	for _, h := range c.hands {
		out = append(out, h)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].UID < out[j].UID
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}
