// Package relay is the side-channel relay server: websocket clients
// subscribe to meeting channels and every publish fans out to the channel.
package relay

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/adapters/signal"
	"github.com/connectra/meeting-client/internal/metrics"
)

var (
	ErrNotSubscribed  = errors.New("not subscribed")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnknownSession = errors.New("unknown session")
	ErrBadChannel     = errors.New("bad channel name")
)

const maxChannelLen = 128

type connEntry struct {
	conn     *Conn
	channels map[string]struct{}
	cancel   context.CancelFunc
}

// Hub tracks connections and channel membership.
type Hub struct {
	policy  Policy
	limiter *RateLimiter

	mu       sync.RWMutex
	conns    map[SessionID]*connEntry
	channels map[string]map[SessionID]struct{}
}

func NewHub(policy Policy, limiter *RateLimiter) *Hub {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Hub{
		policy:   policy,
		limiter:  limiter,
		conns:    make(map[SessionID]*connEntry),
		channels: make(map[string]map[SessionID]struct{}),
	}
}

// Bind registers c. A previous connection with the same session id is
// cancelled and replaced.
func (h *Hub) Bind(c *Conn, cancel context.CancelFunc) {
	h.mu.Lock()
	prev := h.conns[c.sid]
	h.conns[c.sid] = &connEntry{conn: c, channels: make(map[string]struct{}), cancel: cancel}
	if prev != nil {
		h.dropChannelsLocked(c.sid, prev)
	}
	h.mu.Unlock()

	if prev != nil {
		log.Info().Str("module", "adapters.relay").Str("sid", string(c.sid)).Msg("replacing previous connection")
		prev.cancel()
		prev.conn.Close()
	}
	metrics.RelayConnectionOpened()
	log.Info().Str("module", "adapters.relay").Str("sid", string(c.sid)).Msg("bound connection")
}

// Unbind removes c if it is still the session's current connection.
func (h *Hub) Unbind(c *Conn) {
	h.mu.Lock()
	e, ok := h.conns[c.sid]
	if !ok || e.conn != c {
		h.mu.Unlock()
		metrics.RelayConnectionClosed()
		return
	}
	delete(h.conns, c.sid)
	h.dropChannelsLocked(c.sid, e)
	h.mu.Unlock()

	if h.limiter != nil {
		h.limiter.Forget(c.sid)
	}
	metrics.RelayConnectionClosed()
	log.Info().Str("module", "adapters.relay").Str("sid", string(c.sid)).Msg("unbound connection")
}

func (h *Hub) dropChannelsLocked(sid SessionID, e *connEntry) {
	for name := range e.channels {
		h.leaveLocked(sid, name)
	}
}

func (h *Hub) leaveLocked(sid SessionID, channel string) {
	members := h.channels[channel]
	delete(members, sid)
	if len(members) == 0 {
		delete(h.channels, channel)
	}
}

func validChannel(name string) bool {
	return name != "" && len(name) <= maxChannelLen
}

func (h *Hub) Subscribe(sid SessionID, channel string) error {
	if !validChannel(channel) {
		return ErrBadChannel
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.conns[sid]
	if !ok {
		return ErrUnknownSession
	}
	e.channels[channel] = struct{}{}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[SessionID]struct{})
	}
	h.channels[channel][sid] = struct{}{}
	log.Debug().Str("module", "adapters.relay").Str("sid", string(sid)).Str("channel", channel).Msg("subscribed")
	return nil
}

func (h *Hub) Unsubscribe(sid SessionID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.conns[sid]; ok {
		delete(e.channels, channel)
	}
	h.leaveLocked(sid, channel)
}

// Publish fans data out to every subscriber of channel, the sender
// included. Only subscribers may publish.
func (h *Hub) Publish(sid SessionID, channel string, data json.RawMessage) error {
	if h.limiter != nil && !h.limiter.Allow(sid) {
		metrics.RelayFrame("rate_limited", 1)
		return ErrRateLimited
	}
	frame, err := json.Marshal(signal.RelayMessage{Type: signal.TypeMessage, Channel: channel, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	if _, ok := h.channels[channel][sid]; !ok {
		h.mu.RUnlock()
		return ErrNotSubscribed
	}
	targets := make([]*Conn, 0, len(h.channels[channel]))
	for member := range h.channels[channel] {
		if e, ok := h.conns[member]; ok {
			targets = append(targets, e.conn)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		err := c.TrySend(frame)
		if err == nil {
			delivered++
			continue
		}
		if !errors.Is(err, ErrBackpressure) {
			continue
		}
		switch h.policy.OnBackpressure(channel, c.sid) {
		case KickMember:
			log.Warn().Str("module", "adapters.relay").Str("sid", string(c.sid)).Str("channel", channel).Msg("kicking slow subscriber")
			h.Cancel(c.sid)
			metrics.RelayFrame("kicked", 1)
		default:
			metrics.RelayFrame("dropped", 1)
		}
	}
	metrics.RelayFrame("delivered", delivered)
	return nil
}

// Cancel stops the session's connection pumps.
func (h *Hub) Cancel(sid SessionID) bool {
	h.mu.RLock()
	e, ok := h.conns[sid]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.conn.Close()
	log.Info().Str("module", "adapters.relay").Str("sid", string(sid)).Msg("canceled session")
	return true
}

type ChannelInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

func (h *Hub) Channels() []ChannelInfo {
	h.mu.RLock()
	out := make([]ChannelInfo, 0, len(h.channels))
	for name, members := range h.channels {
		out = append(out, ChannelInfo{Name: name, Subscribers: len(members)})
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
