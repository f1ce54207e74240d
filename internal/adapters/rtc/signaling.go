package rtc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrSignalClosed = errors.New("signalling closed")
)

// Signalling message types.
const (
	msgJoin         = "join"
	msgJoined       = "joined"
	msgOffer        = "offer"
	msgAnswer       = "answer"
	msgCandidate    = "candidate"
	msgMemberJoined = "member_joined"
	msgMemberLeft   = "member_left"
	msgUnpublished  = "unpublished"
	msgError        = "error"
	msgPing         = "ping"
	msgPong         = "pong"
)

// signalMessage is the envelope of the SFU signalling protocol.
type signalMessage struct {
	Type          string           `json:"type"`
	AppID         string           `json:"appId,omitempty"`
	Room          string           `json:"room,omitempty"`
	Token         string           `json:"token,omitempty"`
	UID           domain.UID       `json:"uid,omitempty"`
	Kind          domain.MediaKind `json:"kind,omitempty"`
	SDP           string           `json:"sdp,omitempty"`
	Candidate     string           `json:"candidate,omitempty"`
	SDPMid        string           `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16          `json:"sdpMLineIndex,omitempty"`
	Error         string           `json:"error,omitempty"`
}

func (m signalMessage) candidate() webrtc.ICECandidateInit {
	ci := webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMLineIndex: m.SDPMLineIndex}
	if m.SDPMid != "" {
		mid := m.SDPMid
		ci.SDPMid = &mid
	}
	return ci
}

func candidateMessage(ci webrtc.ICECandidateInit) signalMessage {
	m := signalMessage{Type: msgCandidate, Candidate: ci.Candidate, SDPMLineIndex: ci.SDPMLineIndex}
	if ci.SDPMid != nil {
		m.SDPMid = *ci.SDPMid
	}
	return m
}

// signalConn is the client side of the signalling websocket.
type signalConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func dialSignal(ctx context.Context, url string, header http.Header) (*signalConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial signalling: %w", err)
	}
	return &signalConn{
		conn: conn,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
	}, nil
}

func (c *signalConn) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrSignalClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *signalConn) sendJSON(m signalMessage) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.TrySend(b)
}

func (c *signalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *signalConn) writePump() {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			log.Error().Err(err).Str("module", "adapters.rtc").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "adapters.rtc").Msg("writePump write error")
			return
		}
	}
}

// readPump hands every decoded message to handle until the socket closes.
func (c *signalConn) readPump(handle func(signalMessage)) {
	defer func() {
		close(c.done)
		c.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if !closed {
				log.Warn().Err(err).Str("module", "adapters.rtc").Msg("signalling read error")
			}
			return
		}
		var m signalMessage
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "adapters.rtc").Msg("bad signalling json")
			continue
		}
		handle(m)
	}
}
