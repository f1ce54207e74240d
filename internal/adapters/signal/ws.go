package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const (
	wsWriteWait  = 5 * time.Second
	wsSendBuffer = 32
	wsSubBuffer  = 64
)

// WSTransport speaks the relay protocol over one websocket connection.
// A dropped connection closes every subscription.
type WSTransport struct {
	conn *websocket.Conn
	send chan core.Frame
	done chan struct{}

	mu     sync.Mutex
	closed bool
	subs   map[string]map[*wsSub]struct{}
}

type wsSub struct {
	ch   chan core.Frame
	once sync.Once
}

func (s *wsSub) close() { s.once.Do(func() { close(s.ch) }) }

// DialWS connects to a relay at url, e.g. ws://host/ws.
func DialWS(ctx context.Context, url string, header http.Header) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	t := &WSTransport{
		conn: conn,
		send: make(chan core.Frame, wsSendBuffer),
		done: make(chan struct{}),
		subs: make(map[string]map[*wsSub]struct{}),
	}
	go t.writePump()
	go t.readPump()
	log.Info().Str("module", "adapters.signal").Str("url", url).Msg("relay connected")
	return t, nil
}

// TrySend queues f without blocking.
func (t *WSTransport) TrySend(f core.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	select {
	case t.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (t *WSTransport) sendJSON(m RelayMessage) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return t.TrySend(b)
}

func (t *WSTransport) Publish(ctx context.Context, channel string, f core.Frame) error {
	if !json.Valid(f) {
		return fmt.Errorf("publish %s: frame is not json", channel)
	}
	return t.sendJSON(RelayMessage{Type: TypePublish, Channel: channel, Data: json.RawMessage(f)})
}

func (t *WSTransport) Subscribe(ctx context.Context, channel string) (<-chan core.Frame, error) {
	sub := &wsSub{ch: make(chan core.Frame, wsSubBuffer)}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	first := len(t.subs[channel]) == 0
	if first {
		t.subs[channel] = make(map[*wsSub]struct{})
	}
	t.subs[channel][sub] = struct{}{}
	t.mu.Unlock()

	if first {
		if err := t.sendJSON(RelayMessage{Type: TypeSubscribe, Channel: channel}); err != nil {
			t.unsubscribe(channel, sub)
			return nil, fmt.Errorf("subscribe %s: %w", channel, err)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-t.done:
		}
		t.unsubscribe(channel, sub)
	}()
	return sub.ch, nil
}

func (t *WSTransport) unsubscribe(channel string, sub *wsSub) {
	t.mu.Lock()
	subs := t.subs[channel]
	_, ok := subs[sub]
	delete(subs, sub)
	last := ok && len(subs) == 0
	if last {
		delete(t.subs, channel)
	}
	closed := t.closed
	t.mu.Unlock()

	sub.close()
	if last && !closed {
		_ = t.sendJSON(RelayMessage{Type: TypeUnsubscribe, Channel: channel})
	}
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.send)
	subs := t.subs
	t.subs = make(map[string]map[*wsSub]struct{})
	t.mu.Unlock()

	for _, set := range subs {
		for sub := range set {
			sub.close()
		}
	}
	return t.conn.Close()
}

// Done is closed once the connection is gone.
func (t *WSTransport) Done() <-chan struct{} { return t.done }

func (t *WSTransport) writePump() {
	for data := range t.send {
		if err := t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump set deadline")
			return
		}
		if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump write error")
			return
		}
	}
}

func (t *WSTransport) readPump() {
	defer func() {
		close(t.done)
		_ = t.Close()
		log.Info().Str("module", "adapters.signal").Msg("relay connection closed")
	}()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				log.Warn().Err(err).Str("module", "adapters.signal").Msg("readPump read error")
			}
			return
		}
		t.handle(data)
	}
}

func (t *WSTransport) handle(data []byte) {
	var m RelayMessage
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Msg("bad relay json")
		return
	}
	switch m.Type {
	case TypeMessage:
		t.deliver(m.Channel, core.Frame(m.Data))
	case TypePing:
		_ = t.sendJSON(RelayMessage{Type: TypePong})
	case TypePong:
	case TypeError:
		log.Warn().Str("module", "adapters.signal").Str("channel", m.Channel).Str("message", m.Message).Msg("relay error")
	default:
		log.Warn().Str("module", "adapters.signal").Str("type", m.Type).Msg("unknown relay message")
	}
}

func (t *WSTransport) deliver(channel string, f core.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs[channel] {
		select {
		case sub.ch <- f:
		default:
			log.Warn().Str("module", "adapters.signal").Str("channel", channel).Msg("subscriber slow, frame dropped")
		}
	}
}
