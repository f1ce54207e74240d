package rtc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/domain"
)

// fakeSFU answers joins and offers and lets the test push messages.
type fakeSFU struct {
	t      *testing.T
	srv    *httptest.Server
	reject string
	push   chan signalMessage
	got    chan signalMessage
}

func newFakeSFU(t *testing.T) *fakeSFU {
	f := &fakeSFU{t: t, push: make(chan signalMessage, 8), got: make(chan signalMessage, 32)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		out := make(chan signalMessage, 8)
		go func() {
			for {
				var m signalMessage
				if err := conn.ReadJSON(&m); err != nil {
					close(out)
					return
				}
				f.got <- m
				out <- m
			}
		}()
		var peer *Peer
		defer func() {
			if peer != nil {
				peer.Close()
			}
		}()
		for {
			select {
			case m := <-f.push:
				_ = conn.WriteJSON(m)
			case m, ok := <-out:
				if !ok {
					return
				}
				switch m.Type {
				case msgJoin:
					if f.reject != "" {
						_ = conn.WriteJSON(signalMessage{Type: msgError, Error: f.reject})
						continue
					}
					_ = conn.WriteJSON(signalMessage{Type: msgJoined, UID: m.UID})
				case msgOffer:
					if peer == nil {
						if peer, err = NewPeer(WebRTCConfig(nil), "sfu"); err != nil {
							return
						}
					}
					answer, err := peer.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: m.SDP})
					if err != nil {
						_ = conn.WriteJSON(signalMessage{Type: msgError, Error: err.Error()})
						continue
					}
					_ = conn.WriteJSON(signalMessage{Type: msgAnswer, SDP: answer.SDP})
				}
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSFU) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeSFU) expect(typ string) signalMessage {
	f.t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m := <-f.got:
			if m.Type == typ {
				return m
			}
		case <-timeout:
			f.t.Fatalf("no %s message", typ)
		}
	}
}

func nextEvent(t *testing.T, events <-chan core.Event) core.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
	return core.Event{}
}

func joinedClient(t *testing.T, sfu *fakeSFU) *Client {
	t.Helper()
	e := NewEngine(Config{SignalURL: sfu.url(), Synthetic: true})
	c, err := e.NewClient("app")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Join(ctx, "room-1", "tok", "42"))
	return c.(*Client)
}

func TestClientJoinAndMembership(t *testing.T) {
	sfu := newFakeSFU(t)
	c := joinedClient(t, sfu)

	join := sfu.expect(msgJoin)
	require.Equal(t, "app", join.AppID)
	require.Equal(t, "room-1", join.Room)
	require.Equal(t, "tok", join.Token)
	require.Equal(t, domain.UID("42"), join.UID)

	sfu.push <- signalMessage{Type: msgMemberJoined, UID: "42"}
	sfu.push <- signalMessage{Type: msgMemberJoined, UID: "7"}
	sfu.push <- signalMessage{Type: msgUnpublished, UID: "7", Kind: domain.MediaAudio}
	sfu.push <- signalMessage{Type: msgMemberLeft, UID: "7"}

	require.Equal(t, core.Event{Type: core.UserJoined, UID: "7"}, nextEvent(t, c.Events()))
	require.Equal(t, core.Event{Type: core.UserLeft, UID: "7"}, nextEvent(t, c.Events()))

	sfu.push <- signalMessage{Type: msgPing}
	sfu.expect(msgPong)

	_, err := c.Subscribe(context.Background(), "7", domain.MediaVideo)
	require.ErrorIs(t, err, ErrNotPublished)

	require.NoError(t, c.Leave(context.Background()))
	require.ErrorIs(t, c.Leave(context.Background()), ErrClientClosed)
	_, open := <-c.Events()
	require.False(t, open)
}

func TestClientJoinConflict(t *testing.T) {
	sfu := newFakeSFU(t)
	sfu.reject = "UID_CONFLICT"
	e := NewEngine(Config{SignalURL: sfu.url()})
	c, err := e.NewClient("app")
	require.NoError(t, err)
	defer c.Leave(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.ErrorIs(t, c.Join(ctx, "room-1", "", "42"), ErrUIDConflict)
}

func TestClientJoinRejected(t *testing.T) {
	sfu := newFakeSFU(t)
	sfu.reject = "bad token"
	e := NewEngine(Config{SignalURL: sfu.url()})
	c, err := e.NewClient("app")
	require.NoError(t, err)
	defer c.Leave(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = c.Join(ctx, "room-1", "", "42")
	require.ErrorIs(t, err, ErrJoinRejected)
	require.Contains(t, err.Error(), "bad token")
}

func TestClientPublishNegotiates(t *testing.T) {
	sfu := newFakeSFU(t)
	c := joinedClient(t, sfu)
	defer c.Leave(context.Background())

	e := NewEngine(Config{Synthetic: true})
	mic, err := e.CreateMicrophoneTrack(context.Background())
	require.NoError(t, err)
	defer mic.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Publish(ctx, mic))
	offer := sfu.expect(msgOffer)
	require.Contains(t, offer.SDP, "m=audio")

	require.NoError(t, c.Unpublish(ctx, mic))
	sfu.expect(msgOffer)
}

func TestClientBeforeJoin(t *testing.T) {
	e := NewEngine(Config{SignalURL: "ws://127.0.0.1:1", Synthetic: true})
	c, err := e.NewClient("app")
	require.NoError(t, err)
	mic, err := e.CreateMicrophoneTrack(context.Background())
	require.NoError(t, err)
	defer mic.Close()
	require.ErrorIs(t, c.Publish(context.Background(), mic), ErrNotJoined)
	require.ErrorIs(t, c.Unpublish(context.Background(), mic), ErrNotJoined)
}

func TestClientEventsBurstKeepsOrder(t *testing.T) {
	c := newClient("app", NewEngine(Config{SignalURL: "ws://unused"}))
	const n = 500
	for i := 0; i < n; i++ {
		typ := core.UserJoined
		if i%2 == 1 {
			typ = core.UserLeft
		}
		c.emit(core.Event{Type: typ, UID: domain.NumericUID(uint32(i / 2))})
	}
	for i := 0; i < n; i++ {
		ev := nextEvent(t, c.Events())
		require.Equal(t, domain.NumericUID(uint32(i/2)), ev.UID)
		if i%2 == 1 {
			require.Equal(t, core.UserLeft, ev.Type)
		} else {
			require.Equal(t, core.UserJoined, ev.Type)
		}
	}

	c.emit(core.Event{Type: core.UserJoined, UID: "9"})
	require.NoError(t, c.Leave(context.Background()))
	c.emit(core.Event{Type: core.UserJoined, UID: "10"})
	for ev := range c.Events() {
		require.Equal(t, domain.UID("9"), ev.UID)
	}
}

func TestSignalMessageCandidate(t *testing.T) {
	idx := uint16(1)
	mid := "0"
	m := candidateMessage(webrtc.ICECandidateInit{Candidate: "candidate:1", SDPMid: &mid, SDPMLineIndex: &idx})
	b, err := json.Marshal(m)
	require.NoError(t, err)
	var back signalMessage
	require.NoError(t, json.Unmarshal(b, &back))
	ci := back.candidate()
	require.Equal(t, "candidate:1", ci.Candidate)
	require.Equal(t, "0", *ci.SDPMid)
	require.Equal(t, uint16(1), *ci.SDPMLineIndex)
}
