// Package coretest provides in-memory media engine fakes for tests.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/domain"
)

var ErrClosed = errors.New("coretest: closed")

type Engine struct {
	mu sync.Mutex

	ClientErr error
	MicErr    error
	CamErr    error
	ScreenErr error
	// JoinHook runs inside Client.Join, before JoinErr is returned.
	JoinHook func(ctx context.Context) error
	JoinErr  error

	Clients    []*Client
	Tracks     []*Track
	ScreenReqs []string

	seq atomic.Int64
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) NewClient(appID string) (core.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ClientErr != nil {
		return nil, e.ClientErr
	}
	c := &Client{
		AppID:     appID,
		engine:    e,
		events:    make(chan core.Event, 64),
		published: make(map[string]core.LocalTrack),
	}
	e.Clients = append(e.Clients, c)
	return c, nil
}

func (e *Engine) newTrack(kind domain.MediaKind, prefix string) *Track {
	t := &Track{id: fmt.Sprintf("%s-%d", prefix, e.seq.Add(1)), kind: kind, enabled: true}
	e.mu.Lock()
	e.Tracks = append(e.Tracks, t)
	e.mu.Unlock()
	return t
}

func (e *Engine) CreateMicrophoneTrack(ctx context.Context) (core.LocalTrack, error) {
	if e.MicErr != nil {
		return nil, e.MicErr
	}
	return e.newTrack(domain.MediaAudio, "mic"), nil
}

func (e *Engine) CreateCameraTrack(ctx context.Context) (core.LocalTrack, error) {
	if e.CamErr != nil {
		return nil, e.CamErr
	}
	return e.newTrack(domain.MediaVideo, "cam"), nil
}

func (e *Engine) CreateScreenTrack(ctx context.Context, sourceID string) (core.LocalTrack, error) {
	e.mu.Lock()
	e.ScreenReqs = append(e.ScreenReqs, sourceID)
	e.mu.Unlock()
	if e.ScreenErr != nil {
		return nil, e.ScreenErr
	}
	return e.newTrack(domain.MediaVideo, "screen"), nil
}

// LastClient returns the most recently created client or nil.
func (e *Engine) LastClient() *Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Clients) == 0 {
		return nil
	}
	return e.Clients[len(e.Clients)-1]
}

// OpenTracks counts tracks that were created and not closed.
func (e *Engine) OpenTracks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, t := range e.Tracks {
		if !t.Closed() {
			n++
		}
	}
	return n
}

type Client struct {
	AppID   string
	Channel string
	Token   string
	UID     domain.UID

	engine *Engine
	events chan core.Event

	mu        sync.Mutex
	joined    bool
	left      bool
	published map[string]core.LocalTrack
	subs      []*RemoteTrack
}

func (c *Client) Events() <-chan core.Event { return c.events }

// Emit delivers ev as if the engine reported it.
func (c *Client) Emit(ev core.Event) {
	c.events <- ev
}

func (c *Client) Join(ctx context.Context, channel, token string, uid domain.UID) error {
	if hook := c.engine.JoinHook; hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if c.engine.JoinErr != nil {
		return c.engine.JoinErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Channel, c.Token, c.UID = channel, token, uid
	c.joined = true
	return nil
}

func (c *Client) Publish(ctx context.Context, tracks ...core.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tracks {
		c.published[t.ID()] = t
	}
	return nil
}

func (c *Client) Unpublish(ctx context.Context, tracks ...core.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tracks {
		delete(c.published, t.ID())
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, uid domain.UID, kind domain.MediaKind) (core.RemoteTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt := &RemoteTrack{id: fmt.Sprintf("%s-%s", uid, kind), uid: uid, kind: kind}
	c.subs = append(c.subs, rt)
	return rt, nil
}

func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left {
		return ErrClosed
	}
	c.left = true
	c.joined = false
	close(c.events)
	return nil
}

func (c *Client) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

func (c *Client) Left() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}

// Published returns the currently published track, keyed by id.
func (c *Client) Published() map[string]core.LocalTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]core.LocalTrack, len(c.published))
	for k, v := range c.published {
		out[k] = v
	}
	return out
}

func (c *Client) Subscriptions() []*RemoteTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*RemoteTrack(nil), c.subs...)
}

type Track struct {
	id   string
	kind domain.MediaKind

	mu      sync.Mutex
	enabled bool
	closed  bool
	onEnded func()
}

func (t *Track) ID() string             { return t.id }
func (t *Track) Kind() domain.MediaKind { return t.kind }

func (t *Track) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.enabled = enabled
	return nil
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Track) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = fn
}

// End simulates the capture being stopped by the platform.
func (t *Track) End() {
	t.mu.Lock()
	fn := t.onEnded
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type RemoteTrack struct {
	id   string
	uid  domain.UID
	kind domain.MediaKind

	playing atomic.Bool
}

func (r *RemoteTrack) ID() string             { return r.id }
func (r *RemoteTrack) Kind() domain.MediaKind { return r.kind }
func (r *RemoteTrack) UID() domain.UID        { return r.uid }
func (r *RemoteTrack) Play() error            { r.playing.Store(true); return nil }
func (r *RemoteTrack) Stop()                  { r.playing.Store(false) }
func (r *RemoteTrack) Playing() bool          { return r.playing.Load() }
