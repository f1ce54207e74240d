// Package session coordinates one join-to-leave lifecycle of a media session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/connectra/meeting-client/internal/app/notify"
	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/domain"
	"github.com/connectra/meeting-client/internal/metrics"
)

type Options struct {
	JoinTimeout   time.Duration
	DeviceTimeout time.Duration
	LeaveTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		JoinTimeout:   15 * time.Second,
		DeviceTimeout: 10 * time.Second,
		LeaveTimeout:  5 * time.Second,
	}
}

// Snapshot is a copy of the observable coordinator state.
type Snapshot struct {
	MeetingID string                     `json:"meetingId"`
	State     State                      `json:"state"`
	Joined    bool                       `json:"isJoined"`
	Loading   bool                       `json:"isLoading"`
	Err       *JoinError                 `json:"-"`
	User      *domain.CurrentUser        `json:"currentUserInfo,omitempty"`
	Local     domain.LocalMediaState     `json:"local"`
	Remote    []domain.RemoteParticipant `json:"remoteUsers"`
}

// Coordinator owns the remote participant set and the local media state of
// one meeting attempt. All other components read through Snapshot and write
// through its methods.
type Coordinator struct {
	meetingID string
	gateway   core.SessionGateway
	engine    core.Engine
	opts      Options

	// opMu serializes user operations. Local media fields are only written
	// while holding both opMu and mu.
	opMu sync.Mutex

	mu         sync.RWMutex
	state      State
	loading    bool
	err        *JoinError
	user       *domain.CurrentUser
	client     core.Client
	remote     *remoteSet
	cancelJoin context.CancelFunc
	joinDone   chan struct{}
	stopPump   context.CancelFunc
	pumpDone   chan struct{}

	mic          core.LocalTrack
	camera       core.LocalTrack
	screen       core.LocalTrack
	micMuted     bool
	cameraOff    bool
	camPublished bool
	sharing      bool
	cameraWasOn  bool

	changes *notify.Notifier
}

func New(meetingID string, gateway core.SessionGateway, engine core.Engine, opts Options) *Coordinator {
	def := DefaultOptions()
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = def.JoinTimeout
	}
	if opts.DeviceTimeout <= 0 {
		opts.DeviceTimeout = def.DeviceTimeout
	}
	if opts.LeaveTimeout <= 0 {
		opts.LeaveTimeout = def.LeaveTimeout
	}
	return &Coordinator{
		meetingID: meetingID,
		gateway:   gateway,
		engine:    engine,
		opts:      opts,
		remote:    newRemoteSet(),
		changes:   notify.New(),
	}
}

func (c *Coordinator) MeetingID() string { return c.meetingID }

// Watch returns a channel signalled after every observable change.
// Signals coalesce; call Snapshot to read the current state.
func (c *Coordinator) Watch() (<-chan struct{}, func()) {
	return c.changes.Watch()
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		MeetingID: c.meetingID,
		State:     c.state,
		Joined:    c.state == Joined,
		Loading:   c.loading,
		Err:       c.err,
		Local:     c.localLocked(),
		Remote:    c.remote.snapshot(),
	}
	if c.user != nil {
		u := *c.user
		s.User = &u
	}
	return s
}

func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) localLocked() domain.LocalMediaState {
	l := domain.LocalMediaState{
		MicMuted:      c.micMuted,
		CameraOff:     c.cameraOff,
		ScreenSharing: c.sharing,
	}
	if c.mic != nil {
		l.AudioTrack = c.mic
	}
	switch {
	case c.sharing && c.screen != nil:
		l.VideoTrack = c.screen
	case c.camPublished && c.camera != nil:
		l.VideoTrack = c.camera
	}
	return l
}

type joinResources struct {
	desc   *domain.MediaSessionDescriptor
	client core.Client
	mic    core.LocalTrack
	camera core.LocalTrack
	stop   context.CancelFunc
	done   chan struct{}
}

// Join runs the join sequence once. A second call on a coordinator that is
// joining, joined or torn down is a no-op. A cancelled ctx, or Leave while
// joining, releases everything acquired so far.
func (c *Coordinator) Join(ctx context.Context) error {
	if c.meetingID == "" {
		return ErrNoMeeting
	}
	c.mu.Lock()
	if c.state != Idle {
		state := c.state
		c.mu.Unlock()
		log.Debug().Str("module", "app.session").Str("meeting", c.meetingID).Str("state", state.String()).Msg("join ignored")
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.state = Joining
	c.loading = true
	c.err = nil
	c.cancelJoin = cancel
	c.joinDone = done
	c.mu.Unlock()
	c.changes.Notify()

	defer close(done)
	defer cancel()

	start := time.Now()
	log.Info().Str("module", "app.session").Str("meeting", c.meetingID).Msg("joining")

	res := &joinResources{}
	err := c.join(ctx, res)
	if err == nil {
		c.commit(res)
		metrics.ObserveJoin("ok", time.Since(start))
		log.Info().Str("module", "app.session").Str("meeting", c.meetingID).Str("uid", res.desc.UID.String()).
			Bool("mic", res.mic != nil).Bool("camera", res.camera != nil).Msg("joined")
		return nil
	}

	c.release(res)
	if ctx.Err() != nil {
		c.finish(nil)
		metrics.ObserveJoin("cancelled", time.Since(start))
		log.Info().Str("module", "app.session").Str("meeting", c.meetingID).Msg("join cancelled")
		return fmt.Errorf("join: %w", ctx.Err())
	}
	je := Classify(err)
	c.finish(je)
	metrics.ObserveJoin(je.Kind.String(), time.Since(start))
	log.Error().Err(err).Str("module", "app.session").Str("meeting", c.meetingID).Str("kind", je.Kind.String()).Msg("join failed")
	return je
}

func (c *Coordinator) join(ctx context.Context, res *joinResources) error {
	jctx, cancel := context.WithTimeout(ctx, c.opts.JoinTimeout)
	defer cancel()

	desc, err := c.gateway.JoinSession(jctx, c.meetingID)
	if err != nil {
		return fmt.Errorf("request session: %w", err)
	}
	res.desc = desc
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := c.engine.NewClient(desc.AppID)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	res.client = client

	// Handlers go in before the channel join so early remote events are seen.
	pumpCtx, stop := context.WithCancel(context.Background())
	res.stop = stop
	res.done = make(chan struct{})
	go c.pump(pumpCtx, client, res.done)

	if err := client.Join(jctx, desc.ChannelName, desc.Token, desc.UID); err != nil {
		return fmt.Errorf("join channel: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	res.mic, res.camera = c.acquireDevices(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	var tracks []core.LocalTrack
	if res.mic != nil {
		tracks = append(tracks, res.mic)
	}
	if res.camera != nil {
		tracks = append(tracks, res.camera)
	}
	if len(tracks) > 0 {
		if err := client.Publish(jctx, tracks...); err != nil {
			return fmt.Errorf("publish local tracks: %w", err)
		}
	}
	return ctx.Err()
}

// acquireDevices opens microphone and camera in parallel. Either may fail
// without failing the join.
func (c *Coordinator) acquireDevices(ctx context.Context) (mic, camera core.LocalTrack) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.DeviceTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		t, err := c.engine.CreateMicrophoneTrack(dctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("meeting", c.meetingID).Msg("microphone unavailable")
			return nil
		}
		mic = t
		return nil
	})
	g.Go(func() error {
		t, err := c.engine.CreateCameraTrack(dctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("meeting", c.meetingID).Msg("camera unavailable")
			return nil
		}
		camera = t
		return nil
	})
	_ = g.Wait()
	return mic, camera
}

func (c *Coordinator) commit(res *joinResources) {
	c.mu.Lock()
	c.state = Joined
	c.loading = false
	c.user = domain.NewCurrentUser(res.desc)
	c.client = res.client
	c.stopPump = res.stop
	c.pumpDone = res.done
	c.mic = res.mic
	c.camera = res.camera
	c.camPublished = res.camera != nil
	c.micMuted = false
	c.cameraOff = false
	c.cancelJoin = nil
	c.mu.Unlock()
	c.changes.Notify()
}

func (c *Coordinator) finish(je *JoinError) {
	c.mu.Lock()
	c.state = Left
	c.loading = false
	c.err = je
	c.cancelJoin = nil
	c.remote.reset()
	c.mu.Unlock()
	c.changes.Notify()
}

// release closes whatever a failed or cancelled join managed to acquire.
func (c *Coordinator) release(res *joinResources) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.LeaveTimeout)
	defer cancel()

	closeTrack(res.mic, "microphone")
	closeTrack(res.camera, "camera")
	if res.client != nil {
		if err := res.client.Leave(ctx); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("meeting", c.meetingID).Msg("release client")
		}
	}
	if res.stop != nil {
		res.stop()
		<-res.done
	}
	if res.desc != nil {
		if err := c.gateway.LeaveSession(ctx, c.meetingID); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("meeting", c.meetingID).Msg("release session")
		}
	}
}

func (c *Coordinator) pump(ctx context.Context, client core.Client, done chan struct{}) {
	defer close(done)
	events := client.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(ctx, client, ev)
		}
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, client core.Client, ev core.Event) {
	logger := log.With().Str("module", "app.session").Str("meeting", c.meetingID).
		Str("uid", ev.UID.String()).Str("event", ev.Type.String()).Logger()

	var track core.RemoteTrack
	if ev.Type == core.UserPublished {
		t, err := client.Subscribe(ctx, ev.UID, ev.Kind)
		if err != nil {
			logger.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("subscribe failed")
		} else {
			track = t
		}
		if track != nil && ev.Kind == domain.MediaAudio {
			if err := track.Play(); err != nil {
				logger.Warn().Err(err).Msg("remote audio playback")
			}
		}
	}

	c.mu.Lock()
	released := c.remote.apply(ev, track)
	n := c.remote.len()
	c.mu.Unlock()

	for _, rt := range released {
		rt.Stop()
	}
	metrics.SetRemoteParticipants(n)
	logger.Debug().Str("kind", string(ev.Kind)).Int("remote", n).Msg("remote event")
	c.changes.Notify()
}

// MergeRoster attaches backend identity to live participants and returns
// how many changed. It never creates or removes entries.
func (c *Coordinator) MergeRoster(entries []domain.RosterEntry) int {
	c.mu.Lock()
	n := c.remote.merge(entries)
	c.mu.Unlock()
	if n > 0 {
		c.changes.Notify()
	}
	return n
}

// Leave tears the session down. It is safe to call at any point and more
// than once; teardown errors are logged, never returned.
func (c *Coordinator) Leave(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	for c.state == Joining {
		cancel, done := c.cancelJoin, c.joinDone
		c.mu.Unlock()
		cancel()
		<-done
		c.mu.Lock()
	}
	switch c.state {
	case Idle:
		c.state = Left
		c.mu.Unlock()
		c.changes.Notify()
		return
	case Leaving, Left:
		c.mu.Unlock()
		return
	}
	c.state = Leaving
	client := c.client
	mic, camera, screen := c.mic, c.camera, c.screen
	stop, done := c.stopPump, c.pumpDone
	c.mu.Unlock()
	c.changes.Notify()

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.LeaveTimeout)
	defer cancel()

	if err := c.gateway.LeaveSession(lctx, c.meetingID); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Str("meeting", c.meetingID).Msg("backend leave failed")
	}
	closeTrack(screen, "screen")
	closeTrack(camera, "camera")
	closeTrack(mic, "microphone")
	if client != nil {
		if err := client.Leave(lctx); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("meeting", c.meetingID).Msg("client leave failed")
		}
	}
	if stop != nil {
		stop()
		<-done
	}

	c.mu.Lock()
	released := c.remote.reset()
	c.state = Left
	c.client = nil
	c.mic, c.camera, c.screen = nil, nil, nil
	c.micMuted, c.cameraOff, c.camPublished = false, false, false
	c.sharing, c.cameraWasOn = false, false
	c.stopPump, c.pumpDone = nil, nil
	c.mu.Unlock()

	for _, rt := range released {
		rt.Stop()
	}
	metrics.SetRemoteParticipants(0)
	log.Info().Str("module", "app.session").Str("meeting", c.meetingID).Msg("left")
	c.changes.Notify()
}

func closeTrack(t core.LocalTrack, name string) {
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Str("track", name).Msg("close track")
	}
}
