// Package room composes the session, roster and side-channel of one meeting
// into the state a participant sees.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/connectra/meeting-client/internal/app/messaging"
	"github.com/connectra/meeting-client/internal/app/notify"
	"github.com/connectra/meeting-client/internal/app/roster"
	"github.com/connectra/meeting-client/internal/app/session"
	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/domain"
)

type Deps struct {
	Meetings   core.MeetingService
	Attendance core.AttendanceRecorder
	Session    *session.Coordinator
	// Channel is optional. Without it names fall back and mute-all is inert.
	Channel *messaging.Channel
}

type Options struct {
	StatusInterval      time.Duration
	RosterInterval      time.Duration
	TickInterval        time.Duration
	RosterDegradedAfter int
	LeaveTimeout        time.Duration
	// UserName labels the local participant until the session descriptor
	// is known.
	UserName string
}

func DefaultOptions() Options {
	return Options{
		StatusInterval:      10 * time.Second,
		RosterInterval:      5 * time.Second,
		TickInterval:        time.Second,
		RosterDegradedAfter: 6,
		LeaveTimeout:        5 * time.Second,
	}
}

// Why the room ended.
const (
	EndLeft          = "left"
	EndMeetingOver   = "meeting_ended"
	EndJoinFailed    = "join_failed"
	EndContextClosed = "closed"
)

type Controller struct {
	meetingID string
	deps      Deps
	opts      Options
	roster    *roster.Reconciler

	mu           sync.RWMutex
	meeting      *domain.Meeting
	elapsed      time.Duration
	joinedAt     time.Time
	stopJoined   context.CancelFunc
	attendJoined bool
	sharing      bool
	endReason    string

	endOnce sync.Once
	ended   chan struct{}

	changes *notify.Notifier
}

func New(deps Deps, opts Options) *Controller {
	def := DefaultOptions()
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = def.StatusInterval
	}
	if opts.RosterInterval <= 0 {
		opts.RosterInterval = def.RosterInterval
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.RosterDegradedAfter <= 0 {
		opts.RosterDegradedAfter = def.RosterDegradedAfter
	}
	if opts.LeaveTimeout <= 0 {
		opts.LeaveTimeout = def.LeaveTimeout
	}
	c := &Controller{
		meetingID: deps.Session.MeetingID(),
		deps:      deps,
		opts:      opts,
		ended:     make(chan struct{}),
		changes:   notify.New(),
	}
	c.roster = roster.New(c.meetingID, deps.Meetings, deps.Session, roster.Options{
		Interval:      opts.RosterInterval,
		DegradedAfter: opts.RosterDegradedAfter,
		OnDegraded:    func(bool) { c.changes.Notify() },
	})
	return c
}

func (c *Controller) MeetingID() string { return c.meetingID }

func (c *Controller) Session() *session.Coordinator { return c.deps.Session }

// Channel returns the side-channel, nil when the room runs without one.
func (c *Controller) Channel() *messaging.Channel { return c.deps.Channel }

func (c *Controller) Watch() (<-chan struct{}, func()) {
	return c.changes.Watch()
}

// Ended is closed once the room is over, for whatever reason.
func (c *Controller) Ended() <-chan struct{} { return c.ended }

func (c *Controller) EndReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endReason
}

func (c *Controller) end(reason string) {
	c.endOnce.Do(func() {
		c.mu.Lock()
		c.endReason = reason
		c.mu.Unlock()
		close(c.ended)
		log.Info().Str("module", "app.room").Str("meeting", c.meetingID).Str("reason", reason).Msg("room ended")
		c.changes.Notify()
	})
}

// Run drives the room until ctx is done or the room ends, then leaves.
// A failed join is returned; the session snapshot keeps its classified
// error for display.
func (c *Controller) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	var wg conc.WaitGroup
	defer func() {
		cancel()
		if r := wg.WaitAndRecover(); r != nil {
			log.Error().Str("module", "app.room").Str("meeting", c.meetingID).Str("panic", r.String()).Msg("room loop panicked")
		}
	}()

	c.fetchMeeting(runCtx)

	changes, stop := c.deps.Session.Watch()
	defer stop()
	wg.Go(func() { c.watchSession(runCtx, changes, &wg) })

	if err := c.deps.Session.Join(runCtx); err != nil {
		var je *session.JoinError
		switch {
		case errors.As(err, &je), errors.Is(err, session.ErrNoMeeting):
			c.end(EndJoinFailed)
			return err
		case runCtx.Err() == nil:
			// Left while joining.
			c.end(EndLeft)
		}
	}

	select {
	case <-runCtx.Done():
		c.end(EndContextClosed)
	case <-c.ended:
	}
	c.leave()
	return nil
}

// Leave ends the room on behalf of the user.
func (c *Controller) Leave(ctx context.Context) {
	c.deps.Session.Leave(ctx)
	c.end(EndLeft)
}

func (c *Controller) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.LeaveTimeout)
	defer cancel()
	c.deps.Session.Leave(ctx)
	c.onLeft(ctx)
	if c.deps.Channel != nil {
		c.deps.Channel.Close()
	}
}

func (c *Controller) fetchMeeting(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, c.opts.StatusInterval)
	defer cancel()
	m, err := c.deps.Meetings.GetMeeting(fctx, c.meetingID)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.room").Str("meeting", c.meetingID).Msg("meeting fetch failed")
		return
	}
	c.setMeeting(m)
}

func (c *Controller) setMeeting(m *domain.Meeting) {
	c.mu.Lock()
	c.meeting = m
	c.mu.Unlock()
	c.changes.Notify()
}

// watchSession turns coordinator changes into edge-triggered room effects.
func (c *Controller) watchSession(ctx context.Context, changes <-chan struct{}, wg *conc.WaitGroup) {
	prev := session.Idle
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
		}
		snap := c.deps.Session.Snapshot()
		if snap.State != prev {
			log.Debug().Str("module", "app.room").Str("meeting", c.meetingID).Str("from", prev.String()).Str("to", snap.State.String()).Msg("session state changed")
			switch {
			case snap.State == session.Joined && prev != session.Joined:
				c.onJoined(ctx, snap, wg)
			case snap.State == session.Left && (prev == session.Joined || prev == session.Leaving):
				c.onLeft(ctx)
				c.end(EndLeft)
			}
			prev = snap.State
		}
		if snap.Joined {
			c.syncSharing(ctx, snap)
		}
		c.changes.Notify()
	}
}

func (c *Controller) onJoined(ctx context.Context, snap session.Snapshot, wg *conc.WaitGroup) {
	user := snap.User
	joinedCtx, stopJoined := context.WithCancel(ctx)

	c.mu.Lock()
	c.stopJoined = stopJoined
	c.joinedAt = time.Now()
	c.elapsed = 0
	c.sharing = snap.Local.ScreenSharing
	c.mu.Unlock()

	if user != nil && !user.IsHost {
		// The record outlives a leave that lands while it is in flight.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(joinedCtx), c.opts.LeaveTimeout)
		err := c.deps.Attendance.RecordJoin(rctx, c.meetingID)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("module", "app.room").Str("meeting", c.meetingID).Msg("attendance join failed")
		} else {
			c.mu.Lock()
			left := joinedCtx.Err() != nil
			if !left {
				c.attendJoined = true
			}
			c.mu.Unlock()
			if left {
				c.recordLeave(ctx)
				return
			}
		}
		wg.Go(func() { c.pollStatus(joinedCtx) })
	}
	wg.Go(func() { c.roster.Run(joinedCtx) })
	wg.Go(func() { c.tick(joinedCtx) })
	if c.deps.Channel != nil && user != nil {
		wg.Go(func() { c.runSideChannel(joinedCtx, *user) })
	}
}

// onLeft stops the joined loops and records attendance leave once.
func (c *Controller) onLeft(ctx context.Context) {
	c.mu.Lock()
	if c.stopJoined != nil {
		c.stopJoined()
		c.stopJoined = nil
	}
	record := c.attendJoined
	c.attendJoined = false
	c.mu.Unlock()

	if record {
		c.recordLeave(ctx)
	}
}

func (c *Controller) recordLeave(ctx context.Context) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.LeaveTimeout)
	defer cancel()
	if err := c.deps.Attendance.RecordLeave(lctx, c.meetingID); err != nil {
		log.Warn().Err(err).Str("module", "app.room").Str("meeting", c.meetingID).Msg("attendance leave failed")
	}
}

// pollStatus ends the room once the meeting reaches a terminal status.
func (c *Controller) pollStatus(ctx context.Context) {
	ticker := time.NewTicker(c.opts.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pctx, cancel := context.WithTimeout(ctx, c.opts.StatusInterval)
		m, err := c.deps.Meetings.GetMeeting(pctx, c.meetingID)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "app.room").Str("meeting", c.meetingID).Msg("status poll failed")
			}
			continue
		}
		c.setMeeting(m)
		if m.Status.Terminal() {
			log.Info().Str("module", "app.room").Str("meeting", c.meetingID).Str("status", string(m.Status)).Msg("meeting is over")
			c.end(EndMeetingOver)
			return
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.elapsed += c.opts.TickInterval
			c.mu.Unlock()
			c.changes.Notify()
		}
	}
}

func (c *Controller) runSideChannel(ctx context.Context, user domain.CurrentUser) {
	ch := c.deps.Channel
	if err := ch.Connect(ctx, c.meetingID, user.UID); err != nil {
		// Names fall back and mute-all stays inert.
		return
	}
	changes, stop := ch.Watch()
	defer stop()

	c.broadcastSelf(ctx, user, c.deps.Session.Snapshot().Local.ScreenSharing)

	var applied time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
		}
		if state := ch.MuteAll(); state.Muted && !state.FromSelf && !user.IsHost && state.At.After(applied) {
			applied = state.At
			_, err := c.deps.Session.SetMicMuted(true)
			switch {
			case err == nil:
				log.Info().Str("module", "app.room").Str("meeting", c.meetingID).Str("issuer", state.IssuerName).Msg("muted by host")
			case !errors.Is(err, session.ErrNoTrack):
				log.Warn().Err(err).Str("module", "app.room").Str("meeting", c.meetingID).Msg("mute-all enforcement failed")
			}
		}
		c.changes.Notify()
	}
}

func (c *Controller) broadcastSelf(ctx context.Context, user domain.CurrentUser, sharing bool) {
	err := c.deps.Channel.BroadcastParticipantInfo(ctx, messaging.ParticipantInfo{
		UID:           user.UID,
		DisplayName:   user.UserName,
		IsHost:        user.IsHost,
		ScreenSharing: sharing,
	})
	if err != nil && !errors.Is(err, messaging.ErrNotConnected) {
		log.Warn().Err(err).Str("module", "app.room").Str("meeting", c.meetingID).Msg("presence broadcast failed")
	}
}

// syncSharing rebroadcasts presence when the local screen share flips.
func (c *Controller) syncSharing(ctx context.Context, snap session.Snapshot) {
	c.mu.Lock()
	changed := c.sharing != snap.Local.ScreenSharing
	c.sharing = snap.Local.ScreenSharing
	c.mu.Unlock()
	if !changed || c.deps.Channel == nil || snap.User == nil || !c.deps.Channel.Connected() {
		return
	}
	c.broadcastSelf(ctx, *snap.User, snap.Local.ScreenSharing)
}

// MuteAll broadcasts a mute-all as the local host.
func (c *Controller) MuteAll(ctx context.Context, muted bool) error {
	snap := c.deps.Session.Snapshot()
	if snap.User == nil || !snap.User.IsHost {
		return ErrNotHost
	}
	if c.deps.Channel == nil {
		return messaging.ErrNotConnected
	}
	return c.deps.Channel.BroadcastMuteAll(ctx, muted, snap.User.UserName)
}

func (c *Controller) RaiseHand(ctx context.Context) error {
	u, err := c.self()
	if err != nil {
		return err
	}
	return c.deps.Channel.RaiseHand(ctx, u.UID, u.UserName)
}

func (c *Controller) LowerHand(ctx context.Context) error {
	u, err := c.self()
	if err != nil {
		return err
	}
	return c.deps.Channel.LowerHand(ctx, u.UID)
}

func (c *Controller) self() (*domain.CurrentUser, error) {
	snap := c.deps.Session.Snapshot()
	if snap.User == nil || !snap.Joined {
		return nil, session.ErrNotJoined
	}
	if c.deps.Channel == nil {
		return nil, messaging.ErrNotConnected
	}
	return snap.User, nil
}

// View derives the current room view.
func (c *Controller) View() View {
	in := ViewInput{
		Session:        c.deps.Session.Snapshot(),
		UserName:       c.opts.UserName,
		RosterDegraded: c.roster.Degraded(),
	}
	c.mu.RLock()
	if c.meeting != nil {
		m := *c.meeting
		in.Meeting = &m
	}
	in.Elapsed = c.elapsed
	in.Ended = c.endReason != ""
	c.mu.RUnlock()

	if ch := c.deps.Channel; ch != nil {
		in.Presence = ch.Presence()
		in.Hands = ch.RaisedHands()
		in.MuteAll = ch.MuteAll()
		in.SideChannel = ch.Connected()
	}
	return BuildView(in)
}
