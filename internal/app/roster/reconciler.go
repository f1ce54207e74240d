// Package roster keeps remote participant identity current from the
// backend participant roster.
package roster

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/domain"
	"github.com/connectra/meeting-client/internal/metrics"
)

type Source interface {
	Roster(ctx context.Context, meetingID string) ([]domain.RosterEntry, error)
}

// Merger receives roster entries. It must never create participants.
type Merger interface {
	MergeRoster(entries []domain.RosterEntry) int
}

type Options struct {
	Interval time.Duration
	// DegradedAfter is the number of consecutive failed polls after which
	// the roster is reported as degraded.
	DegradedAfter int
	// OnDegraded is called when the degraded flag flips.
	OnDegraded func(degraded bool)
}

type Reconciler struct {
	meetingID string
	source    Source
	target    Merger
	opts      Options

	mu          sync.RWMutex
	entries     map[domain.UID]domain.RosterEntry
	failures    int
	degraded    bool
	lastErr     error
	lastSuccess time.Time
}

func New(meetingID string, source Source, target Merger, opts Options) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.DegradedAfter <= 0 {
		opts.DegradedAfter = 6
	}
	return &Reconciler{
		meetingID: meetingID,
		source:    source,
		target:    target,
		opts:      opts,
		entries:   make(map[domain.UID]domain.RosterEntry),
	}
}

// Run polls immediately and then on every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	log.Info().Str("module", "app.roster").Str("meeting", r.meetingID).Dur("interval", r.opts.Interval).Msg("roster polling started")
	defer log.Info().Str("module", "app.roster").Str("meeting", r.meetingID).Msg("roster polling stopped")

	_ = r.Poll(ctx)
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Poll(ctx)
		}
	}
}

// Poll fetches the roster once and merges it. Failures are counted and
// logged; previous entries stay in place.
func (r *Reconciler) Poll(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, r.opts.Interval)
	defer cancel()

	entries, err := r.source.Roster(pctx, r.meetingID)
	metrics.ObserveRosterPoll(err)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		r.fail(err)
		return err
	}

	merged := r.target.MergeRoster(entries)

	r.mu.Lock()
	r.entries = make(map[domain.UID]domain.RosterEntry, len(entries))
	for _, e := range entries {
		r.entries[e.UID] = e
	}
	r.failures = 0
	r.lastErr = nil
	r.lastSuccess = time.Now()
	flipped := r.degraded
	r.degraded = false
	r.mu.Unlock()

	if flipped {
		r.setDegraded(false)
	}
	log.Debug().Str("module", "app.roster").Str("meeting", r.meetingID).Int("entries", len(entries)).Int("merged", merged).Msg("roster merged")
	return nil
}

func (r *Reconciler) fail(err error) {
	r.mu.Lock()
	r.failures++
	r.lastErr = err
	failures := r.failures
	flipped := !r.degraded && failures >= r.opts.DegradedAfter
	if flipped {
		r.degraded = true
	}
	r.mu.Unlock()

	log.Warn().Err(err).Str("module", "app.roster").Str("meeting", r.meetingID).Int("failures", failures).Msg("roster poll failed")
	if flipped {
		r.setDegraded(true)
	}
}

func (r *Reconciler) setDegraded(degraded bool) {
	metrics.SetRosterDegraded(degraded)
	if degraded {
		log.Error().Str("module", "app.roster").Str("meeting", r.meetingID).Msg("roster degraded")
	} else {
		log.Info().Str("module", "app.roster").Str("meeting", r.meetingID).Msg("roster recovered")
	}
	if r.opts.OnDegraded != nil {
		r.opts.OnDegraded(degraded)
	}
}

func (r *Reconciler) Degraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded
}

func (r *Reconciler) Failures() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failures
}

// Lookup returns the last known roster entry for uid.
func (r *Reconciler) Lookup(uid domain.UID) (domain.RosterEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[uid]
	return e, ok
}
