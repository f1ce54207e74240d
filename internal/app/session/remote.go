package session

import (
	"github.com/connectra/meeting-client/internal/core"
	"github.com/connectra/meeting-client/internal/domain"
)

// remoteSet is the UID-keyed set of remote participants in first-seen order.
// Only a user-left event removes an entry.
type remoteSet struct {
	order []domain.UID
	byUID map[domain.UID]*domain.RemoteParticipant
}

func newRemoteSet() *remoteSet {
	return &remoteSet{byUID: make(map[domain.UID]*domain.RemoteParticipant)}
}

func (s *remoteSet) len() int { return len(s.order) }

func (s *remoteSet) get(uid domain.UID) (*domain.RemoteParticipant, bool) {
	p, ok := s.byUID[uid]
	return p, ok
}

func (s *remoteSet) upsert(uid domain.UID) *domain.RemoteParticipant {
	if p, ok := s.byUID[uid]; ok {
		return p
	}
	p := &domain.RemoteParticipant{UID: uid}
	s.byUID[uid] = p
	s.order = append(s.order, uid)
	return p
}

// apply folds one engine event into the set. track is the subscribed remote
// track for a publish event. Tracks that are no longer referenced are
// returned so the caller can stop them.
func (s *remoteSet) apply(ev core.Event, track core.RemoteTrack) []core.RemoteTrack {
	switch ev.Type {
	case core.UserJoined:
		s.upsert(ev.UID)
	case core.UserPublished:
		p := s.upsert(ev.UID)
		if track == nil {
			return nil
		}
		var prev domain.Track
		switch ev.Kind {
		case domain.MediaVideo:
			prev, p.VideoTrack, p.HasVideo = p.VideoTrack, track, true
		case domain.MediaAudio:
			prev, p.AudioTrack, p.HasAudio = p.AudioTrack, track, true
		}
		if prev != nil && prev != domain.Track(track) {
			return remoteTracks(prev)
		}
	case core.UserUnpublished:
		p, ok := s.byUID[ev.UID]
		if !ok {
			return nil
		}
		var prev domain.Track
		switch ev.Kind {
		case domain.MediaVideo:
			prev, p.VideoTrack, p.HasVideo = p.VideoTrack, nil, false
		case domain.MediaAudio:
			prev, p.AudioTrack, p.HasAudio = p.AudioTrack, nil, false
		}
		return remoteTracks(prev)
	case core.UserLeft:
		p, ok := s.remove(ev.UID)
		if !ok {
			return nil
		}
		return remoteTracks(p.VideoTrack, p.AudioTrack)
	}
	return nil
}

func (s *remoteSet) remove(uid domain.UID) (*domain.RemoteParticipant, bool) {
	p, ok := s.byUID[uid]
	if !ok {
		return nil, false
	}
	delete(s.byUID, uid)
	for i, u := range s.order {
		if u == uid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return p, true
}

// merge attaches roster identity to known UIDs. Unknown UIDs are ignored.
func (s *remoteSet) merge(entries []domain.RosterEntry) int {
	n := 0
	for _, e := range entries {
		p, ok := s.byUID[e.UID]
		if !ok {
			continue
		}
		if p.DisplayName != e.DisplayName || p.IsHost != e.IsHost {
			p.DisplayName = e.DisplayName
			p.IsHost = e.IsHost
			n++
		}
	}
	return n
}

func (s *remoteSet) snapshot() []domain.RemoteParticipant {
	out := make([]domain.RemoteParticipant, 0, len(s.order))
	for _, uid := range s.order {
		out = append(out, *s.byUID[uid])
	}
	return out
}

// reset empties the set and returns every track it held.
func (s *remoteSet) reset() []core.RemoteTrack {
	var out []core.RemoteTrack
	for _, p := range s.byUID {
		out = append(out, remoteTracks(p.VideoTrack, p.AudioTrack)...)
	}
	s.order = nil
	s.byUID = make(map[domain.UID]*domain.RemoteParticipant)
	return out
}

func remoteTracks(tracks ...domain.Track) []core.RemoteTrack {
	var out []core.RemoteTrack
	for _, t := range tracks {
		if rt, ok := t.(core.RemoteTrack); ok && rt != nil {
			out = append(out, rt)
		}
	}
	return out
}
