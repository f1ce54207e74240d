// Package signal provides side-channel transports.
package signal

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/core"
)

var ErrTransportClosed = errors.New("transport closed")

// Loopback is an in-process transport. Every subscriber of a channel,
// including the publisher's own subscription, receives each frame.
type Loopback struct {
	mu     sync.RWMutex
	subs   map[string]map[*loopbackSub]struct{}
	closed bool
	buffer int
}

type loopbackSub struct {
	ch   chan core.Frame
	once sync.Once
}

func (s *loopbackSub) close() { s.once.Do(func() { close(s.ch) }) }

func NewLoopback() *Loopback {
	return &Loopback{subs: make(map[string]map[*loopbackSub]struct{}), buffer: 64}
}

func (l *Loopback) Publish(ctx context.Context, channel string, f core.Frame) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrTransportClosed
	}
	for sub := range l.subs[channel] {
		select {
		case sub.ch <- append(core.Frame(nil), f...):
		default:
			log.Warn().Str("module", "adapters.signal").Str("channel", channel).Msg("loopback subscriber slow, frame dropped")
		}
	}
	return nil
}

func (l *Loopback) Subscribe(ctx context.Context, channel string) (<-chan core.Frame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrTransportClosed
	}
	sub := &loopbackSub{ch: make(chan core.Frame, l.buffer)}
	if l.subs[channel] == nil {
		l.subs[channel] = make(map[*loopbackSub]struct{})
	}
	l.subs[channel][sub] = struct{}{}

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs[channel], sub)
		if len(l.subs[channel]) == 0 {
			delete(l.subs, channel)
		}
		l.mu.Unlock()
		sub.close()
	}()
	return sub.ch, nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, subs := range l.subs {
		for sub := range subs {
			sub.close()
		}
	}
	l.subs = make(map[string]map[*loopbackSub]struct{})
	return nil
}
