package roster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/connectra/meeting-client/internal/core/mocks"
	"github.com/connectra/meeting-client/internal/domain"
)

type recordingMerger struct {
	mu     sync.Mutex
	known  map[domain.UID]string
	merges int
}

func newRecordingMerger(uids ...domain.UID) *recordingMerger {
	m := &recordingMerger{known: map[domain.UID]string{}}
	for _, u := range uids {
		m.known[u] = ""
	}
	return m
}

func (m *recordingMerger) MergeRoster(entries []domain.RosterEntry) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges++
	n := 0
	for _, e := range entries {
		if _, ok := m.known[e.UID]; ok {
			m.known[e.UID] = e.DisplayName
			n++
		}
	}
	return n
}

func (m *recordingMerger) name(uid domain.UID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.known[uid]
	return n, ok
}

func TestPollMergesKnownUIDs(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockMeetingService(ctrl)
	svc.EXPECT().Roster(gomock.Any(), "m1").Return([]domain.RosterEntry{
		{UID: "7", DisplayName: "Jane Doe", IsHost: true},
		{UID: "8", DisplayName: "Not Here"},
	}, nil)

	target := newRecordingMerger("7")
	r := New("m1", svc, target, Options{Interval: time.Second})
	require.NoError(t, r.Poll(context.Background()))

	name, ok := target.name("7")
	require.True(t, ok)
	require.Equal(t, "Jane Doe", name)
	_, ok = target.name("8")
	require.False(t, ok)

	e, ok := r.Lookup("8")
	require.True(t, ok)
	require.Equal(t, "Not Here", e.DisplayName)
}

func TestPollFailureKeepsEntriesAndDegrades(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockMeetingService(ctrl)
	gomock.InOrder(
		svc.EXPECT().Roster(gomock.Any(), "m1").Return([]domain.RosterEntry{{UID: "7", DisplayName: "Jane"}}, nil),
		svc.EXPECT().Roster(gomock.Any(), "m1").Return(nil, errors.New("502 bad gateway")).Times(3),
		svc.EXPECT().Roster(gomock.Any(), "m1").Return([]domain.RosterEntry{{UID: "7", DisplayName: "Jane"}}, nil),
	)

	var flips []bool
	target := newRecordingMerger("7")
	r := New("m1", svc, target, Options{Interval: time.Second, DegradedAfter: 3, OnDegraded: func(d bool) { flips = append(flips, d) }})

	require.NoError(t, r.Poll(context.Background()))
	for i := 0; i < 3; i++ {
		require.Error(t, r.Poll(context.Background()))
	}
	require.True(t, r.Degraded())
	require.Equal(t, 3, r.Failures())
	_, ok := r.Lookup("7")
	require.True(t, ok)
	name, _ := target.name("7")
	require.Equal(t, "Jane", name)

	require.NoError(t, r.Poll(context.Background()))
	require.False(t, r.Degraded())
	require.Zero(t, r.Failures())
	require.Equal(t, []bool{true, false}, flips)
}

func TestRunPollsImmediatelyAndStops(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockMeetingService(ctrl)
	polled := make(chan struct{}, 8)
	svc.EXPECT().Roster(gomock.Any(), "m1").DoAndReturn(func(context.Context, string) ([]domain.RosterEntry, error) {
		polled <- struct{}{}
		return nil, nil
	}).MinTimes(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r := New("m1", svc, newRecordingMerger(), Options{Interval: 10 * time.Millisecond})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	<-polled
	<-polled
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
