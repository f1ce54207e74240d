package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/connectra/meeting-client/internal/domain"
)

type call struct {
	method, path, auth string
}

func newBackend(t *testing.T, routes map[string]string) (*Client, *[]call) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []call
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path, r.Header.Get("Authorization")})
		mu.Unlock()
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"message":"meeting not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if body == "401" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", AccessToken: "jwt"})
	require.NoError(t, err)
	return c, &calls
}

func TestJoinSessionDecodesDescriptor(t *testing.T) {
	c, calls := newBackend(t, map[string]string{
		"POST /api/meeting/m1/join": `{"success":true,"message":"ok","data":{"appId":"app","channelName":"ch","agoraToken":"tok","uid":1234,"isHost":true,"userName":"Dr. Lee"}}`,
	})

	desc, err := c.JoinSession(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, &domain.MediaSessionDescriptor{
		AppID: "app", ChannelName: "ch", Token: "tok", UID: domain.NumericUID(1234), IsHost: true, UserName: "Dr. Lee",
	}, desc)
	require.Equal(t, []call{{"POST", "/api/meeting/m1/join", "Bearer jwt"}}, *calls)
}

func TestJoinSessionRejectsIncompleteDescriptor(t *testing.T) {
	c, _ := newBackend(t, map[string]string{
		"POST /api/meeting/m1/join": `{"success":true,"data":{"appId":"app"}}`,
	})
	_, err := c.JoinSession(context.Background(), "m1")
	require.ErrorContains(t, err, "incomplete descriptor")
}

func TestGetMeetingAndRoster(t *testing.T) {
	c, _ := newBackend(t, map[string]string{
		"GET /api/meeting/m1":              `{"success":true,"data":{"meetingId":"m1","title":"Algorithms","status":"LIVE","createdById":3,"createdByName":"Dr. Lee"}}`,
		"GET /api/meeting/m1/participants": `{"success":true,"data":[{"agoraUid":7,"displayName":"Jane Doe","isHost":true},{"agoraUid":"8","displayName":"Ana"}]}`,
	})

	m, err := c.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, domain.MeetingLive, m.Status)
	require.Equal(t, "Dr. Lee", m.CreatedByName)

	entries, err := c.Roster(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, []domain.RosterEntry{
		{UID: "7", DisplayName: "Jane Doe", IsHost: true},
		{UID: "8", DisplayName: "Ana"},
	}, entries)
}

func TestStatusErrors(t *testing.T) {
	c, _ := newBackend(t, map[string]string{
		"PUT /api/meeting/m1/leave": "401",
		"POST /api/meeting/m2/join": `{"success":false,"message":"meeting is not live"}`,
	})

	err := c.LeaveSession(context.Background(), "m1")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = c.GetMeeting(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorContains(t, err, "meeting not found")

	err = c.RecordJoin(context.Background(), "m2")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "meeting is not live", se.Message)
}

func TestAttendanceUsesSessionEndpoints(t *testing.T) {
	c, calls := newBackend(t, map[string]string{
		"POST /api/meeting/m1/join": `{"success":true,"data":{"appId":"app","channelName":"ch","uid":5}}`,
		"PUT /api/meeting/m1/leave": `{"success":true,"message":"left"}`,
	})
	require.NoError(t, c.RecordJoin(context.Background(), "m1"))
	require.NoError(t, c.RecordLeave(context.Background(), "m1"))
	require.Len(t, *calls, 2)
	require.Equal(t, "PUT", (*calls)[1].method)
}

func TestNewRequiresAbsoluteURL(t *testing.T) {
	_, err := New(Config{BaseURL: "backend.local"})
	require.Error(t, err)
}
