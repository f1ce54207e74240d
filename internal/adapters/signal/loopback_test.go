package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/connectra/meeting-client/internal/core"
)

func recv(t *testing.T, ch <-chan core.Frame) core.Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		require.True(t, ok, "channel closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
		return nil
	}
}

func TestLoopbackFanOut(t *testing.T) {
	bus := NewLoopback()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bus.Subscribe(ctx, "meeting:1")
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, "meeting:1")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "meeting:2")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "meeting:1", core.Frame(`{"x":1}`)))
	require.Equal(t, core.Frame(`{"x":1}`), recv(t, a))
	require.Equal(t, core.Frame(`{"x":1}`), recv(t, b))
	select {
	case f := <-other:
		t.Fatalf("unexpected frame %s", f)
	default:
	}
}

func TestLoopbackUnsubscribeOnCancel(t *testing.T) {
	bus := NewLoopback()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, "c")
	require.NoError(t, err)
	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestLoopbackClosed(t *testing.T) {
	bus := NewLoopback()
	require.NoError(t, bus.Close())
	require.ErrorIs(t, bus.Publish(context.Background(), "c", nil), ErrTransportClosed)
	_, err := bus.Subscribe(context.Background(), "c")
	require.ErrorIs(t, err, ErrTransportClosed)
}

func TestRedisChannel(t *testing.T) {
	require.Equal(t, "connectra:meeting:1", RedisChannel("connectra", "meeting:1"))
	require.Equal(t, "meeting:1", RedisChannel("", "meeting:1"))
}
