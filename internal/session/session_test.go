package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyGoesToStream(t *testing.T) {
	s := New("sess-1", 8)
	s.Log.Log("info", "hello", "test", nil)

	require.Equal(t, int64(1), s.Stream.LastID())
	replay, _, err := s.Stream.Attach("0")
	require.NoError(t, err)
	require.Len(t, replay, 1)
	assert.Equal(t, "message", replay[0].Name)

	var frame map[string]any
	require.NoError(t, json.Unmarshal([]byte(replay[0].Data), &frame))
	assert.Equal(t, "notifications/message", frame["method"])
}

func TestSetOutboundRedirectsNotifications(t *testing.T) {
	s := New("sess-1", 8)
	var got []byte
	s.SetOutbound(func(data []byte) { got = data })

	s.Notify("notifications/progress", map[string]any{"progress": 1.0})
	require.NotNil(t, got)
	assert.Equal(t, int64(0), s.Stream.LastID(), "outbound hook bypasses the stream")

	var frame map[string]any
	require.NoError(t, json.Unmarshal(got, &frame))
	assert.Equal(t, "notifications/progress", frame["method"])
}

func TestTrackAndCancelInFlight(t *testing.T) {
	s := New("sess-1", 8)

	ctx1, release1 := s.TrackRequest(context.Background())
	ctx2, release2 := s.TrackRequest(context.Background())
	defer release1()
	defer release2()

	assert.Equal(t, 2, s.CancelInFlight())
	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.ErrorIs(t, ctx2.Err(), context.Canceled)

	// Nothing left to cancel.
	assert.Equal(t, 0, s.CancelInFlight())
}

func TestReleaseRemovesTracking(t *testing.T) {
	s := New("sess-1", 8)
	ctx, release := s.TrackRequest(context.Background())
	release()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, 0, s.CancelInFlight())
}

func TestManagerCreateGetDelete(t *testing.T) {
	m := NewManager(nil)

	s, err := m.Create()
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = m.Get("no-such-session")
	assert.False(t, ok)

	assert.True(t, m.Delete(context.Background(), s.ID))
	assert.False(t, m.Delete(context.Background(), s.ID))
	assert.Equal(t, 0, m.Count())
}

func TestSessionIDEntropy(t *testing.T) {
	m := NewManager(nil)

	s, err := m.Create()
	require.NoError(t, err)

	// Session ids are bearer credentials: base64url over at least 128
	// bits of randomness.
	raw, err := base64.RawURLEncoding.DecodeString(s.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(raw), 16)

	other, err := m.Create()
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, other.ID)
}

func TestManagerSweepExpiresIdle(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewManager(nil, WithIdleTTL(10*time.Minute), WithManagerClock(clock))

	stale, err := m.Create()
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	fresh, err := m.Create()
	require.NoError(t, err)

	assert.Equal(t, 1, m.Sweep(context.Background()))
	_, ok := m.Get(stale.ID)
	assert.False(t, ok)
	_, ok = m.Get(fresh.ID)
	assert.True(t, ok)
}

func TestManagerShutdownClosesAll(t *testing.T) {
	m := NewManager(nil)
	s, err := m.Create()
	require.NoError(t, err)
	ctx, release := s.TrackRequest(context.Background())
	defer release()

	m.Shutdown(context.Background())
	assert.Equal(t, 0, m.Count())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestCloseCancelsInFlight(t *testing.T) {
	s := New("sess-1", 8)
	ctx, release := s.TrackRequest(context.Background())
	defer release()

	s.Close(context.Background())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
