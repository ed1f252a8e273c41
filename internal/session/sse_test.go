package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAssignsMonotonicIDs(t *testing.T) {
	s := NewStream(8)
	for i := 1; i <= 5; i++ {
		ev := s.Send("message", "payload")
		assert.Equal(t, int64(i), ev.ID)
	}
	assert.Equal(t, int64(5), s.LastID())
	assert.Equal(t, "5", Event{ID: 5}.WireID())
}

func TestAttachEmptyHeaderIsLiveOnly(t *testing.T) {
	s := NewStream(8)
	s.Send("message", "one")
	s.Send("message", "two")

	replay, ch, err := s.Attach("")
	require.NoError(t, err)
	assert.Empty(t, replay, "fresh attach must not replay history")

	ev := s.Send("message", "three")
	got := <-ch
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "three", got.Data)
}

func TestReplayWindow(t *testing.T) {
	// Ring of 16, 100 events sent: ids 85..100 remain buffered.
	s := NewStream(16)
	for i := 1; i <= 100; i++ {
		s.Send("message", fmt.Sprintf("event-%d", i))
	}

	replay, _, err := s.Attach("88")
	require.NoError(t, err)
	require.Len(t, replay, 12)
	for i, ev := range replay {
		assert.Equal(t, int64(89+i), ev.ID)
	}

	// id 10 was evicted long ago.
	_, _, err = s.Attach("10")
	assert.ErrorIs(t, err, ErrReplayImpossible)
}

func TestReplayOldestBoundary(t *testing.T) {
	s := NewStream(16)
	for i := 1; i <= 100; i++ {
		s.Send("message", "x")
	}

	// Oldest buffered id is 85; a client that last saw 84 can still be
	// caught up completely.
	replay, _, err := s.Attach("84")
	require.NoError(t, err)
	assert.Len(t, replay, 16)
	assert.Equal(t, int64(85), replay[0].ID)

	_, _, err = s.Attach("83")
	assert.ErrorIs(t, err, ErrReplayImpossible)
}

func TestReplayFutureIDImpossible(t *testing.T) {
	s := NewStream(16)
	s.Send("message", "only")

	_, _, err := s.Attach("5")
	assert.ErrorIs(t, err, ErrReplayImpossible)
}

func TestAttachMalformedID(t *testing.T) {
	s := NewStream(16)
	for _, bad := range []string{"abc", "-1", "1.5"} {
		_, _, err := s.Attach(bad)
		assert.Error(t, err, "id %q", bad)
		assert.NotErrorIs(t, err, ErrReplayImpossible)
	}
}

func TestAttachReplacesSubscriber(t *testing.T) {
	s := NewStream(8)
	_, first, err := s.Attach("")
	require.NoError(t, err)

	_, second, err := s.Attach("")
	require.NoError(t, err)

	_, open := <-first
	assert.False(t, open, "first subscriber channel must be closed")

	s.Send("message", "x")
	got := <-second
	assert.Equal(t, "x", got.Data)
}

func TestSlowSubscriberDropped(t *testing.T) {
	s := NewStream(2)
	_, ch, err := s.Attach("")
	require.NoError(t, err)

	// Channel buffer is the ring capacity (2); the third send finds it full
	// and drops the subscriber.
	s.Send("message", "1")
	s.Send("message", "2")
	s.Send("message", "3")

	seen := 0
	for range ch {
		seen++
	}
	assert.Equal(t, 2, seen)
	// Replay after the drop recovers the missed event.
	replay, _, err := s.Attach("2")
	require.NoError(t, err)
	require.Len(t, replay, 1)
	assert.Equal(t, int64(3), replay[0].ID)
}

func TestDetachOnlyRemovesOwnChannel(t *testing.T) {
	s := NewStream(8)
	_, first, err := s.Attach("")
	require.NoError(t, err)
	_, second, err := s.Attach("")
	require.NoError(t, err)

	// first was already replaced; detaching it must not disturb second.
	s.Detach(first)
	s.Send("message", "x")
	got := <-second
	assert.Equal(t, "x", got.Data)

	s.Detach(second)
	_, open := <-second
	assert.False(t, open)
}
