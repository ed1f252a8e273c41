package session

import (
	"errors"
	"strconv"
	"sync"
)

// DefaultRingSize is how many events a stream retains for replay.
const DefaultRingSize = 1024

// ErrReplayImpossible signals that the requested Last-Event-ID has been
// evicted from the ring; the client must re-initialize.
var ErrReplayImpossible = errors.New("requested event id no longer buffered, re-initialize the session")

// Event is one SSE frame. IDs are strictly monotonic per stream, starting
// at 1, and rendered as decimal strings on the wire.
type Event struct {
	ID    int64
	Name  string // optional event: field
	Data  string
	Retry int // optional retry: field, milliseconds
}

// WireID renders the id field.
func (e Event) WireID() string {
	return strconv.FormatInt(e.ID, 10)
}

// Stream is an ordered, replayable event buffer for one session.
//
// Events are retained in a fixed-capacity ring; Send evicts the oldest
// entry when full. At most one live subscriber is attached at a time — a
// reconnect replaces the previous responder.
type Stream struct {
	mu       sync.Mutex
	ring     []Event
	capacity int
	nextID   int64

	subscriber chan Event
}

// NewStream creates a stream retaining up to capacity events.
// Non-positive capacities fall back to DefaultRingSize.
func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &Stream{
		ring:     make([]Event, 0, capacity),
		capacity: capacity,
		nextID:   1,
	}
}

// Send assigns the next id, buffers the event, and forwards it to the
// attached subscriber if any. A subscriber that cannot keep up is dropped;
// it will recover missed events through replay on reconnect.
func (s *Stream) Send(name, data string) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := Event{ID: s.nextID, Name: name, Data: data}
	s.nextID++

	if len(s.ring) == s.capacity {
		copy(s.ring, s.ring[1:])
		s.ring[len(s.ring)-1] = ev
	} else {
		s.ring = append(s.ring, ev)
	}

	if s.subscriber != nil {
		select {
		case s.subscriber <- ev:
		default:
			close(s.subscriber)
			s.subscriber = nil
		}
	}
	return ev
}

// Attach registers a subscriber, replaying missed history first.
//
// lastEventID is the raw Last-Event-ID header value. Empty means a fresh
// stream: no replay, live events only. Otherwise the returned slice holds
// all buffered events with id > lastEventID in order; subsequent events
// arrive on the channel until Detach or replacement by a newer Attach. A
// lastEventID outside the buffered window returns ErrReplayImpossible.
func (s *Stream) Attach(lastEventID string) ([]Event, <-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	after := s.nextID - 1 // fresh attach: everything so far is considered seen
	if lastEventID != "" {
		parsed, err := strconv.ParseInt(lastEventID, 10, 64)
		if err != nil || parsed < 0 {
			return nil, nil, errors.New("malformed Last-Event-ID")
		}
		after = parsed

		if after > s.nextID-1 {
			// Client claims an id we never issued.
			return nil, nil, ErrReplayImpossible
		}
		if len(s.ring) > 0 && after < s.ring[0].ID-1 {
			// Events between after and the oldest buffered id are gone.
			return nil, nil, ErrReplayImpossible
		}
		if len(s.ring) == 0 && after < s.nextID-1 {
			return nil, nil, ErrReplayImpossible
		}
	}

	var replay []Event
	for _, ev := range s.ring {
		if ev.ID > after {
			replay = append(replay, ev)
		}
	}

	if s.subscriber != nil {
		close(s.subscriber)
	}
	s.subscriber = make(chan Event, s.capacity)
	return replay, s.subscriber, nil
}

// Detach removes the subscriber if ch is still the active one.
func (s *Stream) Detach(ch <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriber != nil && ch == s.subscriber {
		close(s.subscriber)
		s.subscriber = nil
	}
}

// LastID returns the most recently assigned event id, 0 if none.
func (s *Stream) LastID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID - 1
}
