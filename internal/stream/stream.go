package stream

import (
	"context"
	"sync"
	"time"
)

// IncidentEvent describes a status change pushed to public feed watchers.
type IncidentEvent struct {
	Kind       string    `json:"kind"` // incident.created | incident.resolved
	ProjectID  string    `json:"project_id"`
	IncidentID string    `json:"incident_id"`
	Title      string    `json:"title"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stream fan-outs incident events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan IncidentEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan IncidentEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan IncidentEvent {
	ch := make(chan IncidentEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt IncidentEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
