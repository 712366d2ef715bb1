package session

import (
	"context"
	"sync"
)

type EventType string

const (
	EventLog    EventType = "log"
	EventStatus EventType = "status"
)

type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusError   RunStatus = "error"
	StatusRebuild RunStatus = "rebuild_success"
)

// Event is one progress message delivered to a session subscriber.
type Event struct {
	Type   EventType `json:"type"`
	Text   string    `json:"text,omitempty"`
	Status RunStatus `json:"status,omitempty"`
	Data   any       `json:"data,omitempty"`
}

func Log(text string) Event { return Event{Type: EventLog, Text: text} }

func Status(status RunStatus, data any) Event {
	return Event{Type: EventStatus, Status: status, Data: data}
}

// DefaultMaxPending bounds how many undelivered log events a subscriber
// queues before older log lines are dropped. Status events are never
// dropped.
const DefaultMaxPending = 4096

// Registry maps session ids to at most one live subscriber each.
type Registry struct {
	mu         sync.Mutex
	subs       map[string]*Subscriber
	maxPending int
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscriber), maxPending: DefaultMaxPending}
}

// Attach registers a new subscriber for id, replacing and closing any
// previous one.
func (r *Registry) Attach(id string) *Subscriber {
	sub := &Subscriber{
		id:         id,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		maxPending: r.maxPending,
	}

	r.mu.Lock()
	prev := r.subs[id]
	r.subs[id] = sub
	r.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	return sub
}

// Detach removes sub if it is still the subscriber for its id.
func (r *Registry) Detach(sub *Subscriber) {
	r.mu.Lock()
	if r.subs[sub.id] == sub {
		delete(r.subs, sub.id)
	}
	r.mu.Unlock()
	sub.close()
}

// Publish enqueues ev for the subscriber of id. It never blocks; an
// event for a session without a subscriber is dropped.
func (r *Registry) Publish(id string, ev Event) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	sub := r.subs[id]
	r.mu.Unlock()
	if sub == nil {
		return false
	}
	return sub.push(ev)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Subscriber receives events for one session in publish order.
type Subscriber struct {
	id         string
	maxPending int

	mu      sync.Mutex
	pending []Event
	dropped int
	closed  bool

	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Subscriber) ID() string { return s.id }

// Done is closed when the subscriber is detached or replaced.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Dropped reports how many log events were discarded due to backlog.
func (s *Subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscriber) push(ev Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if ev.Type == EventLog && s.maxPending > 0 && len(s.pending) >= s.maxPending {
		if !s.dropOldestLog() {
			s.mu.Unlock()
			return false
		}
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return true
}

// dropOldestLog must be called with mu held.
func (s *Subscriber) dropOldestLog() bool {
	for i, ev := range s.pending {
		if ev.Type == EventLog {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.dropped++
			return true
		}
	}
	return false
}

// Next blocks until an event is available, the subscriber is closed, or
// ctx is done. ok is false once nothing more will be delivered.
func (s *Subscriber) Next(ctx context.Context) (Event, bool) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending[0] = Event{}
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return ev, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Event{}, false
		}

		select {
		case <-s.signal:
		case <-s.done:
		case <-ctx.Done():
			return Event{}, false
		}
	}
}

// Ready fires whenever new events may be available.
func (s *Subscriber) Ready() <-chan struct{} { return s.signal }

// TryNext returns the next queued event without blocking.
func (s *Subscriber) TryNext() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return Event{}, false
	}
	ev := s.pending[0]
	s.pending[0] = Event{}
	s.pending = s.pending[1:]
	return ev, true
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		close(s.done)
	})
}
