package runtime

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/domain/event"
	"sync"

	"github.com/google/uuid"
)

const defaultSubscriberBuffer = 64

// Subscription is one consumer of a session's event stream.
// Delivery never blocks the session: when the buffer is full the event is
// dropped for this subscriber only.
type Subscription struct {
	id       string
	events   chan event.SessionEvent
	registry contract.IRegistry

	mu     sync.Mutex
	closed bool
}

func newSubscription(registry contract.IRegistry, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Subscription{
		id:       uuid.NewString(),
		events:   make(chan event.SessionEvent, buffer),
		registry: registry,
	}
}

func (s *Subscription) ID() string { return s.id }

// Events is closed once Unsubscribe has been called.
func (s *Subscription) Events() <-chan event.SessionEvent { return s.events }

func (s *Subscription) Consume(e event.SessionEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// Unsubscribe detaches the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Unsubscribe() {
	s.registry.Unsubscribe(s.id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// Subscribe attaches a new consumer to the event stream.
// A non-positive buffer selects the session default.
func (s *Session) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = s.subscriberBuffer
	}
	sub := newSubscription(s.registry, buffer)
	s.registry.Subscribe(sub.id, sub)
	return sub
}

// OnMessage calls fn for every message appended to the log from now on,
// in log order, on a dedicated goroutine.
func (s *Session) OnMessage(fn func(domain.Message)) (unsubscribe func()) {
	sub := s.Subscribe(0)
	go func() {
		for e := range sub.Events() {
			if m, ok := e.(event.MessageReceived); ok {
				fn(m.Message)
			}
		}
	}()
	return sub.Unsubscribe
}

// OnConnectionChange calls fn for every state transition from now on.
func (s *Session) OnConnectionChange(fn func(event.ConnectionChanged)) (unsubscribe func()) {
	sub := s.Subscribe(0)
	go func() {
		for e := range sub.Events() {
			if c, ok := e.(event.ConnectionChanged); ok {
				fn(c)
			}
		}
	}()
	return sub.Unsubscribe
}
