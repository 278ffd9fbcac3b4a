// Package projection builds local timelines from observed events.
// Handles ordering, deduplication, and resync after dropped events.
// Does not emit events or interact with UI directly.
package projection

import (
	"chat-session/domain"
	"chat-session/domain/event"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Timeline mirrors the session message log from MessageReceived events.
type Timeline struct {
	mu       sync.RWMutex
	messages []domain.Message
	seen     map[uuid.UUID]struct{}
	room     string
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[uuid.UUID]struct{})}
}

// Consume applies e and reports whether the timeline missed earlier
// messages and needs a Resync.
func (t *Timeline) Consume(e event.SessionEvent) (gap bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch evt := e.(type) {
	case event.MessageReceived:
		if _, dup := t.seen[evt.Message.ID]; dup {
			return false
		}
		if evt.Index > len(t.messages) {
			return true
		}
		t.append(evt.Message)
	case event.RoomJoined:
		t.room = evt.Room
	case event.RoomLeft:
		t.room = ""
	case event.ConnectionChanged:
		if evt.To != domain.StateJoined {
			t.room = ""
		}
	}
	return false
}

// Resync replaces the mirrored log with the authoritative one.
func (t *Timeline) Resync(messages []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
	t.seen = make(map[uuid.UUID]struct{}, len(messages))
	for _, m := range messages {
		t.append(m)
	}
}

func (t *Timeline) append(m domain.Message) {
	t.seen[m.ID] = struct{}{}
	t.messages = append(t.messages, m)
}

func (t *Timeline) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.Message(nil), t.messages...)
}

// Room is the room the timeline last saw joined, empty when none.
func (t *Timeline) Room() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.room
}

// Authors lists distinct usernames in first-seen order.
func (t *Timeline) Authors() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lo.Uniq(lo.Map(t.messages, func(m domain.Message, _ int) string { return m.Username }))
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
