// Package loopback is an in-process relay. Every chat message is routed to
// the members of its room, sender included.
package loopback

import (
	"chat-session/domain"
	"chat-session/errors"
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const defaultEventBuffer = 256

// Hub is the relay side shared by loopback clients.
type Hub struct {
	log     *slog.Logger
	mu      sync.RWMutex
	members map[uuid.UUID]*Client
	rooms   map[string]map[uuid.UUID]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log,
		members: make(map[uuid.UUID]*Client),
		rooms:   make(map[string]map[uuid.UUID]struct{}),
	}
}

// NewClient returns a disconnected client attached to h.
func (h *Hub) NewClient() *Client {
	return &Client{
		id:     uuid.New(),
		hub:    h,
		events: make(chan domain.InboundEvent, defaultEventBuffer),
	}
}

// Members lists the client IDs currently in room.
func (h *Hub) Members(room string) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Keys(h.rooms[room])
}

// Kick disconnects a client as if the relay dropped it.
func (h *Hub) Kick(id uuid.UUID, reason string) {
	h.mu.Lock()
	c, ok := h.members[id]
	if ok {
		h.detach(id)
	}
	h.mu.Unlock()
	if ok {
		c.deliver(domain.Disconnected(reason))
	}
}

func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[c.id] = c
}

// detach removes id from the hub and every room. Callers hold mu.
func (h *Hub) detach(id uuid.UUID) {
	delete(h.members, id)
	for room, ids := range h.rooms {
		delete(ids, id)
		if len(ids) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) join(id uuid.UUID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[id]; !ok {
		return errors.ErrNotConnected
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[uuid.UUID]struct{})
	}
	h.rooms[room][id] = struct{}{}
	return nil
}

func (h *Hub) leave(id uuid.UUID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[id]; !ok {
		return errors.ErrNotConnected
	}
	delete(h.rooms[room], id)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	return nil
}

// broadcast routes a chat message to room. The relay does not require the
// sender to be a member.
func (h *Hub) broadcast(from uuid.UUID, m domain.OutboundMessage) error {
	h.mu.RLock()
	if _, ok := h.members[from]; !ok {
		h.mu.RUnlock()
		return errors.ErrNotConnected
	}
	targets := lo.FilterMap(lo.Keys(h.rooms[m.Room]), func(id uuid.UUID, _ int) (*Client, bool) {
		c, ok := h.members[id]
		return c, ok
	})
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.deliver(domain.MessageArrived(m.Username, m.Message)) {
			h.log.Warn("Loopback member too slow, message dropped", "member", c.id, "room", m.Room)
		}
	}
	return nil
}

// Client is a contract.Transport attached to a Hub.
type Client struct {
	id     uuid.UUID
	hub    *Hub
	events chan domain.InboundEvent

	mu     sync.Mutex
	closed bool
}

func (c *Client) ID() uuid.UUID { return c.id }

func (c *Client) Events() <-chan domain.InboundEvent { return c.events }

func (c *Client) Connect(_ context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ErrTransportClosed
	}
	c.mu.Unlock()

	c.hub.attach(c)
	c.deliver(domain.Connected())
	return nil
}

func (c *Client) Join(room string) error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.hub.join(c.id, room)
}

func (c *Client) Leave(room string) error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.hub.leave(c.id, room)
}

func (c *Client) Send(room, message, username string) error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.hub.broadcast(c.id, domain.OutboundMessage{Room: room, Message: message, Username: username})
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	c.hub.detach(c.id)
	c.hub.mu.Unlock()
	return nil
}

func (c *Client) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrTransportClosed
	}
	return nil
}

// deliver hands e to the owner without blocking the hub.
func (c *Client) deliver(e domain.InboundEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- e:
		return true
	default:
		return false
	}
}
