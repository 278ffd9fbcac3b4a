package event

import (
	"chat-session/domain"
	"time"
)

// SessionEvent is published by the session to its subscribers.
type SessionEvent interface {
	Name() string
	OccurredAt() time.Time
}

// ConnectionChanged reports a state machine transition.
// LostRoom is set when the transition dropped an active membership.
type ConnectionChanged struct {
	From     domain.ConnectionState
	To       domain.ConnectionState
	Reason   string
	LostRoom string
	At       time.Time
}

func (ConnectionChanged) Name() string            { return "ConnectionChanged" }
func (e ConnectionChanged) OccurredAt() time.Time { return e.At }

// RoomJoined is the one-shot notification emitted on a successful join.
type RoomJoined struct {
	Room     string
	Username string
	At       time.Time
}

func (RoomJoined) Name() string            { return "RoomJoined" }
func (e RoomJoined) OccurredAt() time.Time { return e.At }

type RoomLeft struct {
	Room string
	At   time.Time
}

func (RoomLeft) Name() string            { return "RoomLeft" }
func (e RoomLeft) OccurredAt() time.Time { return e.At }

// MessageReceived carries a message just appended to the log.
// Index is its position in the log.
type MessageReceived struct {
	Message domain.Message
	Index   int
}

func (MessageReceived) Name() string            { return "MessageReceived" }
func (e MessageReceived) OccurredAt() time.Time { return e.Message.ReceivedAt }

// DeliveryFailed reports an outbound command the transport could not take.
type DeliveryFailed struct {
	Command string
	Room    string
	Text    string
	Err     error
	At      time.Time
}

func (DeliveryFailed) Name() string            { return "DeliveryFailed" }
func (e DeliveryFailed) OccurredAt() time.Time { return e.At }

// ReconnectScheduled announces the next automatic connection attempt.
type ReconnectScheduled struct {
	Attempt int
	Delay   time.Duration
	At      time.Time
}

func (ReconnectScheduled) Name() string            { return "ReconnectScheduled" }
func (e ReconnectScheduled) OccurredAt() time.Time { return e.At }
