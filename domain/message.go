// Package domain contains core concepts of the chat session.
// This file defines Message entries of the session log.
// Messages are immutable once appended.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one entry of the session log.
// Room is the room the session was joined to when the message arrived,
// empty if it arrived outside of any membership. ID is a local rendering key.
type Message struct {
	ID         uuid.UUID
	Username   string
	Content    string
	Room       string
	ReceivedAt time.Time
}

// IsFrom reports whether the message was written under the given username.
func (m Message) IsFrom(username string) bool {
	return username != "" && m.Username == username
}

// MessagePayload is the relay's inbound message shape.
// Field names are fixed by the relay wire format.
type MessagePayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// OutboundMessage is the relay's chatMessage shape.
type OutboundMessage struct {
	Room     string `json:"room"`
	Message  string `json:"message"`
	Username string `json:"username"`
}
