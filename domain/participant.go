// Package domain contains core concepts of the chat session.
// This file defines the username binding of the local participant.
// A username is a display key only and carries no identity.
package domain

// CanSend reports whether a message may be sent with the given binding.
func CanSend(state ConnectionState, room, username, text string) bool {
	return state == StateJoined && room != "" && username != "" && text != ""
}

// CanRename reports whether the username may change in the given state.
func CanRename(state ConnectionState) bool {
	return state != StateJoined
}
