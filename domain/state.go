package domain

// ConnectionState is the lifecycle position of a session's relay channel.
type ConnectionState int

const (
	// StateDisconnected means no relay channel is established.
	StateDisconnected ConnectionState = iota

	// StateConnecting means a connection attempt is in flight.
	StateConnecting

	// StateConnected means the channel is open and no room is joined.
	StateConnected

	// StateJoined means the channel is open and a room membership is active.
	StateJoined
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// IsOpen reports whether the relay channel is usable.
func (s ConnectionState) IsOpen() bool {
	return s == StateConnected || s == StateJoined
}
