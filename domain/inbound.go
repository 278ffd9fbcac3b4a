package domain

// InboundKind classifies events delivered by a transport.
type InboundKind int

const (
	InboundConnected InboundKind = iota + 1
	InboundDisconnected
	InboundMessage
	InboundError
)

func (k InboundKind) String() string {
	switch k {
	case InboundConnected:
		return "connected"
	case InboundDisconnected:
		return "disconnected"
	case InboundMessage:
		return "message"
	case InboundError:
		return "error"
	default:
		return "unknown"
	}
}

// InboundEvent is one stimulus from the relay side.
// Reason is set for disconnects, Payload for messages, Err for errors.
type InboundEvent struct {
	Kind    InboundKind
	Reason  string
	Payload MessagePayload
	Err     error
}

func Connected() InboundEvent {
	return InboundEvent{Kind: InboundConnected}
}

func Disconnected(reason string) InboundEvent {
	return InboundEvent{Kind: InboundDisconnected, Reason: reason}
}

func MessageArrived(username, message string) InboundEvent {
	return InboundEvent{Kind: InboundMessage, Payload: MessagePayload{Username: username, Message: message}}
}

func TransportError(err error) InboundEvent {
	return InboundEvent{Kind: InboundError, Err: err}
}
