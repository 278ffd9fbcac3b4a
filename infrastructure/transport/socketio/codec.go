// Package socketio is a relay transport speaking Socket.IO v5 over
// Engine.IO v4 WebSocket frames, the protocol of the original relay.
package socketio

import (
	"bytes"
	"chat-session/domain"
	"chat-session/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Engine.IO packet types
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
	EngineUpgrade byte = '5'
	EngineNoop    byte = '6'
)

// Socket.IO packet types, carried inside an Engine.IO message
const (
	SocketConnect      byte = '0'
	SocketDisconnect   byte = '1'
	SocketEvent        byte = '2'
	SocketAck          byte = '3'
	SocketConnectError byte = '4'
)

// Relay event names
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventChatMessage = "chatMessage"
	EventMessage     = "message"
)

// Frame is one decoded WebSocket text frame.
// Socket is zero unless Engine is EngineMessage. Data holds the raw JSON of
// the open handshake, the connect payload, or the first event argument.
type Frame struct {
	Engine    byte
	Socket    byte
	Namespace string
	AckID     string
	Event     string
	Data      []byte
}

// Handshake is the Engine.IO open payload.
type Handshake struct {
	SID          string
	PingInterval time.Duration
	PingTimeout  time.Duration
	MaxPayload   int64
}

func Decode(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", errors.ErrInvalidPacket)
	}
	f := Frame{Engine: raw[0]}
	if f.Engine < EngineOpen || f.Engine > EngineNoop {
		return Frame{}, fmt.Errorf("%w: engine type %q", errors.ErrInvalidPacket, raw[0])
	}
	if f.Engine != EngineMessage {
		f.Data = raw[1:]
		return f, nil
	}

	rest := raw[1:]
	if len(rest) == 0 {
		return Frame{}, fmt.Errorf("%w: empty message", errors.ErrInvalidPacket)
	}
	f.Socket = rest[0]
	if f.Socket < SocketConnect || f.Socket > '6' {
		return Frame{}, fmt.Errorf("%w: socket type %q", errors.ErrInvalidPacket, rest[0])
	}
	rest = rest[1:]

	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			f.Namespace = string(rest)
			rest = nil
		} else {
			f.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}
	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	f.AckID = string(rest[:digits])
	rest = rest[digits:]

	if f.Socket != SocketEvent {
		f.Data = rest
		return f, nil
	}
	if !gjson.ValidBytes(rest) {
		return Frame{}, fmt.Errorf("%w: event payload is not JSON", errors.ErrInvalidPacket)
	}
	args := gjson.ParseBytes(rest)
	if !args.IsArray() {
		return Frame{}, fmt.Errorf("%w: event payload is not an array", errors.ErrInvalidPacket)
	}
	items := args.Array()
	if len(items) == 0 || items[0].Type != gjson.String {
		return Frame{}, fmt.Errorf("%w: event without name", errors.ErrInvalidPacket)
	}
	f.Event = items[0].String()
	if len(items) > 1 {
		f.Data = []byte(items[1].Raw)
	}
	return f, nil
}

// DecodeHandshake reads an open payload. Missing intervals keep the
// Engine.IO defaults.
func DecodeHandshake(data []byte) (Handshake, error) {
	if !gjson.ValidBytes(data) {
		return Handshake{}, fmt.Errorf("%w: open payload is not JSON", errors.ErrHandshake)
	}
	r := gjson.ParseBytes(data)
	h := Handshake{
		SID:          r.Get("sid").String(),
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		MaxPayload:   r.Get("maxPayload").Int(),
	}
	if v := r.Get("pingInterval"); v.Exists() {
		h.PingInterval = time.Duration(v.Int()) * time.Millisecond
	}
	if v := r.Get("pingTimeout"); v.Exists() {
		h.PingTimeout = time.Duration(v.Int()) * time.Millisecond
	}
	if h.SID == "" {
		return Handshake{}, fmt.Errorf("%w: missing sid", errors.ErrHandshake)
	}
	return h, nil
}

// DecodeMessage reads an inbound message argument.
// Missing fields decode as empty strings, scalars as their JSON text.
func DecodeMessage(data []byte) domain.MessagePayload {
	r := gjson.ParseBytes(data)
	return domain.MessagePayload{
		Username: r.Get("username").String(),
		Message:  r.Get("message").String(),
	}
}

func EncodeEvent(name string, arg any) ([]byte, error) {
	payload, err := json.Marshal([]any{name, arg})
	if err != nil {
		return nil, err
	}
	return append([]byte{EngineMessage, SocketEvent}, payload...), nil
}

func EncodeConnect() []byte {
	return []byte{EngineMessage, SocketConnect}
}

func EncodeDisconnect() []byte {
	return []byte{EngineMessage, SocketDisconnect}
}

func EncodePong() []byte {
	return []byte{EnginePong}
}
