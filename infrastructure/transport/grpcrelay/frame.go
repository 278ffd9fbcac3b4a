// Package grpcrelay is a relay transport over a single bidirectional gRPC
// stream of google.protobuf.Struct frames shaped {event, data}.
package grpcrelay

import (
	"chat-session/domain"
	"chat-session/errors"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName   = "chat.relay.v1.Relay"
	ConnectMethod = "/" + ServiceName + "/Connect"

	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventChatMessage = "chatMessage"
	EventMessage     = "message"

	fieldEvent = "event"
	fieldData  = "data"
)

// StreamDesc describes the relay stream for grpc.ClientConn.NewStream.
var StreamDesc = grpc.StreamDesc{
	StreamName:    "Connect",
	ServerStreams: true,
	ClientStreams: true,
}

func EncodeFrame(event string, data any) (*structpb.Struct, error) {
	frame, err := structpb.NewStruct(map[string]any{fieldEvent: event, fieldData: data})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPacket, err)
	}
	return frame, nil
}

func joinFrame(room string) (*structpb.Struct, error) {
	return EncodeFrame(EventJoinRoom, room)
}

func leaveFrame(room string) (*structpb.Struct, error) {
	return EncodeFrame(EventLeaveRoom, room)
}

func chatFrame(m domain.OutboundMessage) (*structpb.Struct, error) {
	return EncodeFrame(EventChatMessage, map[string]any{
		"room":     m.Room,
		"message":  m.Message,
		"username": m.Username,
	})
}

// DecodeFrame splits a frame into its event name and data.
func DecodeFrame(frame *structpb.Struct) (string, *structpb.Value, error) {
	name, ok := frame.GetFields()[fieldEvent]
	if !ok {
		return "", nil, fmt.Errorf("%w: frame without event", errors.ErrInvalidPacket)
	}
	if _, isString := name.GetKind().(*structpb.Value_StringValue); !isString || name.GetStringValue() == "" {
		return "", nil, fmt.Errorf("%w: event name is not a string", errors.ErrInvalidPacket)
	}
	return name.GetStringValue(), frame.GetFields()[fieldData], nil
}

// DecodeMessage reads the data of a message event. Missing fields decode
// as empty strings.
func DecodeMessage(data *structpb.Value) domain.MessagePayload {
	fields := data.GetStructValue().GetFields()
	return domain.MessagePayload{
		Username: valueText(fields["username"]),
		Message:  valueText(fields["message"]),
	}
}

func valueText(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return ""
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	default:
		raw, err := protojson.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
