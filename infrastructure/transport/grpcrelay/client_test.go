package grpcrelay_test

import (
	"chat-session/domain"
	"chat-session/errors"
	"chat-session/infrastructure/transport/grpcrelay"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// fakeRelay serves the relay stream over an in-memory listener.
type fakeRelay struct {
	listener *bufconn.Listener
	received chan *structpb.Struct
	outgoing chan *structpb.Struct
	end      chan error
	refuse   error
}

func newFakeRelay(t *testing.T) *fakeRelay {
	r := &fakeRelay{
		listener: bufconn.Listen(1 << 20),
		received: make(chan *structpb.Struct, 16),
		outgoing: make(chan *structpb.Struct, 16),
		end:      make(chan error, 1),
	}
	server := grpc.NewServer(grpc.UnknownServiceHandler(r.handle))
	go func() { _ = server.Serve(r.listener) }()
	t.Cleanup(server.Stop)
	return r
}

func (r *fakeRelay) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	if method != grpcrelay.ConnectMethod {
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
	if r.refuse != nil {
		return r.refuse
	}
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}
	go func() {
		for {
			frame := &structpb.Struct{}
			if err := stream.RecvMsg(frame); err != nil {
				return
			}
			r.received <- frame
		}
	}()
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case err := <-r.end:
			return err
		case frame := <-r.outgoing:
			if err := stream.SendMsg(frame); err != nil {
				return err
			}
		}
	}
}

func (r *fakeRelay) push(t *testing.T, event string, data any) {
	frame, err := grpcrelay.EncodeFrame(event, data)
	require.NoError(t, err)
	r.outgoing <- frame
}

func (r *fakeRelay) next(t *testing.T) (string, *structpb.Value) {
	select {
	case frame := <-r.received:
		name, data, err := grpcrelay.DecodeFrame(frame)
		require.NoError(t, err)
		return name, data
	case <-time.After(2 * time.Second):
		t.Fatal("relay received nothing")
		return "", nil
	}
}

func newClient(t *testing.T, r *fakeRelay) *grpcrelay.Client {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := grpcrelay.NewClient(log, grpcrelay.Config{
		Endpoint:   "grpc://bufnet",
		OutboxSize: 8,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return r.listener.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func nextEvent(t *testing.T, client *grpcrelay.Client) domain.InboundEvent {
	select {
	case e := <-client.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no transport event")
		return domain.InboundEvent{}
	}
}

func connect(t *testing.T, r *fakeRelay) *grpcrelay.Client {
	client := newClient(t, r)
	require.NoError(t, client.Connect(context.Background()))
	require.Equal(t, domain.InboundConnected, nextEvent(t, client).Kind)
	return client
}

func TestClient_ConnectAndEmit(t *testing.T) {
	req := require.New(t)

	// Given a connected client
	relay := newFakeRelay(t)
	client := connect(t, relay)

	// When joining then sending
	req.NoError(client.Join("lobby"))
	req.NoError(client.Send("lobby", "hi", "alice"))
	req.NoError(client.Leave("lobby"))

	// Then the relay gets the frames in order
	name, data := relay.next(t)
	req.Equal(grpcrelay.EventJoinRoom, name)
	req.Equal("lobby", data.GetStringValue())

	name, data = relay.next(t)
	req.Equal(grpcrelay.EventChatMessage, name)
	req.Equal(map[string]any{"room": "lobby", "message": "hi", "username": "alice"}, data.GetStructValue().AsMap())

	name, data = relay.next(t)
	req.Equal(grpcrelay.EventLeaveRoom, name)
	req.Equal("lobby", data.GetStringValue())
}

func TestClient_InboundMessages(t *testing.T) {
	req := require.New(t)

	// Given a connected client
	relay := newFakeRelay(t)
	client := connect(t, relay)

	// When the relay pushes a message, an unknown event, a nameless frame and a partial message
	relay.push(t, grpcrelay.EventMessage, map[string]any{"username": "bob", "message": "hey"})
	relay.push(t, "typing", map[string]any{"username": "bob"})
	nameless, err := structpb.NewStruct(map[string]any{"data": "x"})
	req.NoError(err)
	relay.outgoing <- nameless
	relay.push(t, grpcrelay.EventMessage, map[string]any{"message": 42})

	// Then the two messages surface
	req.Equal(domain.MessageArrived("bob", "hey"), nextEvent(t, client))
	req.Equal(domain.MessageArrived("", "42"), nextEvent(t, client))
}

func TestClient_RelayEndsStream(t *testing.T) {
	req := require.New(t)

	// Given a connected client
	relay := newFakeRelay(t)
	client := connect(t, relay)

	// When the relay ends the stream with an error
	relay.end <- status.Error(codes.Unavailable, "draining")

	// Then it is reported as a disconnect
	e := nextEvent(t, client)
	req.Equal(domain.InboundDisconnected, e.Kind)
	req.Equal("Unavailable: draining", e.Reason)
	req.ErrorIs(client.Join("lobby"), errors.ErrNotConnected)

	// And a new stream can be opened
	req.NoError(client.Connect(context.Background()))
	req.Equal(domain.InboundConnected, nextEvent(t, client).Kind)
}

func TestClient_RelayRefusesStream(t *testing.T) {
	req := require.New(t)

	relay := newFakeRelay(t)
	relay.refuse = status.Error(codes.PermissionDenied, "no")
	client := newClient(t, relay)

	req.NoError(client.Connect(context.Background()))

	e := nextEvent(t, client)
	req.Equal(domain.InboundDisconnected, e.Kind)
	req.Equal("PermissionDenied: no", e.Reason)
}

func TestClient_WritesBeforeConnect(t *testing.T) {
	req := require.New(t)

	client := newClient(t, newFakeRelay(t))

	req.ErrorIs(client.Join("lobby"), errors.ErrNotConnected)
	req.ErrorIs(client.Send("lobby", "hi", "alice"), errors.ErrNotConnected)
}

func TestClient_Close(t *testing.T) {
	req := require.New(t)

	relay := newFakeRelay(t)
	client := connect(t, relay)

	req.NoError(client.Close())
	req.NoError(client.Close())

	req.ErrorIs(client.Connect(context.Background()), errors.ErrTransportClosed)
	req.ErrorIs(client.Send("lobby", "hi", "alice"), errors.ErrTransportClosed)
	select {
	case e := <-client.Events():
		t.Fatalf("unexpected event after close: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTarget(t *testing.T) {
	req := require.New(t)

	target, err := grpcrelay.Target("grpc://relay:7000")
	req.NoError(err)
	req.Equal("passthrough:///relay:7000", target)

	_, err = grpcrelay.Target("http://relay:7000")
	req.ErrorIs(err, errors.ErrUnsupportedScheme)

	_, err = grpcrelay.Target("grpc://")
	req.Error(err)
}

func TestDecodeFrame_Invalid(t *testing.T) {
	req := require.New(t)

	numeric, err := structpb.NewStruct(map[string]any{"event": 3})
	req.NoError(err)
	_, _, err = grpcrelay.DecodeFrame(numeric)
	req.ErrorIs(err, errors.ErrInvalidPacket)

	_, _, err = grpcrelay.DecodeFrame(&structpb.Struct{})
	req.ErrorIs(err, errors.ErrInvalidPacket)
}
