package grpcrelay

import (
	"chat-session/domain"
	"chat-session/errors"
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultOutboxSize = 64
	eventBufferSize   = 64
)

type Config struct {
	Endpoint   string
	OutboxSize int
	// DialOptions are appended after the insecure transport credentials.
	DialOptions []grpc.DialOption
}

// Client is a contract.Transport over one relay stream at a time.
type Client struct {
	log    *slog.Logger
	cfg    Config
	cc     *grpc.ClientConn
	events chan domain.InboundEvent
	done   chan struct{}

	mu     sync.Mutex
	stream *relayStream
	closed bool
}

type relayStream struct {
	live   bool
	outbox chan *structpb.Struct
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Target maps grpc://host:port to a gRPC client target.
func Target(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("relay endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "grpc" {
		return "", fmt.Errorf("%w: %q", errors.ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay endpoint %q: missing host", endpoint)
	}
	return "passthrough:///" + u.Host, nil
}

func NewClient(log *slog.Logger, cfg Config) (*Client, error) {
	target, err := Target(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, cfg.DialOptions...)
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create relay client for %s: %w", cfg.Endpoint, err)
	}
	return &Client{
		log:    log,
		cfg:    cfg,
		cc:     cc,
		events: make(chan domain.InboundEvent, eventBufferSize),
		done:   make(chan struct{}),
	}, nil
}

func (c *Client) Events() <-chan domain.InboundEvent { return c.events }

// Connect opens the relay stream in the background. The relay acknowledges
// the stream by sending its headers.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrTransportClosed
	}
	if c.stream != nil {
		return errors.ErrAlreadyConnecting
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s := &relayStream{
		outbox: make(chan *structpb.Struct, c.cfg.OutboxSize),
		ctx:    streamCtx,
		cancel: cancel,
	}
	c.stream = s
	go c.run(s)
	return nil
}

func (c *Client) Join(room string) error {
	frame, err := joinFrame(room)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *Client) Leave(room string) error {
	frame, err := leaveFrame(room)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *Client) Send(room, message, username string) error {
	frame, err := chatFrame(domain.OutboundMessage{Room: room, Message: message, Username: username})
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	s := c.stream
	c.stream = nil
	c.mu.Unlock()

	if s != nil {
		s.once.Do(s.cancel)
	}
	return c.cc.Close()
}

func (c *Client) enqueue(frame *structpb.Struct) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrTransportClosed
	}
	if c.stream == nil || !c.stream.live {
		return errors.ErrNotConnected
	}
	select {
	case c.stream.outbox <- frame:
		return nil
	default:
		return errors.ErrOutboxFull
	}
}

func (c *Client) run(s *relayStream) {
	stream, err := c.cc.NewStream(s.ctx, &StreamDesc, ConnectMethod)
	if err != nil {
		c.drop(s, reason(err))
		return
	}
	// A stream refused without headers reports its status on the first receive.
	md, err := stream.Header()
	if err == nil && md == nil {
		if err = stream.RecvMsg(&structpb.Struct{}); err == nil {
			err = io.EOF
		}
	}
	if err != nil {
		c.drop(s, reason(err))
		return
	}

	c.mu.Lock()
	s.live = c.stream == s
	c.mu.Unlock()
	if !s.live {
		return
	}
	c.log.Info("Connected to relay", "endpoint", c.cfg.Endpoint)
	c.emit(domain.Connected())

	go c.writePump(s, stream)
	c.readLoop(s, stream)
}

func (c *Client) readLoop(s *relayStream, stream grpc.ClientStream) {
	for {
		frame := &structpb.Struct{}
		if err := stream.RecvMsg(frame); err != nil {
			c.drop(s, reason(err))
			return
		}
		name, data, err := DecodeFrame(frame)
		if err != nil {
			c.log.Warn("Dropping relay frame", "error", err)
			continue
		}
		switch name {
		case EventMessage:
			p := DecodeMessage(data)
			c.emit(domain.MessageArrived(p.Username, p.Message))
		default:
			c.log.Debug("Ignoring relay event", "event", name)
		}
	}
}

// writePump is the only sender on stream.
func (c *Client) writePump(s *relayStream, stream grpc.ClientStream) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.outbox:
			if err := stream.SendMsg(frame); err != nil {
				if !goerrors.Is(err, io.EOF) {
					c.emit(domain.TransportError(fmt.Errorf("send: %w", err)))
				}
				c.drop(s, reason(err))
				return
			}
		}
	}
}

func (c *Client) drop(s *relayStream, why string) {
	c.mu.Lock()
	current := c.stream == s
	if current {
		c.stream = nil
	}
	closed := c.closed
	c.mu.Unlock()

	first := false
	s.once.Do(func() {
		first = true
		s.cancel()
	})
	if !first || !current || closed {
		return
	}
	c.log.Warn("Relay stream lost", "reason", why)
	c.emit(domain.Disconnected(why))
}

func (c *Client) emit(e domain.InboundEvent) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}

func reason(err error) string {
	if goerrors.Is(err, io.EOF) {
		return "relay closed the stream"
	}
	if st, ok := status.FromError(err); ok {
		return fmt.Sprintf("%s: %s", st.Code(), st.Message())
	}
	return err.Error()
}
