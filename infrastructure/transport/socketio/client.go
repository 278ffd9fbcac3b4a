package socketio

import (
	"chat-session/domain"
	"chat-session/errors"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultConnectTimeout = 20 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultOutboxSize     = 64
	eventBufferSize       = 64
)

type Config struct {
	Endpoint       string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	OutboxSize     int
}

// Client is a contract.Transport over one Socket.IO connection at a time.
type Client struct {
	log    *slog.Logger
	cfg    Config
	url    string
	dialer *websocket.Dialer
	events chan domain.InboundEvent
	done   chan struct{}

	mu     sync.Mutex
	conn   *connection
	closed bool
}

// connection is one dial attempt and, once the namespace is joined, the live channel.
type connection struct {
	ws     *websocket.Conn
	live   bool
	outbox chan []byte
	pong   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewClient(log *slog.Logger, cfg Config) (*Client, error) {
	wsURL, err := WebSocketURL(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	return &Client{
		log:    log,
		cfg:    cfg,
		url:    wsURL,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		events: make(chan domain.InboundEvent, eventBufferSize),
		done:   make(chan struct{}),
	}, nil
}

// WebSocketURL maps a relay endpoint to its Engine.IO WebSocket URL.
// http maps to ws, https to wss; an empty path selects /socket.io/.
func WebSocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("relay endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay endpoint %q: missing host", endpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	} else if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) Events() <-chan domain.InboundEvent { return c.events }

// Connect dials in the background. The outcome is a connected or a
// disconnected event.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrTransportClosed
	}
	if c.conn != nil {
		return errors.ErrAlreadyConnecting
	}
	connCtx, cancel := context.WithCancel(ctx)
	conn := &connection{
		outbox: make(chan []byte, c.cfg.OutboxSize),
		pong:   make(chan struct{}, 1),
		ctx:    connCtx,
		cancel: cancel,
	}
	c.conn = conn
	go c.run(conn)
	return nil
}

func (c *Client) Join(room string) error {
	return c.emitEvent(EventJoinRoom, room)
}

func (c *Client) Leave(room string) error {
	return c.emitEvent(EventLeaveRoom, room)
}

func (c *Client) Send(room, message, username string) error {
	return c.emitEvent(EventChatMessage, domain.OutboundMessage{Room: room, Message: message, Username: username})
}

// Close tears the connection down without emitting a disconnect event.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		c.shutdown(conn, true)
	}
	return nil
}

func (c *Client) emitEvent(name string, arg any) error {
	frame, err := EncodeEvent(name, arg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrTransportClosed
	}
	if c.conn == nil || !c.conn.live {
		return errors.ErrNotConnected
	}
	select {
	case c.conn.outbox <- frame:
		return nil
	default:
		return errors.ErrOutboxFull
	}
}

func (c *Client) run(conn *connection) {
	ws, handshake, err := c.open(conn)
	if err != nil {
		c.drop(conn, err.Error())
		return
	}
	c.log.Info("Connected to relay", "url", c.url, "sid", handshake.SID)
	c.emit(domain.Connected())

	go c.writePump(conn)
	c.readLoop(conn, ws, handshake.PingInterval+handshake.PingTimeout)
}

// open dials, reads the Engine.IO handshake and joins the default namespace.
func (c *Client) open(conn *connection) (*websocket.Conn, Handshake, error) {
	dialCtx, cancel := context.WithTimeout(conn.ctx, c.cfg.ConnectTimeout)
	defer cancel()

	ws, _, err := c.dialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return nil, Handshake{}, fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		_ = ws.Close()
		return nil, Handshake{}, errors.ErrTransportClosed
	}
	conn.ws = ws
	c.mu.Unlock()

	_ = ws.SetReadDeadline(time.Now().Add(c.cfg.ConnectTimeout))
	frame, err := c.read(ws)
	if err != nil {
		return nil, Handshake{}, err
	}
	if frame.Engine != EngineOpen {
		return nil, Handshake{}, fmt.Errorf("%w: expected open packet", errors.ErrHandshake)
	}
	handshake, err := DecodeHandshake(frame.Data)
	if err != nil {
		return nil, Handshake{}, err
	}

	_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, EncodeConnect()); err != nil {
		return nil, Handshake{}, fmt.Errorf("namespace connect: %w", err)
	}

	for {
		frame, err := c.read(ws)
		if err != nil {
			return nil, Handshake{}, err
		}
		switch {
		case frame.Engine == EnginePing:
			_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, EncodePong()); err != nil {
				return nil, Handshake{}, fmt.Errorf("pong: %w", err)
			}
		case frame.Engine == EngineMessage && frame.Socket == SocketConnect:
			c.mu.Lock()
			conn.live = c.conn == conn
			c.mu.Unlock()
			if !conn.live {
				return nil, Handshake{}, errors.ErrTransportClosed
			}
			return ws, handshake, nil
		case frame.Engine == EngineMessage && frame.Socket == SocketConnectError:
			return nil, Handshake{}, fmt.Errorf("%w: %s", errors.ErrHandshake, string(frame.Data))
		case frame.Engine == EngineClose:
			return nil, Handshake{}, fmt.Errorf("%w: closed during handshake", errors.ErrHandshake)
		}
	}
}

func (c *Client) read(ws *websocket.Conn) (Frame, error) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return Frame{}, fmt.Errorf("read: %w", err)
		}
		frame, err := Decode(raw)
		if err != nil {
			c.log.Warn("Dropping relay frame", "error", err)
			continue
		}
		return frame, nil
	}
}

// readLoop dispatches inbound frames until the connection fails.
// Server pings reset the liveness deadline.
func (c *Client) readLoop(conn *connection, ws *websocket.Conn, liveness time.Duration) {
	for {
		_ = ws.SetReadDeadline(time.Now().Add(liveness))
		frame, err := c.read(ws)
		if err != nil {
			c.drop(conn, err.Error())
			return
		}
		switch frame.Engine {
		case EnginePing:
			select {
			case conn.pong <- struct{}{}:
			default:
			}
		case EngineClose:
			c.drop(conn, "relay closed the connection")
			return
		case EngineMessage:
			switch frame.Socket {
			case SocketEvent:
				c.dispatch(frame)
			case SocketDisconnect:
				c.drop(conn, "relay disconnected the client")
				return
			}
		}
	}
}

func (c *Client) dispatch(frame Frame) {
	switch frame.Event {
	case EventMessage:
		p := DecodeMessage(frame.Data)
		c.emit(domain.MessageArrived(p.Username, p.Message))
	default:
		c.log.Debug("Ignoring relay event", "event", frame.Event)
	}
}

// writePump is the only writer once the connection is live.
func (c *Client) writePump(conn *connection) {
	for {
		var frame []byte
		select {
		case <-conn.ctx.Done():
			return
		case <-conn.pong:
			frame = EncodePong()
		case frame = <-conn.outbox:
		}
		_ = conn.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if err := conn.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.emit(domain.TransportError(fmt.Errorf("write: %w", err)))
			c.drop(conn, err.Error())
			return
		}
	}
}

// drop ends conn after a failure and reports the disconnect once.
func (c *Client) drop(conn *connection, reason string) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	closed := c.closed
	c.mu.Unlock()

	if !c.shutdown(conn, false) || !current || closed {
		return
	}
	c.log.Warn("Relay connection lost", "reason", reason)
	c.emit(domain.Disconnected(reason))
}

// shutdown releases conn and reports whether this call did it.
func (c *Client) shutdown(conn *connection, graceful bool) bool {
	first := false
	conn.once.Do(func() {
		first = true
		conn.cancel()
		c.mu.Lock()
		ws := conn.ws
		c.mu.Unlock()
		if ws == nil {
			return
		}
		if graceful {
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		}
		_ = ws.Close()
	})
	return first
}

func (c *Client) emit(e domain.InboundEvent) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}
