package runtime

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/domain/event"
	"chat-session/errors"
	"chat-session/observability"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Options struct {
	Username         string
	Reconnect        ReconnectConfig
	SubscriberBuffer int
}

// Session is the client side of one user's chat participation.
//
// All state is owned by the goroutine running Run. Commands and queries
// are handed to it over a channel and answered synchronously, so callers
// observe every command in order, but nothing here waits on the network:
// the transport only enqueues outbound frames.
type Session struct {
	log              *slog.Logger
	transport        contract.Transport
	registry         contract.IRegistry
	monitor          *observability.SessionMonitor
	retry            *reconnector
	subscriberBuffer int

	requests  chan request
	closed    chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
	stopOnce  sync.Once

	// Owned by the Run loop
	state      domain.ConnectionState
	username   string
	room       string
	draft      string
	messages   []domain.Message
	retryTimer *time.Timer
	retryC     <-chan time.Time
}

type request struct {
	cmd   domain.Command
	read  func()
	reply chan bool
}

func NewSession(log *slog.Logger, transport contract.Transport, opts Options) (*Session, error) {
	retry, err := newReconnector(opts.Reconnect)
	if err != nil {
		return nil, err
	}
	buffer := opts.SubscriberBuffer
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Session{
		log:              log,
		transport:        transport,
		registry:         NewRegistry(),
		monitor:          observability.NewSessionMonitor(),
		retry:            retry,
		subscriberBuffer: buffer,
		requests:         make(chan request),
		closed:           make(chan struct{}),
		stopped:          make(chan struct{}),
		state:            domain.StateDisconnected,
		username:         opts.Username,
	}, nil
}

// Run serves commands and transport events until ctx is done or Close is called.
// It may be restarted after a panic: state lives on the Session.
// Once ctx is done the loop is over for good and every later call returns false.
func (s *Session) Run(ctx context.Context) error {
	select {
	case <-s.stopped:
		return nil
	default:
	}
	events := s.transport.Events()
	for {
		select {
		case <-ctx.Done():
			s.stop()
			s.log.Debug("Stopping session loop")
			return nil
		case <-s.closed:
			s.stop()
			return nil
		case req := <-s.requests:
			s.handle(ctx, req)
		case in, ok := <-events:
			if !ok {
				events = nil
				s.onInbound(domain.Disconnected("transport closed"))
				continue
			}
			s.onInbound(in)
		case <-s.retryC:
			s.retryC = nil
			s.retryTimer = nil
			if s.state == domain.StateDisconnected {
				s.connect(ctx)
			}
		}
		if err := s.checkInvariants(); err != nil {
			s.log.Error("Session invariant violated", "error", err)
		}
	}
}

// Close stops the session loop and closes the transport.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.transport.Close()
	})
	return err
}

// Connect starts a connection attempt. Rejected unless disconnected.
func (s *Session) Connect() bool {
	return s.dispatch(domain.ConnectCommand{})
}

// JoinRoom joins room. Rejected unless connected and room is non-empty.
func (s *Session) JoinRoom(room string) bool {
	return s.dispatch(domain.JoinRoomCommand{Room: room})
}

// LeaveRoom leaves the current room. Rejected unless joined.
func (s *Session) LeaveRoom() bool {
	return s.dispatch(domain.LeaveRoomCommand{})
}

// ToggleRoom leaves when joined and joins room otherwise.
// An empty room is rejected in both directions.
func (s *Session) ToggleRoom(room string) bool {
	return s.dispatch(domain.ToggleRoomCommand{Room: room})
}

// SendMessage sends text to the current room. Rejected unless joined
// with a username and a non-empty text.
func (s *Session) SendMessage(text string) bool {
	return s.dispatch(domain.SendMessageCommand{Text: text})
}

// SetUsername binds the display name. Rejected while joined.
func (s *Session) SetUsername(name string) bool {
	return s.dispatch(domain.SetUsernameCommand{Username: name})
}

func (s *Session) SetDraft(text string) bool {
	return s.dispatch(domain.SetDraftCommand{Text: text})
}

// SendDraft sends the pending draft and clears it as soon as the transport
// accepts it. A rejected draft is kept.
func (s *Session) SendDraft() bool {
	return s.dispatch(domain.SendDraftCommand{})
}

func (s *Session) State() domain.ConnectionState {
	return s.Snapshot().State
}

func (s *Session) Snapshot() domain.Snapshot {
	var snap domain.Snapshot
	s.inspect(func() { snap = s.snapshot() })
	return snap
}

func (s *Session) Draft() string {
	return s.Snapshot().Draft
}

// Messages returns a copy of the log in arrival order.
func (s *Session) Messages() []domain.Message {
	var out []domain.Message
	s.inspect(func() { out = append([]domain.Message(nil), s.messages...) })
	return out
}

func (s *Session) Stats() observability.SessionStats {
	return s.monitor.GetLatest()
}

func (s *Session) stop() {
	s.stopRetry()
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *Session) dispatch(cmd domain.Command) bool {
	return s.submit(request{cmd: cmd, reply: make(chan bool, 1)})
}

func (s *Session) inspect(fn func()) bool {
	return s.submit(request{read: fn, reply: make(chan bool, 1)})
}

func (s *Session) submit(req request) bool {
	select {
	case <-s.closed:
		return false
	case <-s.stopped:
		return false
	default:
	}
	select {
	case s.requests <- req:
	case <-s.closed:
		return false
	case <-s.stopped:
		return false
	}
	select {
	case ok := <-req.reply:
		return ok
	case <-s.closed:
		return false
	case <-s.stopped:
		return false
	}
}

func (s *Session) handle(ctx context.Context, req request) {
	if req.read != nil {
		req.read()
		req.reply <- true
		return
	}

	var ok bool
	switch c := req.cmd.(type) {
	case domain.ConnectCommand:
		if s.state == domain.StateDisconnected {
			// A manual attempt starts a fresh schedule
			s.stopRetry()
			s.retry.reset()
		}
		ok = s.connect(ctx)
	case domain.JoinRoomCommand:
		ok = s.joinRoom(c.Room)
	case domain.LeaveRoomCommand:
		ok = s.leaveRoom()
	case domain.ToggleRoomCommand:
		ok = s.toggleRoom(c.Room)
	case domain.SendMessageCommand:
		ok = s.sendMessage(c.Text)
	case domain.SetUsernameCommand:
		ok = s.setUsername(c.Username)
	case domain.SetDraftCommand:
		s.draft = c.Text
		ok = true
	case domain.SendDraftCommand:
		if ok = s.sendMessage(s.draft); ok {
			s.draft = ""
		}
	default:
		s.log.Warn("Unknown session command", "command", fmt.Sprintf("%T", req.cmd))
	}

	if !ok {
		s.monitor.IncrRejected()
		s.log.Debug("Command rejected", "command", req.cmd.Name(), "state", s.state)
	}
	req.reply <- ok
}

func (s *Session) connect(ctx context.Context) bool {
	if s.state != domain.StateDisconnected {
		s.log.Debug("Connect ignored", "state", s.state, "error", errors.ErrAlreadyConnecting)
		return false
	}
	s.stopRetry()
	s.transition(domain.StateConnecting, "connecting")

	if err := s.transport.Connect(ctx); err != nil {
		s.log.Warn("Connection attempt refused", "error", err)
		s.transition(domain.StateDisconnected, err.Error())
		if !goerrors.Is(err, errors.ErrTransportClosed) {
			s.scheduleReconnect()
		}
		return false
	}
	return true
}

func (s *Session) joinRoom(room string) bool {
	if s.state != domain.StateConnected || !domain.ValidRoomName(room) {
		return false
	}
	if err := s.transport.Join(room); err != nil {
		s.deliveryFailed("joinRoom", room, "", err)
		return false
	}
	s.room = room
	s.transition(domain.StateJoined, "joined")
	s.publish(event.RoomJoined{Room: room, Username: s.username, At: time.Now()})
	s.log.Info("Joined room", "room", room, "username", s.username)
	return true
}

func (s *Session) leaveRoom() bool {
	if s.state != domain.StateJoined {
		return false
	}
	room := s.room
	if err := s.transport.Leave(room); err != nil {
		// The local leave still happens; the relay drops the member on its side
		s.deliveryFailed("leaveRoom", room, "", err)
	}
	s.transition(domain.StateConnected, "left")
	s.publish(event.RoomLeft{Room: room, At: time.Now()})
	s.log.Info("Left room", "room", room)
	return true
}

func (s *Session) toggleRoom(room string) bool {
	if !domain.ValidRoomName(room) {
		return false
	}
	if s.state == domain.StateJoined {
		return s.leaveRoom()
	}
	return s.joinRoom(room)
}

func (s *Session) sendMessage(text string) bool {
	if !domain.CanSend(s.state, s.room, s.username, text) {
		return false
	}
	if err := s.transport.Send(s.room, text, s.username); err != nil {
		s.deliveryFailed("chatMessage", s.room, text, err)
		return false
	}
	s.monitor.IncrMessagesSent()
	return true
}

func (s *Session) setUsername(name string) bool {
	if !domain.CanRename(s.state) {
		return false
	}
	s.username = name
	return true
}

func (s *Session) onInbound(in domain.InboundEvent) {
	switch in.Kind {
	case domain.InboundConnected:
		if s.state != domain.StateConnecting && s.state != domain.StateDisconnected {
			s.log.Debug("Duplicate connect event ignored", "state", s.state)
			return
		}
		s.stopRetry()
		s.retry.reset()
		s.transition(domain.StateConnected, "connected")
	case domain.InboundDisconnected:
		if s.state == domain.StateDisconnected {
			return
		}
		s.monitor.IncrDisconnects()
		s.log.Warn("Disconnected from relay", "reason", in.Reason, "room", s.room)
		s.transition(domain.StateDisconnected, in.Reason)
		s.scheduleReconnect()
	case domain.InboundMessage:
		s.appendMessage(in.Payload)
	case domain.InboundError:
		s.deliveryFailed("", s.room, "", in.Err)
	default:
		s.log.Warn("Unknown inbound event dropped", "kind", in.Kind)
	}
}

// appendMessage records every inbound message, whatever the current state
// or room: routing is the relay's job.
func (s *Session) appendMessage(p domain.MessagePayload) {
	msg := domain.Message{
		ID:         uuid.New(),
		Username:   p.Username,
		Content:    p.Message,
		Room:       s.room,
		ReceivedAt: time.Now(),
	}
	s.messages = append(s.messages, msg)
	s.monitor.IncrMessagesReceived()
	s.publish(event.MessageReceived{Message: msg, Index: len(s.messages) - 1})
}

// transition moves the state machine and keeps room consistent with it.
func (s *Session) transition(to domain.ConnectionState, reason string) {
	from := s.state
	if from == to {
		return
	}
	lost := ""
	if to == domain.StateDisconnected && from == domain.StateJoined {
		lost = s.room
	}
	if to != domain.StateJoined {
		s.room = ""
	}
	s.state = to
	s.publish(event.ConnectionChanged{From: from, To: to, Reason: reason, LostRoom: lost, At: time.Now()})
}

func (s *Session) scheduleReconnect() {
	if s.retryC != nil {
		return
	}
	delay, attempt, ok := s.retry.next()
	if !ok {
		if attempt > 0 {
			s.log.Warn("Reconnect attempts exhausted", "attempts", attempt)
		}
		return
	}
	s.monitor.IncrReconnectAttempts()
	s.retryTimer = time.NewTimer(delay)
	s.retryC = s.retryTimer.C
	s.log.Info("Reconnect scheduled", "attempt", attempt, "delay", delay)
	s.publish(event.ReconnectScheduled{Attempt: attempt, Delay: delay, At: time.Now()})
}

func (s *Session) stopRetry() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = nil
	s.retryC = nil
}

func (s *Session) deliveryFailed(command, room, text string, err error) {
	s.monitor.IncrDeliveryFailures()
	s.log.Warn("Delivery failed", "command", command, "room", room, "error", err)
	s.publish(event.DeliveryFailed{Command: command, Room: room, Text: text, Err: err, At: time.Now()})
}

func (s *Session) publish(e event.SessionEvent) {
	if dropped := s.registry.Publish(e); dropped > 0 {
		s.monitor.AddDroppedEvents(dropped)
		s.log.Debug("Session event lost", "event", e.Name(), "subscribers", dropped)
	}
}

func (s *Session) snapshot() domain.Snapshot {
	return domain.Snapshot{
		State:    s.state,
		Username: s.username,
		Room:     s.room,
		Draft:    s.draft,
		Messages: len(s.messages),
	}
}

func (s *Session) checkInvariants() error {
	if (s.room != "") != (s.state == domain.StateJoined) {
		return fmt.Errorf("room %q in state %s", s.room, s.state)
	}
	return nil
}
