package runtime

import (
	"chat-session/domain"
	"chat-session/domain/event"
	"chat-session/errors"
	"chat-session/mocks"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSession_Connect_Join_Send(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(true)
	session := startSession(t, transport, noReconnect())

	// Given a disconnected session
	req.Equal(domain.StateDisconnected, session.State())

	// When it connects
	req.True(session.Connect())
	waitState(t, session, domain.StateConnected)

	// And joins the lobby
	req.True(session.SetUsername("alice"))
	req.True(session.JoinRoom("lobby"))

	snap := session.Snapshot()
	req.Equal(domain.StateJoined, snap.State)
	req.Equal("lobby", snap.Room)

	// And sends a drafted message
	req.True(session.SetDraft("hi"))
	req.True(session.SendDraft())

	// Then the relay saw join then send, and the draft is cleared
	req.Equal([]transportCall{
		{Op: "connect"},
		{Op: "join", Room: "lobby"},
		{Op: "send", Room: "lobby", Message: "hi", Username: "alice"},
	}, transport.Calls())
	req.Empty(session.Draft())
	req.Zero(session.Snapshot().Messages, "sends are not appended locally")
}

func TestSession_InboundMessage_AppendedWithoutRoomFiltering(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(true)
	session := startSession(t, transport, Options{Username: "alice", Reconnect: ReconnectConfig{Policy: PolicyNone}})

	req.True(session.Connect())
	waitState(t, session, domain.StateConnected)
	req.True(session.JoinRoom("lobby"))

	// When the relay delivers a message, whatever room bob meant
	deliver(session, domain.MessageArrived("bob", "hey"))

	// Then the log grows by exactly that entry
	messages := session.Messages()
	req.Len(messages, 1)
	req.Equal("bob", messages[0].Username)
	req.Equal("hey", messages[0].Content)
	req.Equal("lobby", messages[0].Room)
	req.False(messages[0].IsFrom("alice"))
}

func TestSession_Disconnect_WhileJoined(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(true)
	session := startSession(t, transport, Options{Username: "alice", Reconnect: ReconnectConfig{Policy: PolicyNone}})
	sub := session.Subscribe(16)

	req.True(session.Connect())
	waitState(t, session, domain.StateConnected)
	req.True(session.JoinRoom("lobby"))

	// When the transport drops mid-membership
	deliver(session, domain.Disconnected("network error"))

	// Then the session is disconnected and the room is gone
	snap := session.Snapshot()
	req.Equal(domain.StateDisconnected, snap.State)
	req.Empty(snap.Room)

	// And a send is a no-op
	req.False(session.SendMessage("still there?"))
	req.Zero(transport.Count("send"))

	// And subscribers saw the room being lost
	var lost *event.ConnectionChanged
	for lost == nil {
		select {
		case e := <-sub.Events():
			if c, ok := e.(event.ConnectionChanged); ok && c.To == domain.StateDisconnected {
				lost = &c
			}
		case <-time.After(time.Second):
			req.FailNow("no disconnect event")
		}
	}
	req.Equal("lobby", lost.LostRoom)
	req.Equal("network error", lost.Reason)
}

func TestSession_ToggleJoinLeaveJoin_Order(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	events := make(chan domain.InboundEvent)
	var inbound <-chan domain.InboundEvent = events

	transport.EXPECT().Events().Return(inbound).AnyTimes()
	transport.EXPECT().Connect(gomock.Any()).Return(nil).Times(1)
	gomock.InOrder(
		transport.EXPECT().Join("lobby").Return(nil),
		transport.EXPECT().Leave("lobby").Return(nil),
		transport.EXPECT().Join("lobby").Return(nil),
	)

	session, err := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), transport, noReconnect())
	req.NoError(err)
	runSession(t, session)

	req.True(session.Connect())
	deliver(session, domain.Connected())

	// When the single control is used three times
	req.True(session.ToggleRoom("lobby"))
	req.True(session.ToggleRoom("lobby"))
	req.True(session.ToggleRoom("lobby"))

	// Then the session is back in the same room
	snap := session.Snapshot()
	req.Equal(domain.StateJoined, snap.State)
	req.Equal("lobby", snap.Room)
}

func TestSession_ToggleRoom_EmptyRoomIsNoop(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(true)
	session := startSession(t, transport, noReconnect())

	req.True(session.Connect())
	waitState(t, session, domain.StateConnected)
	req.True(session.ToggleRoom("lobby"))

	// When toggled with an empty room while joined
	req.False(session.ToggleRoom(""))

	// Then membership is untouched
	req.Equal(domain.StateJoined, session.State())
	req.Zero(transport.Count("leave"))
}

func TestSession_WrongStateCommands_AreNoops(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(false)
	session := startSession(t, transport, Options{Username: "alice", Reconnect: ReconnectConfig{Policy: PolicyNone}})

	// Given a disconnected session, membership and sends are rejected
	req.False(session.JoinRoom("lobby"))
	req.False(session.LeaveRoom())
	req.False(session.SendMessage("hi"))

	// Given a connecting session, a second connect is rejected
	req.True(session.Connect())
	req.Equal(domain.StateConnecting, session.State())
	req.False(session.Connect())
	req.False(session.JoinRoom("lobby"))

	deliver(session, domain.Connected())

	// Given a connected session, empty rooms and leave are rejected
	req.False(session.JoinRoom(""))
	req.False(session.LeaveRoom())
	req.False(session.SendMessage("hi"))

	req.Equal(1, transport.Count("connect"))
	req.Zero(transport.Count("join"))
	req.Zero(transport.Count("leave"))
	req.Zero(transport.Count("send"))
	req.Equal(uint64(8), session.Stats().Rejected)
}

func TestSession_SendRequiresUsernameAndText(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(true)
	session := startSession(t, transport, noReconnect())

	req.True(session.Connect())
	waitState(t, session, domain.StateConnected)
	req.True(session.JoinRoom("lobby"))

	// Given no username, sending is rejected and the draft kept
	req.True(session.SetDraft("hi"))
	req.False(session.SendDraft())
	req.Equal("hi", session.Draft())

	// Given a username is frozen while joined
	req.False(session.SetUsername("alice"))

	req.True(session.LeaveRoom())
	req.True(session.SetUsername("alice"))
	req.True(session.JoinRoom("lobby"))

	// Then an empty text is still rejected
	req.False(session.SendMessage(""))
	req.True(session.SendDraft())
	req.Empty(session.Draft())
	req.Equal(1, transport.Count("send"))
}

func TestSession_ConcurrentConnect_SingleChannel(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(false)
	session := startSession(t, transport, noReconnect())

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if session.Connect() {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Then exactly one attempt reached the transport
	req.Equal(1, accepted)
	req.Equal(1, transport.Count("connect"))
	req.Equal(domain.StateConnecting, session.State())
}

func TestSession_JoinRefusedByTransport(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(true)
	transport.joinErr = errors.ErrOutboxFull
	session := startSession(t, transport, noReconnect())
	sub := session.Subscribe(16)

	req.True(session.Connect())
	waitState(t, session, domain.StateConnected)

	// When the transport refuses the join
	req.False(session.JoinRoom("lobby"))

	// Then the session stays connected and a delivery failure is published
	req.Equal(domain.StateConnected, session.State())
	req.Eventually(func() bool {
		for {
			select {
			case e := <-sub.Events():
				if f, ok := e.(event.DeliveryFailed); ok {
					return f.Command == "joinRoom" && f.Room == "lobby"
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
	req.Equal(uint64(1), session.Stats().DeliveryFailures)
}

func TestSession_LeaveRefusedByTransport_StillLeaves(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(true)
	transport.leaveErr = errors.ErrNotConnected
	session := startSession(t, transport, noReconnect())

	req.True(session.Connect())
	waitState(t, session, domain.StateConnected)
	req.True(session.JoinRoom("lobby"))

	req.True(session.LeaveRoom())
	snap := session.Snapshot()
	req.Equal(domain.StateConnected, snap.State)
	req.Empty(snap.Room)
}

func TestSession_LogLength_EqualsInboundCount(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(false)
	session := startSession(t, transport, noReconnect())

	// Messages arrive in every state, including duplicates and empty payloads
	inbound := []domain.InboundEvent{
		domain.MessageArrived("bob", "before connect"),
		domain.MessageArrived("bob", "before connect"),
		domain.MessageArrived("", ""),
	}
	for _, e := range inbound {
		deliver(session, e)
	}
	req.True(session.Connect())
	deliver(session, domain.Connected())
	deliver(session, domain.MessageArrived("carol", "connected"))
	req.True(session.JoinRoom("den"))
	deliver(session, domain.MessageArrived("dave", "joined"))
	deliver(session, domain.Disconnected("gone"))
	deliver(session, domain.MessageArrived("erin", "after"))

	// Then nothing was dropped, merged or reordered
	messages := session.Messages()
	req.Len(messages, 7)
	req.Equal("before connect", messages[0].Content)
	req.Equal("before connect", messages[1].Content)
	req.NotEqual(messages[0].ID, messages[1].ID)
	req.Equal("", messages[2].Username)
	req.Equal([]string{"", "", "", "", "den", "", ""}, roomsOf(messages))
	req.Equal("erin", messages[6].Username)
	req.Equal(uint64(7), session.Stats().MessagesReceived)
}

func roomsOf(messages []domain.Message) []string {
	rooms := make([]string, 0, len(messages))
	for _, m := range messages {
		rooms = append(rooms, m.Room)
	}
	return rooms
}

func TestSession_RandomInterleavings_HoldInvariants(t *testing.T) {
	req := require.New(t)
	rooms := []string{"", "lobby", "den"}
	texts := []string{"", "hi"}
	names := []string{"", "alice"}

	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		transport := newRecordingTransport(false)
		session := startSession(t, transport, noReconnect())
		delivered := 0

		for step := 0; step < 200; step++ {
			before := session.Snapshot()
			sends := transport.Count("send")
			text := texts[rng.Intn(len(texts))]

			switch rng.Intn(10) {
			case 0:
				session.Connect()
			case 1:
				session.JoinRoom(rooms[rng.Intn(len(rooms))])
			case 2:
				session.LeaveRoom()
			case 3:
				session.ToggleRoom(rooms[rng.Intn(len(rooms))])
			case 4:
				session.SendMessage(text)
			case 5:
				session.SetUsername(names[rng.Intn(len(names))])
			case 6:
				deliver(session, domain.Connected())
			case 7:
				deliver(session, domain.Disconnected("flap"))
			default:
				deliver(session, domain.MessageArrived("bob", text))
				delivered++
			}

			var invariant error
			session.inspect(func() { invariant = session.checkInvariants() })
			req.NoError(invariant, "seed %d step %d", seed, step)

			after := session.Snapshot()
			if transport.Count("send") > sends {
				req.Equal(domain.StateJoined, before.State, "seed %d step %d", seed, step)
				req.NotEmpty(before.Username)
				req.NotEmpty(before.Room)
				req.NotEmpty(text)
			}
			if before.State == domain.StateJoined && after.State == domain.StateJoined {
				req.Equal(before.Room, after.Room)
				req.Equal(before.Username, after.Username)
			}
			req.Equal(delivered, after.Messages)
		}
	}
}

func TestSession_FullSubscriber_DoesNotStall(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(false)
	session := startSession(t, transport, noReconnect())

	// Given a subscriber that never reads
	slow := session.Subscribe(1)
	defer slow.Unsubscribe()
	fast := session.Subscribe(64)

	// When more events than its buffer are published
	for range 10 {
		deliver(session, domain.MessageArrived("bob", "spam"))
	}

	// Then the session kept going and the other subscriber got everything
	req.Equal(10, session.Snapshot().Messages)
	req.Len(fast.Events(), 10)
	req.Equal(uint64(9), session.Stats().DroppedEvents)
}

func TestSession_OnMessage_Unsubscribe(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(false)
	session := startSession(t, transport, noReconnect())

	got := make(chan domain.Message, 4)
	unsubscribe := session.OnMessage(func(m domain.Message) { got <- m })

	deliver(session, domain.MessageArrived("bob", "one"))
	select {
	case m := <-got:
		req.Equal("one", m.Content)
	case <-time.After(time.Second):
		req.FailNow("callback not called")
	}

	// When unsubscribed, later messages are not seen and a second call is harmless
	unsubscribe()
	unsubscribe()
	deliver(session, domain.MessageArrived("bob", "two"))
	req.Equal(0, session.registry.Len())
	req.Never(func() bool { return len(got) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSession_OnConnectionChange(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(true)
	session := startSession(t, transport, noReconnect())

	changes := make(chan event.ConnectionChanged, 8)
	defer session.OnConnectionChange(func(c event.ConnectionChanged) { changes <- c })()

	req.True(session.Connect())

	for _, want := range []domain.ConnectionState{domain.StateConnecting, domain.StateConnected} {
		select {
		case c := <-changes:
			req.Equal(want, c.To)
		case <-time.After(time.Second):
			req.FailNow("missing transition", want.String())
		}
	}
}

func TestSession_Close_RejectsCommands(t *testing.T) {
	req := require.New(t)
	transport := newRecordingTransport(true)
	session := startSession(t, transport, noReconnect())

	req.NoError(session.Close())
	req.NoError(session.Close())
	req.False(session.Connect())
	req.Empty(session.Messages())
}
