package runtime

import (
	"chat-session/domain"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type transportCall struct {
	Op       string
	Room     string
	Message  string
	Username string
}

// recordingTransport records every outbound command in order.
type recordingTransport struct {
	mu          sync.Mutex
	calls       []transportCall
	events      chan domain.InboundEvent
	autoConnect bool
	connectErr  error
	joinErr     error
	leaveErr    error
	sendErr     error
}

func newRecordingTransport(autoConnect bool) *recordingTransport {
	return &recordingTransport{events: make(chan domain.InboundEvent, 256), autoConnect: autoConnect}
}

func (f *recordingTransport) record(c transportCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *recordingTransport) Connect(_ context.Context) error {
	f.record(transportCall{Op: "connect"})
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.autoConnect {
		f.events <- domain.Connected()
	}
	return nil
}

func (f *recordingTransport) Join(room string) error {
	f.record(transportCall{Op: "join", Room: room})
	return f.joinErr
}

func (f *recordingTransport) Leave(room string) error {
	f.record(transportCall{Op: "leave", Room: room})
	return f.leaveErr
}

func (f *recordingTransport) Send(room, message, username string) error {
	f.record(transportCall{Op: "send", Room: room, Message: message, Username: username})
	return f.sendErr
}

func (f *recordingTransport) Events() <-chan domain.InboundEvent { return f.events }

func (f *recordingTransport) Close() error { return nil }

func (f *recordingTransport) Calls() []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transportCall(nil), f.calls...)
}

func (f *recordingTransport) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *recordingTransport) emit(e domain.InboundEvent) {
	f.events <- e
}

// startSession runs a session loop for the duration of the test.
func startSession(t *testing.T, transport *recordingTransport, opts Options) *Session {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	session, err := NewSession(log, transport, opts)
	require.NoError(t, err)
	runSession(t, session)
	return session
}

func runSession(t *testing.T, session *Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = session.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// deliver hands an inbound event to the loop and waits until it is applied.
func deliver(session *Session, e domain.InboundEvent) {
	session.inspect(func() { session.onInbound(e) })
}

func noReconnect() Options {
	return Options{Reconnect: ReconnectConfig{Policy: PolicyNone}}
}

func waitState(t *testing.T, session *Session, state domain.ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return session.State() == state }, time.Second, 5*time.Millisecond)
}
