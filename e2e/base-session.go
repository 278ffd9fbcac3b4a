package e2e

import (
	"chat-session/domain"
	"chat-session/internal"
	"chat-session/runtime"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseSessionSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSessionSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayURL == "" {
		s.T().Skip("E2E_RELAY_URL not set, skipping live relay suite")
	}
}

// Step prints a colorized header for a scenario step
func (s *BaseSessionSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// NewSession starts a session for username against the relay under test.
// It is stopped when the test ends.
func (s *BaseSessionSuite) NewSession(username string) *runtime.Session {
	config, err := internal.Parse(env.EnvSet{
		"CHAT_RELAY_URL":   s.Config.RelayURL,
		"CHAT_USERNAME":    username,
		"RECONNECT_POLICY": "none",
	})
	s.Require().NoError(err)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	transport, err := internal.NewTransport(log, config)
	s.Require().NoError(err)
	session, err := runtime.NewSession(log, transport, config.SessionOptions())
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(ctx)
	}()
	s.T().Cleanup(func() {
		_ = session.Close()
		cancel()
		<-done
	})
	return session
}

// Joined connects session and joins room.
func (s *BaseSessionSuite) Joined(session *runtime.Session, room string) {
	s.Require().True(session.Connect(), "connect rejected")
	s.WaitState(session, domain.StateConnected)
	s.Require().True(session.JoinRoom(room), "join rejected")
	s.Require().Equal(domain.StateJoined, session.State())
}

func (s *BaseSessionSuite) WaitState(session *runtime.Session, state domain.ConnectionState) {
	s.Require().Eventually(func() bool { return session.State() == state },
		s.Config.Timeout, 20*time.Millisecond, "session never reached %s", state)
}
