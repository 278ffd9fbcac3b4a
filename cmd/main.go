package main

import (
	"chat-session/client"
	"chat-session/internal"
	"chat-session/runtime"
	"chat-session/runtime/workers"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the chat client.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat client error: %v\n", err)
	}
	os.Exit(code)
}

// run wires configuration, transport, session and console, then blocks
// until /quit, end of input or a termination signal.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Relay transport, selected by the endpoint scheme
	transport, err := internal.NewTransport(log, config)
	if err != nil {
		return exitRuntime, fmt.Errorf("transport error: %w", err)
	}

	// 4. Session
	session, err := runtime.NewSession(log, transport, config.SessionOptions())
	if err != nil {
		_ = transport.Close()
		return exitConfig, fmt.Errorf("session error: %w", err)
	}
	// Closing the session closes the transport
	defer func() {
		log.Info("Closing session...")
		if err := session.Close(); err != nil {
			log.Warn("Transport close failed", "error", err)
		}
	}()

	// 5. Supervision: the session loop and both console workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	console := client.NewConsole(log, session, os.Stdin, os.Stdout, client.Config{
		DefaultRoom: config.Room,
		Colours:     config.Colours,
		Buffer:      config.SubscriberBuffer,
		AutoConnect: config.AutoConnect,
	}, sup.Stop)
	sup.Add(session, console.EventWorker(), console.InputWorker())
	if config.StatsInterval > 0 {
		sup.Add(workers.NewReporterWorker(log, session, config.StatsInterval))
	}

	log.Info("Chat client started", "relay", config.RelayURL, "username", config.Username)
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return exitOK, nil
}
