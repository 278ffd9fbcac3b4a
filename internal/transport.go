package internal

import (
	"chat-session/contract"
	"chat-session/errors"
	"chat-session/infrastructure/transport/grpcrelay"
	"chat-session/infrastructure/transport/loopback"
	"chat-session/infrastructure/transport/socketio"
	"fmt"
	"log/slog"
)

var supportedSchemes = []string{"http", "https", "ws", "wss", "grpc", "loopback"}

// NewTransport builds the relay transport selected by the endpoint scheme.
func NewTransport(log *slog.Logger, config Config) (contract.Transport, error) {
	scheme, err := config.Scheme()
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "http", "https", "ws", "wss":
		return socketio.NewClient(log, socketio.Config{
			Endpoint:       config.RelayURL,
			ConnectTimeout: config.ConnectTimeout,
			WriteTimeout:   config.WriteTimeout,
			OutboxSize:     config.OutboxSize,
		})
	case "grpc":
		return grpcrelay.NewClient(log, grpcrelay.Config{
			Endpoint:   config.RelayURL,
			OutboxSize: config.OutboxSize,
		})
	case "loopback":
		return loopback.NewHub(log).NewClient(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedScheme, scheme)
	}
}
