package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrSessionClosed     = fmt.Errorf("session closed")
	ErrNotConnected      = fmt.Errorf("transport not connected")
	ErrOutboxFull        = fmt.Errorf("transport outbox full")
	ErrTransportClosed   = fmt.Errorf("transport closed")
	ErrAlreadyConnecting = fmt.Errorf("connection attempt already in flight")
	ErrUnsupportedScheme = fmt.Errorf("unsupported relay endpoint scheme")
	ErrInvalidPacket     = fmt.Errorf("invalid packet")
	ErrHandshake         = fmt.Errorf("relay handshake failed")
	ErrInvalidPolicy     = fmt.Errorf("invalid reconnect policy")
)
