package observability

import (
	"sync/atomic"
	"time"
)

// SessionStats aggregates the counters shown by the console status line
type SessionStats struct {
	MessagesReceived  uint64        `json:"messages_received"`
	MessagesSent      uint64        `json:"messages_sent"`
	Rejected          uint64        `json:"rejected"`
	DeliveryFailures  uint64        `json:"delivery_failures"`
	Disconnects       uint64        `json:"disconnects"`
	ReconnectAttempts uint64        `json:"reconnect_attempts"`
	DroppedEvents     uint64        `json:"dropped_events"`
	Uptime            time.Duration `json:"uptime"`
}

// SessionMonitor holds atomic counters updated by the session loop
// and read from any goroutine.
type SessionMonitor struct {
	startedAt time.Time

	messagesReceived  atomic.Uint64
	messagesSent      atomic.Uint64
	rejected          atomic.Uint64
	deliveryFailures  atomic.Uint64
	disconnects       atomic.Uint64
	reconnectAttempts atomic.Uint64
	droppedEvents     atomic.Uint64
}

func NewSessionMonitor() *SessionMonitor {
	return &SessionMonitor{startedAt: time.Now()}
}

func (m *SessionMonitor) IncrMessagesReceived()  { m.messagesReceived.Add(1) }
func (m *SessionMonitor) IncrMessagesSent()      { m.messagesSent.Add(1) }
func (m *SessionMonitor) IncrRejected()          { m.rejected.Add(1) }
func (m *SessionMonitor) IncrDeliveryFailures()  { m.deliveryFailures.Add(1) }
func (m *SessionMonitor) IncrDisconnects()       { m.disconnects.Add(1) }
func (m *SessionMonitor) IncrReconnectAttempts() { m.reconnectAttempts.Add(1) }

func (m *SessionMonitor) AddDroppedEvents(n int) {
	if n > 0 {
		m.droppedEvents.Add(uint64(n))
	}
}

func (m *SessionMonitor) GetLatest() SessionStats {
	return SessionStats{
		MessagesReceived:  m.messagesReceived.Load(),
		MessagesSent:      m.messagesSent.Load(),
		Rejected:          m.rejected.Load(),
		DeliveryFailures:  m.deliveryFailures.Load(),
		Disconnects:       m.disconnects.Load(),
		ReconnectAttempts: m.reconnectAttempts.Load(),
		DroppedEvents:     m.droppedEvents.Load(),
		Uptime:            time.Since(m.startedAt),
	}
}
