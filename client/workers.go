package client

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/domain/event"
	"context"
	"time"

	"github.com/samber/lo"
)

// InputWorker feeds console lines to Execute until /quit, end of input
// or cancellation.
type InputWorker struct {
	console *Console
}

func (c *Console) InputWorker() contract.Worker {
	return InputWorker{console: c}
}

func (w InputWorker) Run(ctx context.Context) error {
	w.console.startReader()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-w.console.lines:
			if !ok {
				w.console.quit()
				return nil
			}
			if !w.console.Execute(line) {
				return nil
			}
		}
	}
}

// EventWorker renders session events as they are published.
type EventWorker struct {
	console *Console
}

func (c *Console) EventWorker() contract.Worker {
	return EventWorker{console: c}
}

func (w EventWorker) Run(ctx context.Context) error {
	c := w.console
	sub := c.session.Subscribe(c.config.Buffer)
	defer sub.Unsubscribe()

	// Events published before this subscription are only visible in the log
	c.timeline.Resync(c.session.Messages())
	c.render.Header(c.session.Snapshot().Room)
	c.autoConnect()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			c.Show(e)
		}
	}
}

// Show renders one session event.
func (c *Console) Show(e event.SessionEvent) {
	switch evt := e.(type) {
	case event.MessageReceived:
		username := c.session.Snapshot().Username
		shown := c.timeline.Len()
		if c.timeline.Consume(evt) {
			c.log.Debug("Console missed messages, resyncing", "index", evt.Index, "shown", shown)
			c.timeline.Resync(c.session.Messages())
			for _, missed := range lo.Slice(c.timeline.Messages(), shown, evt.Index) {
				c.render.Message(missed, username)
			}
		}
		c.render.Message(evt.Message, username)
	case event.RoomJoined:
		c.timeline.Consume(evt)
		c.render.Header(evt.Room)
		c.render.Welcome()
	case event.RoomLeft:
		c.timeline.Consume(evt)
		c.render.Header("")
	case event.ConnectionChanged:
		c.timeline.Consume(evt)
		c.showConnection(evt)
	case event.ReconnectScheduled:
		c.render.Notice("Reconnecting in %s (attempt %d)", evt.Delay.Round(10*time.Millisecond), evt.Attempt)
	case event.DeliveryFailed:
		c.render.Failure("Could not deliver %s: %v", evt.Command, evt.Err)
	}
}

func (c *Console) showConnection(e event.ConnectionChanged) {
	switch e.To {
	case domain.StateConnected:
		if e.From == domain.StateConnecting || e.From == domain.StateDisconnected {
			c.render.Notice("Connected")
		}
	case domain.StateDisconnected:
		if e.From == domain.StateDisconnected {
			return
		}
		c.render.Failure("Disconnected: %s", e.Reason)
		if e.LostRoom != "" {
			c.render.Hint("Left %s, /join to rejoin once connected", e.LostRoom)
			c.render.Header("")
		}
	}
}
