package runtime

import (
	"chat-session/contract"
	"chat-session/domain/event"
	"sync"
)

// Registry keeps the sinks subscribed to one session's event stream.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]contract.EventSink // map subscription -> Sink
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]contract.EventSink),
	}
}

// Subscribe registers a sink under id, replacing any sink already there.
// Sinks are published to in subscription order.
func (r *Registry) Subscribe(id string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sinks[id]; !ok {
		r.order = append(r.order, id)
	}
	r.sinks[id] = sink
}

// Unsubscribe removes the sink registered under id. Unknown ids are ignored.
func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sinks[id]; !ok {
		return
	}
	delete(r.sinks, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Publish hands e to every sink and returns how many refused it.
func (r *Registry) Publish(e event.SessionEvent) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dropped := 0
	for _, id := range r.order {
		if !r.sinks[id].Consume(e) {
			dropped++
		}
	}
	return dropped
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}
