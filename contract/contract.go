//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-session/domain"
	"chat-session/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging during supervision, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Transport is the client side of the relay.
// Connect only starts an attempt: the outcome arrives on Events as a
// connected or disconnected event. Join, Leave and Send enqueue a frame and
// never wait for the network; they fail with ErrNotConnected or ErrOutboxFull.
// Events is valid for the whole lifetime of the transport.
type Transport interface {
	Connect(ctx context.Context) error
	Join(room string) error
	Leave(room string) error
	Send(room, message, username string) error
	Events() <-chan domain.InboundEvent
	Close() error
}

// EventSink consumes session events.
type EventSink interface {
	Consume(e event.SessionEvent) bool
}

type IRegistry interface {
	Subscribe(id string, sink EventSink)
	Unsubscribe(id string)
	Publish(e event.SessionEvent) int
	Len() int
}
