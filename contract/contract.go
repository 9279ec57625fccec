//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"relay-lab/domain"
	"relay-lab/domain/event"
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
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
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

type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Transport pushes bytes to clients. The hub core never touches a socket
// itself; it only ever sees this interface.
type Transport interface {
	DeliverToConnection(ctx context.Context, id domain.ConnID, payload []byte) error

	// SupportsGroups reports whether DeliverToGroup works natively. When it
	// returns false the dispatcher enumerates group members itself.
	SupportsGroups() bool
	DeliverToGroup(ctx context.Context, group string, payload []byte) error

	JoinGroup(ctx context.Context, id domain.ConnID, group string) error
	LeaveGroup(ctx context.Context, id domain.ConnID, group string) error

	// NotifyAndClose tells the client why it is being disconnected, then
	// closes the underlying channel.
	NotifyAndClose(ctx context.Context, id domain.ConnID, reason string) error
}

// Authorizer is the external permission check consulted before Connect and
// before system-priority sends.
type Authorizer interface {
	HasPermission(ctx context.Context, user domain.UserID, capability string) bool
}

// Archiver persists terminal messages for later inspection.
type Archiver interface {
	Archive(m domain.QueuedMessage) error
}
