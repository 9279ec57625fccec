package event

import "time"

type Type string

const (
	ConnectionOpenedType    Type = "CONNECTION_OPENED"
	ConnectionClosedType    Type = "CONNECTION_CLOSED"
	MessageSentType         Type = "MESSAGE_SENT"
	MessageFailedType       Type = "MESSAGE_FAILED"
	MessageExpiredType      Type = "MESSAGE_EXPIRED"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	HeartbeatType           Type = "HEARTBEAT"
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
)

// Event is the envelope fanned out to sinks and telemetry handlers. Payload
// holds one of the structs defined in this package, selected by Type.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

func New(t Type, payload any) Event {
	return Event{Type: t, CreatedAt: time.Now().UTC(), Payload: payload}
}
