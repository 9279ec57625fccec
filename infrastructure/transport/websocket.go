// Package transport contains the concrete transport adapters. The hub core
// only ever consumes contract.Transport; this package owns the sockets.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"relay-lab/domain"
	"relay-lab/errors"

	"github.com/gorilla/websocket"
)

// Adapter delivers payloads over gorilla websockets. One sock per registered
// connection; each sock serializes its writes with its own mutex because
// gorilla allows at most one concurrent writer.
type Adapter struct {
	mu           sync.RWMutex
	log          *slog.Logger
	writeTimeout time.Duration
	socks        map[domain.ConnID]*sock
}

type sock struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func NewAdapter(log *slog.Logger, writeTimeout time.Duration) *Adapter {
	return &Adapter{
		log:          log,
		writeTimeout: writeTimeout,
		socks:        make(map[domain.ConnID]*sock),
	}
}

// Register binds a websocket to a connection id. Called by the HTTP layer
// right after a successful upgrade.
func (a *Adapter) Register(id domain.ConnID, ws *websocket.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.socks[id] = &sock{ws: ws}
}

// Unregister forgets the socket without closing it; the read loop owns the
// close.
func (a *Adapter) Unregister(id domain.ConnID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.socks, id)
}

func (a *Adapter) DeliverToConnection(ctx context.Context, id domain.ConnID, payload []byte) error {
	a.mu.RLock()
	s, ok := a.socks[id]
	a.mu.RUnlock()
	if !ok {
		return errors.ErrConnectionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(a.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.ws.SetWriteDeadline(deadline)
	if err := s.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDeliveryFailed, err)
	}
	return nil
}

// SupportsGroups is false: websockets have no native fan-out, the dispatcher
// enumerates group members itself.
func (a *Adapter) SupportsGroups() bool {
	return false
}

func (a *Adapter) DeliverToGroup(context.Context, string, []byte) error {
	return errors.ErrGroupNotSupported
}

// JoinGroup and LeaveGroup are no-ops: group membership lives in the
// registry, not on the wire.
func (a *Adapter) JoinGroup(context.Context, domain.ConnID, string) error {
	return nil
}

func (a *Adapter) LeaveGroup(context.Context, domain.ConnID, string) error {
	return nil
}

// NotifyAndClose sends a close frame carrying the reason, then tears the
// socket down and forgets it.
func (a *Adapter) NotifyAndClose(ctx context.Context, id domain.ConnID, reason string) error {
	a.mu.Lock()
	s, ok := a.socks[id]
	delete(a.socks, id)
	a.mu.Unlock()
	if !ok {
		return errors.ErrConnectionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(a.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := s.ws.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
		a.log.Debug("Close frame write failed", "conn", id, "error", err)
	}
	return s.ws.Close()
}
