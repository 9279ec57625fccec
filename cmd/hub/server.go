package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"relay-lab/auth"
	"relay-lab/domain"
	"relay-lab/errors"
	"relay-lab/infrastructure/transport"
	"relay-lab/runtime"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var validate = validator.New()

// clientCommand is one inbound frame. Payload stays opaque: the hub routes
// it, the clients own its meaning.
type clientCommand struct {
	Action  string          `json:"action" validate:"required,oneof=join leave send group enqueue ping"`
	Group   string          `json:"group" validate:"omitempty,max=128"`
	To      string          `json:"to" validate:"omitempty,max=128"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	TTL     time.Duration   `json:"ttl"`
}

// credentialRequest is the body of both token endpoints.
type credentialRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Secret string `json:"secret" validate:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type hubHandler struct {
	log          *slog.Logger
	orchestrator *runtime.Orchestrator
	adapter      *transport.Adapter
	authStore    *auth.Store
	authService  *auth.Service
	jwtSecret    []byte
	maxRetries   int
	retryBackoff time.Duration
	upgrader     websocket.Upgrader
}

func newHubHandler(log *slog.Logger, orchestrator *runtime.Orchestrator, adapter *transport.Adapter,
	authStore *auth.Store, authService *auth.Service, jwtSecret []byte,
	maxRetries int, retryBackoff time.Duration) http.Handler {
	h := &hubHandler{
		log:          log,
		orchestrator: orchestrator,
		adapter:      adapter,
		authStore:    authStore,
		authService:  authService,
		jwtSecret:    jwtSecret,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/register", h.serveRegister)
	mux.HandleFunc("/token", h.serveToken)
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/stats", h.serveStats)
	return mux
}

// serveRegister stores a new client credential and returns its first token.
func (h *hubHandler) serveRegister(w http.ResponseWriter, r *http.Request) {
	h.issueToken(w, r, h.authService.Register)
}

// serveToken exchanges an existing client credential for a fresh token.
func (h *hubHandler) serveToken(w http.ResponseWriter, r *http.Request) {
	h.issueToken(w, r, h.authService.Login)
}

func (h *hubHandler) issueToken(w http.ResponseWriter, r *http.Request,
	issue func(userID, secret string) (string, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	token, err := issue(req.UserID, req.Secret)
	if err != nil {
		h.log.Debug("Token request rejected", "user", req.UserID, "error", err)
		http.Error(w, err.Error(), errors.MapToHTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{Token: token})
}

func (h *hubHandler) serveWS(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ValidateToken(h.jwtSecret, r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	user := domain.UserID(claims.UserID)
	h.authStore.Grant(user, claims.Capabilities...)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	connID := domain.ConnID(uuid.NewString())
	h.adapter.Register(connID, ws)
	if err := h.orchestrator.Connect(r.Context(), user, connID); err != nil {
		h.adapter.Unregister(connID)
		_ = ws.Close()
		h.log.Warn("Connect rejected", "user", user, "error", err)
		return
	}

	h.readLoop(r.Context(), ws, user, connID)
}

// readLoop pumps client frames until the socket dies, refreshing the
// connection's activity window on every frame.
func (h *hubHandler) readLoop(ctx context.Context, ws *websocket.Conn, user domain.UserID, connID domain.ConnID) {
	defer func() {
		h.adapter.Unregister(connID)
		_ = ws.Close()
		h.orchestrator.Disconnect(user, connID)
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		h.orchestrator.Touch(connID)

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			h.log.Debug("Malformed frame", "conn", connID, "error", err)
			continue
		}
		if err := validate.Struct(cmd); err != nil {
			h.log.Debug("Invalid command", "conn", connID, "error", err)
			continue
		}
		h.handle(ctx, cmd, user, connID)
	}
}

func (h *hubHandler) handle(ctx context.Context, cmd clientCommand, user domain.UserID, connID domain.ConnID) {
	typ := domain.MessageType(cmd.Type)
	if typ == "" {
		typ = domain.TypeChat
	}
	// System-priority sends need the corresponding capability.
	if typ == domain.TypeSystem && !h.orchestrator.CanSendSystem(ctx, user) {
		h.log.Warn("System send rejected", "user", user)
		return
	}

	switch cmd.Action {
	case "join":
		if cmd.Group == "" {
			return
		}
		if err := h.orchestrator.JoinGroup(ctx, connID, cmd.Group); err != nil {
			h.log.Warn("Join group failed", "conn", connID, "group", cmd.Group, "error", err)
		}
	case "leave":
		h.orchestrator.LeaveGroup(ctx, connID, cmd.Group)
	case "send":
		result := h.orchestrator.SendToUser(ctx, domain.UserID(cmd.To), cmd.Payload, typ)
		if !result.Delivered {
			h.log.Debug("Direct send not delivered", "to", cmd.To, "error", result.Err)
		}
	case "group":
		result := h.orchestrator.SendToGroup(ctx, cmd.Group, cmd.Payload, typ)
		if !result.Delivered {
			h.log.Debug("Group send not delivered", "group", cmd.Group, "error", result.Err)
		}
	case "enqueue":
		m := domain.NewQueuedMessage(domain.UserTarget(domain.UserID(cmd.To)), cmd.Payload, typ,
			domain.RetryPolicy{MaxRetries: h.maxRetries, Backoff: h.retryBackoff})
		if cmd.TTL > 0 {
			m.Expire(time.Now().UTC().Add(cmd.TTL))
		}
		if err := h.orchestrator.Enqueue(m); err != nil {
			// Backpressure surfaces to the caller, who may retry later.
			h.log.Warn("Enqueue rejected", "user", user, "error", err)
		}
	case "ping":
		// Activity refresh already happened in the read loop.
	}
}

func (h *hubHandler) serveStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.orchestrator.GetStats()); err != nil {
		h.log.Warn(fmt.Sprintf("Stats encoding failed: %v", err))
	}
}
