package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/fluentcoach/internal/challenge"
	"github.com/ashureev/fluentcoach/internal/domain"
	"github.com/ashureev/fluentcoach/internal/identity"
)

const (
	writeTimeout = 5 * time.Second
	readLimit    = 64 << 10
)

// Message types exchanged on the stream.
const (
	TypeStart  = "start"
	TypeTick   = "tick"
	TypeStop   = "stop"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeResult = "result"
	TypeError  = "error"

	StatusStopped = "stopped"
)

// clientMessage is a frame sent by the client.
type clientMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript,omitempty"`
}

// serverMessage is a frame sent to the client.
type serverMessage struct {
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handler serves the live challenge stream. The user ID is taken from the
// request context, see identity.Middleware.
type Handler struct {
	machine        *challenge.Machine
	sm             *SessionManager
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates a live stream handler.
func NewHandler(machine *challenge.Machine, sm *SessionManager, allowedOrigins []string, isDev bool) *Handler {
	return &Handler{
		machine:        machine,
		sm:             sm,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"userId is required"}`, http.StatusBadRequest)
		return
	}
	slog.Info("Live connection request", "user_id", userID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(readLimit)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sm.Register(userID, ws)
	defer h.sm.Unregister(userID, ws)

	h.readLoop(r.Context(), ws, userID)
	slog.Info("Live session ended", "user_id", userID)
}

// checkOrigin enforces the allowed origins; origin matching in Accept is
// disabled in favour of this check.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.write(ws, userID, serverMessage{Type: TypeError, Error: "invalid message"})
			continue
		}

		h.write(ws, userID, h.dispatch(ctx, userID, msg))
	}
}

func (h *Handler) dispatch(ctx context.Context, userID string, msg clientMessage) serverMessage {
	switch msg.Type {
	case TypeStart:
		if _, err := h.machine.Start(ctx, userID); err != nil {
			return errorMessage(err)
		}
		return serverMessage{Type: TypeResult, Status: challenge.StatusOK}
	case TypeTick:
		res, err := h.machine.Tick(ctx, userID, msg.Transcript)
		if err != nil {
			return errorMessage(err)
		}
		return serverMessage{Type: TypeResult, Status: res.Status, Reason: res.Reason}
	case TypeStop:
		if _, err := h.machine.Stop(ctx, userID); err != nil {
			return errorMessage(err)
		}
		return serverMessage{Type: TypeResult, Status: StatusStopped}
	case TypePing:
		return serverMessage{Type: TypePong}
	default:
		return serverMessage{Type: TypeError, Error: "unknown message type"}
	}
}

func errorMessage(err error) serverMessage {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return serverMessage{Type: TypeError, Error: "no active challenge"}
	case errors.Is(err, domain.ErrValidation):
		return serverMessage{Type: TypeError, Error: err.Error()}
	default:
		slog.Error("Live challenge operation failed", "error", err)
		return serverMessage{Type: TypeError, Error: "internal error"}
	}
}

func (h *Handler) write(ws *websocket.Conn, userID string, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to encode live message", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err, "user_id", userID)
	}
}
