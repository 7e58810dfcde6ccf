package chatws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/diary"
)

// Message types.
const (
	TypeMessage = "message"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeReply   = "reply"
	TypeError   = "error"
)

// msgUnavailable is shown when a turn fails for a reason other than the AI.
const msgUnavailable = "지금은 대화를 이어갈 수 없어요. 잠시 후 다시 시도해주세요."

// Chatter sends one user turn through the journaling flow.
type Chatter interface {
	SendMessage(ctx context.Context, text string) (diary.SendResult, error)
}

// Inbound is a client frame.
type Inbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Flags reports what the moderation gate detected in the user turn.
type Flags struct {
	SelfHarm bool `json:"self_harm"`
	Violence bool `json:"violence"`
	Degraded bool `json:"degraded,omitempty"`
}

// Outbound is a server frame.
type Outbound struct {
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	Flags      *Flags `json:"flags,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Handler upgrades requests to chat WebSockets.
type Handler struct {
	chat          Chatter
	hub           *Hub
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewHandler creates a chat WebSocket handler.
func NewHandler(chat Chatter, hub *Hub, allowedOrigin string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chat:          chat,
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}

	connID := uuid.NewString()
	h.hub.Register(connID, ws)
	defer h.hub.Unregister(connID, ws)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "conn_id", connID)
		}
	}()

	h.readLoop(r.Context(), ws, connID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, connID string) {
	for {
		var msg Inbound
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket closed by client", "conn_id", connID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "conn_id", connID)
			}
			return
		}

		var out Outbound
		switch msg.Type {
		case TypeMessage:
			out = h.handleMessage(ctx, msg.Content)
		case TypePing:
			out = Outbound{Type: TypePong}
		default:
			out = Outbound{Type: TypeError, Content: "unknown message type"}
		}

		if err := wsjson.Write(ctx, ws, out); err != nil {
			h.logger.Debug("WebSocket write error", "error", err, "conn_id", connID)
			return
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, content string) Outbound {
	res, err := h.chat.SendMessage(ctx, content)
	if err == nil {
		return Outbound{
			Type:       TypeReply,
			Content:    res.Reply,
			TokensUsed: res.TokensUsed,
			Flags: &Flags{
				SelfHarm: res.Moderation.SelfHarm,
				Violence: res.Moderation.Violence,
				Degraded: res.Moderation.Degraded,
			},
		}
	}

	var replyErr *diary.ReplyError
	switch {
	case errors.As(err, &replyErr):
		return Outbound{Type: TypeError, Content: replyErr.Message}
	case errors.Is(err, diary.ErrEmptyMessage), errors.Is(err, diary.ErrWrongState):
		return Outbound{Type: TypeError, Content: err.Error()}
	default:
		h.logger.Error("Chat turn failed", "error", err)
		return Outbound{Type: TypeError, Content: msgUnavailable}
	}
}
