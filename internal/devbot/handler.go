package devbot

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/chatwidget/internal/domain"
)

// Handler serves the bot side of the widget WebSocket protocol: a welcome
// message on connect, a typing marker before every reply and an
// acknowledgement for structured submissions.
type Handler struct {
	registry       *Registry
	responder      Responder
	replyDelay     time.Duration
	originPatterns []string
	logger         *slog.Logger
}

// NewHandler creates a bot WebSocket handler.
func NewHandler(registry *Registry, responder Responder, replyDelay time.Duration, allowedOrigins []string, logger *slog.Logger) *Handler {
	if responder == nil {
		responder = KeywordResponder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:       registry,
		responder:      responder,
		replyDelay:     replyDelay,
		originPatterns: originPatterns(allowedOrigins),
		logger:         logger,
	}
}

// originPatterns converts allowed origins into the host patterns the
// WebSocket library matches against.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	h.logger.Info("WebSocket connection request", "session_id", sessionID, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	h.registry.Register(sessionID, ws)
	defer h.registry.Unregister(sessionID, ws)

	ctx := r.Context()
	if err := h.write(ctx, ws, WelcomeMessage); err != nil {
		h.logger.Debug("Failed to send welcome", "error", err, "session_id", sessionID)
		return
	}
	h.converse(ctx, ws, sessionID)
	h.logger.Info("Bot session ended", "session_id", sessionID)
}

func (h *Handler) converse(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}
		text := string(data)
		h.logger.Info("Received message", "session_id", sessionID, "length", len(text))

		if err := h.write(ctx, ws, domain.TypingSentinel); err != nil {
			return
		}

		var reply string
		if ev, ok := domain.DecodeSubmission(text); ok {
			h.logger.Info("Structured submission received", "session_id", sessionID, "action", ev.Submission.Action())
			reply = Acknowledge(ev)
		} else {
			if !h.pause(ctx) {
				return
			}
			reply = h.responder.Reply(sessionID, text)
		}
		if err := h.write(ctx, ws, reply); err != nil {
			return
		}
	}
}

func (h *Handler) pause(ctx context.Context) bool {
	if h.replyDelay <= 0 {
		return true
	}
	t := time.NewTimer(h.replyDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, text string) error {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := ws.Write(writeCtx, websocket.MessageText, []byte(text)); err != nil {
		h.logger.Debug("WebSocket write error", "error", err)
		return err
	}
	return nil
}
