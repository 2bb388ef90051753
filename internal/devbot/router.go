package devbot

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/chatwidget/internal/api"
	"github.com/ashureev/chatwidget/internal/middleware"
)

// NewRouter wires the bot endpoint, the resume upload endpoint and the
// status routes behind the standard middleware stack.
func NewRouter(ws *Handler, uploads *api.UploadHandler, health *api.HealthHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins))

	health.RegisterHealth(r)
	uploads.RegisterRoutes(r)
	r.Get("/ws", ws.ServeHTTP)

	return r
}
