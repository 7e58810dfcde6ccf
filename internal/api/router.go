package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/gate"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/middleware"
)

// RouterConfig wires the HTTP surface together.
type RouterConfig struct {
	Handler        *Handler
	Health         *HealthHandler
	Gate           *gate.Gate
	ChatSocket     http.Handler
	AllowedOrigins []string
}

// NewRouter builds the chi router: public health and login routes, and
// everything else behind the password gate.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	if cfg.Health != nil {
		cfg.Health.RegisterHealth(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Post("/api/login", cfg.Gate.Login)
		r.Post("/api/logout", cfg.Gate.Logout)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Gate.Middleware)
			cfg.Handler.RegisterRoutes(r)
			if cfg.ChatSocket != nil {
				r.Get("/ws/chat", cfg.ChatSocket.ServeHTTP)
			}
		})
	})

	return r
}
