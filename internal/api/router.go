package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bencrane/outbound-engine-x-api/internal/ingest"
	"github.com/bencrane/outbound-engine-x-api/internal/replay"
	"github.com/bencrane/outbound-engine-x-api/internal/ws"
)

// RouterConfig collects everything the HTTP surface depends on.
type RouterConfig struct {
	Pipeline   *ingest.Pipeline
	Engine     *replay.Engine
	Events     EventStore
	Sink       Snapshotter
	Hub        *ws.Hub
	AdminToken string
}

// NewRouter creates and configures the HTTP router. Provider-facing
// ingestion routes are open (signature verification guards them);
// operator routes require the admin token.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS for dashboard
	r.Use(corsMiddleware)

	// Handlers
	webhookHandler := NewWebhookHandler(cfg.Pipeline)
	eventHandler := NewEventHandler(cfg.Events)
	replayHandler := NewReplayHandler(cfg.Engine)
	dlqHandler := NewDeadLetterHandler(cfg.Events, cfg.Engine)
	metricsHandler := NewMetricsHandler(cfg.Sink)

	// WebSocket endpoint
	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.HandleWebSocket)
	}

	r.Route("/api/webhooks", func(r chi.Router) {
		// Provider-facing ingestion
		r.Post("/{provider}", webhookHandler.Receive)

		// Operator control plane
		r.Group(func(r chi.Router) {
			r.Use(adminOnly(cfg.AdminToken))

			r.Get("/events", eventHandler.List)
			r.Get("/events/{provider}/{event_key}", eventHandler.Get)

			r.Post("/replay/{provider}/{event_key}", replayHandler.Single)
			r.Post("/replay-bulk", replayHandler.Bulk)
			r.Post("/replay-query", replayHandler.Query)

			r.Route("/dead-letters", func(r chi.Router) {
				r.Get("/", dlqHandler.List)
				r.Get("/{provider}/{event_key}", dlqHandler.Get)
				r.Post("/replay", dlqHandler.Replay)
			})
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Group(func(r chi.Router) {
			r.Use(adminOnly(cfg.AdminToken))
			r.Get("/metrics", metricsHandler.Get)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
