package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/api/middleware"
	"github.com/parley-chat/parley/internal/handlers"
	"github.com/parley-chat/parley/internal/hub"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, ws *hub.Hub, redisClient *redis.Client, rateLimitWhitelist []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (no-op without Redis)
	limiter := middleware.NewRateLimiter(redisClient, logger, rateLimitWhitelist)
	r.Use(limiter.Middleware)

	// CORS - clients connect from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Health and stats
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Identity
	r.Post("/register", h.Register)
	r.Post("/otp", h.IssueOTP)
	r.Post("/otp/verify", h.VerifyOTP)
	r.Get("/users/{id}", h.GetUser)
	r.Delete("/users/{id}", h.RetireUser)

	// Contacts
	r.Get("/contacts", h.ListContacts)
	r.Post("/contacts", h.AddContact)

	// Chats and messages
	r.Post("/chats/direct", h.CreateDirectChat)
	r.Post("/chats/group", h.CreateGroupChat)
	r.Get("/chats", h.ListChats)
	r.Get("/chats/{id}/messages", h.ListMessages)
	r.Post("/chats/{id}/messages", h.SendMessage)
	r.Post("/messages/{id}/read", h.MarkRead)

	// Real-time transport
	r.Get("/ws", ws.ServeWS)

	return r
}
