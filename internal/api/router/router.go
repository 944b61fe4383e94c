package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/practice-concierge/internal/http/middleware"
	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/internal/reminder"
	"github.com/wolfman30/practice-concierge/internal/reviews"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

const readyTimeout = 2 * time.Second

// Config holds router configuration
type Config struct {
	Logger            *logging.Logger
	MessagingHandler  *messaging.Handler
	ReviewsHandler    *reviews.Handler
	SchedulingHandler *scheduling.Handler
	ReminderHandler   *reminder.Handler
	AdminAuthSecret   string
	MetricsHandler    http.Handler

	CORSAllowedOrigins []string
	PublicRateRPS      float64
	PublicRateBurst    int

	// ReadyCheck reports whether backing stores are reachable.
	ReadyCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/ready", readyHandler(cfg.ReadyCheck, cfg.Logger))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/webhooks", func(hooks chi.Router) {
		if cfg.MessagingHandler != nil {
			hooks.Post("/whatsapp", cfg.MessagingHandler.WhatsAppWebhook)
		}
		if cfg.ReviewsHandler != nil {
			hooks.Post("/reviews", cfg.ReviewsHandler.ReviewWebhook)
		}
	})

	// Admin routes are only mounted when a signing secret is configured.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.SchedulingHandler != nil {
				cfg.SchedulingHandler.RegisterAdminRoutes(admin)
			}
			if cfg.ReminderHandler != nil {
				admin.Post("/reminders/scan", cfg.ReminderHandler.TriggerScan)
			}
		})
	}

	if cfg.SchedulingHandler != nil {
		r.Route("/public", func(public chi.Router) {
			if len(cfg.CORSAllowedOrigins) > 0 {
				public.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
			}
			if cfg.PublicRateRPS > 0 {
				public.Use(httpmiddleware.RateLimit(cfg.PublicRateRPS, cfg.PublicRateBurst))
			}
			cfg.SchedulingHandler.RegisterPublicRoutes(public)
		})
	}

	return r
}

func readyHandler(check func(ctx context.Context) error, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check == nil {
			writeStatus(w, http.StatusOK, "ready")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := check(ctx); err != nil {
			if logger != nil {
				logger.Warn("readiness check failed", "error", err)
			}
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	}
}

func writeStatus(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": value})
}
