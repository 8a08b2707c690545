package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/mailguard/internal/config"
	"github.com/ignite/mailguard/internal/metrics"
)

// SetupRoutes configures all routes. The webhook route is mounted only when
// webhooks are enabled and a reconciler is wired.
func SetupRoutes(h *Handlers, health *HealthChecker, hooks config.WebhookConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "mailguard")
			next.ServeHTTP(w, req)
		})
	})

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health and metrics (no auth required)
	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}
	r.Handle("/metrics", metrics.Handler())

	if hooks.Enabled && h.reconciler != nil {
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(limitBody(hooks.MaxBodyBytes))
			if hooks.VerifySignature && hooks.Secret != "" {
				r.Use(verifySignature(hooks.Secret))
			}
			r.Post("/mailtrap", h.HandleMailtrapWebhook)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/validations", func(r chi.Router) {
			r.Get("/", h.ListValidations)
			r.Post("/bulk", h.BulkValidations)
			r.Get("/{email}", h.GetValidation)
			r.Post("/{email}/block", h.MarkValidation)
			r.Post("/{email}/invalid", h.MarkValidation)
			r.Post("/{email}/valid", h.MarkValidation)
			if h.provider != nil {
				r.Post("/{email}/verify", h.VerifyValidation)
			}
		})
		r.Get("/mail-logs", h.ListMailLogs)
		if h.mailer != nil {
			r.Post("/messages", h.SendMessage)
		}
	})

	return r
}
