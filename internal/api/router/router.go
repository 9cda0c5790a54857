// Package router assembles the chi HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/obsidianauto/tint-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/obsidianauto/tint-ai-platform/internal/http/middleware"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	TwilioWebhooks *handlers.TwilioWebhookHandler
	MetricsHandler http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.TwilioWebhooks.HealthCheck)
	r.Route("/webhooks/twilio", func(r chi.Router) {
		r.Post("/sms", cfg.TwilioWebhooks.HandleSMS)
		r.Post("/voice", cfg.TwilioWebhooks.HandleVoiceStatus)
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
