// Package handlers contains the HTTP entry points: Twilio webhooks and the
// health check.
package handlers

import (
	"context"
	"net/http"

	"github.com/obsidianauto/tint-ai-platform/internal/messaging"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// InboundService is the pipeline entry the webhooks feed.
type InboundService interface {
	HandleMessage(ctx context.Context, sms messaging.InboundSMS) error
	HandleCall(ctx context.Context, call messaging.InboundCall) error
}

// TwilioWebhookHandler terminates Twilio's message and voice callbacks.
type TwilioWebhookHandler struct {
	service    InboundService
	authToken  string
	smsURL     string
	voiceURL   string
	skipVerify bool
	logger     *logging.Logger
}

// NewTwilioWebhookHandler builds the webhook handler. smsURL and voiceURL are
// the public URLs Twilio signs against; leaving the token or URLs empty
// disables signature checks for local development.
func NewTwilioWebhookHandler(service InboundService, authToken, smsURL, voiceURL string, logger *logging.Logger) *TwilioWebhookHandler {
	if service == nil {
		panic("handlers: inbound service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioWebhookHandler{
		service:    service,
		authToken:  authToken,
		smsURL:     smsURL,
		voiceURL:   voiceURL,
		skipVerify: authToken == "" || smsURL == "",
		logger:     logger,
	}
}

// HandleSMS accepts Twilio's inbound message webhook and replies with empty
// TwiML; the actual reply goes out asynchronously through the scheduler.
func (h *TwilioWebhookHandler) HandleSMS(w http.ResponseWriter, r *http.Request) {
	if !h.verify(r, h.smsURL) {
		h.logger.Warn("sms webhook rejected: bad signature", "remote_ip", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	sms, err := messaging.ParseInboundSMS(r)
	if err != nil {
		h.logger.Warn("sms webhook rejected: bad payload", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.service.HandleMessage(r.Context(), *sms); err != nil {
		h.logger.Error("sms webhook failed", "phone", sms.From, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

// HandleVoiceStatus accepts Twilio's call status callback.
func (h *TwilioWebhookHandler) HandleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	if !h.verify(r, h.voiceURL) {
		h.logger.Warn("voice webhook rejected: bad signature", "remote_ip", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	call, err := messaging.ParseInboundCall(r)
	if err != nil {
		h.logger.Warn("voice webhook rejected: bad payload", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.service.HandleCall(r.Context(), *call); err != nil {
		h.logger.Error("voice webhook failed", "phone", call.From, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck reports process liveness.
func (h *TwilioWebhookHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *TwilioWebhookHandler) verify(r *http.Request, webhookURL string) bool {
	if h.skipVerify {
		return true
	}
	return messaging.ValidateTwilioSignature(r, h.authToken, webhookURL)
}
