// Package webhook receives Lemon Squeezy order and subscription events.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/worktab/worktab-api/internal/api"
	"github.com/worktab/worktab-api/internal/metrics"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Signature"

const maxPayloadSize = 1 << 20

// Event names the vendor sends.
const (
	OrderCreated               = "order_created"
	SubscriptionCreated        = "subscription_created"
	SubscriptionUpdated        = "subscription_updated"
	SubscriptionCancelled      = "subscription_cancelled"
	SubscriptionPaymentSuccess = "subscription_payment_success"
	SubscriptionPaymentFailed  = "subscription_payment_failed"
)

// EventFunc processes one decoded event payload.
type EventFunc func(ctx context.Context, event gjson.Result) error

// Handler serves POST /api/webhook.
type Handler struct {
	secret   string
	handlers map[string]EventFunc
}

// NewHandler creates a webhook handler. An empty secret disables signature
// verification.
func NewHandler(secret string) *Handler {
	return &Handler{
		secret: secret,
		handlers: map[string]EventFunc{
			OrderCreated:               handleOrderCreated,
			SubscriptionCreated:        handleSubscriptionCreated,
			SubscriptionUpdated:        logSubscriptionID("Subscription updated"),
			SubscriptionCancelled:      handleSubscriptionCancelled,
			SubscriptionPaymentSuccess: logSubscriptionID("Subscription payment succeeded"),
			SubscriptionPaymentFailed:  logSubscriptionID("Subscription payment failed"),
		},
	}
}

// On replaces the handler for an event.
func (h *Handler) On(event string, fn EventFunc) {
	h.handlers[event] = fn
}

// RegisterRoutes mounts the webhook endpoint. It carries no CORS headers.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.HandleFunc("/api/webhook", api.RequirePost(h.HandleWebhook))
}

// HandleWebhook acknowledges every POST with 200 so the vendor does not
// retry. Processing failures are reported in the body only.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		slog.Error("Webhook error", "error", fmt.Errorf("read payload: %w", err))
		metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		processedWithErrors(w)
		return
	}

	if h.secret != "" && !h.verify(body, r.Header.Get(SignatureHeader)) {
		slog.Warn("Webhook signature mismatch, event ignored")
		metrics.WebhookEvents.WithLabelValues("invalid_signature").Inc()
		api.JSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if !gjson.ValidBytes(body) {
		slog.Error("Webhook error", "error", "payload is not valid JSON")
		metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		processedWithErrors(w)
		return
	}

	event := gjson.ParseBytes(body)
	name := event.Get("meta.event_name").String()
	slog.Info("Lemon Squeezy webhook received", "event", name)

	fn, ok := h.handlers[name]
	if !ok {
		slog.Info("Unhandled webhook event", "event", name)
		metrics.WebhookEvents.WithLabelValues("unhandled").Inc()
		api.JSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	metrics.WebhookEvents.WithLabelValues(name).Inc()

	if err := fn(r.Context(), event); err != nil {
		slog.Error("Webhook error", "event", name, "error", err)
		processedWithErrors(w)
		return
	}
	api.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the signature the vendor would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func processedWithErrors(w http.ResponseWriter) {
	api.Error(w, http.StatusOK, "Webhook processed with errors")
}

// handleOrderCreated logs the order. The license key is reported only as
// present or absent.
func handleOrderCreated(_ context.Context, event gjson.Result) error {
	data := event.Get("data")
	slog.Info("Order created",
		"order_id", data.Get("id").String(),
		"customer_email", data.Get("attributes.user_email").String(),
		"has_license_key", data.Get("attributes.first_order_item.license_key").String() != "",
	)
	return nil
}

func handleSubscriptionCreated(_ context.Context, event gjson.Result) error {
	data := event.Get("data")
	slog.Info("Subscription created",
		"subscription_id", data.Get("id").String(),
		"customer_email", data.Get("attributes.user_email").String(),
	)
	return nil
}

func handleSubscriptionCancelled(_ context.Context, event gjson.Result) error {
	data := event.Get("data")
	slog.Info("Subscription cancelled",
		"subscription_id", data.Get("id").String(),
		"customer_email", data.Get("attributes.user_email").String(),
	)
	return nil
}

func logSubscriptionID(msg string) EventFunc {
	return func(_ context.Context, event gjson.Result) error {
		slog.Info(msg, "subscription_id", event.Get("data.id").String())
		return nil
	}
}
