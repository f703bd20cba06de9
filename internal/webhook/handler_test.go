package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const orderPayload = `{
	"meta": {"event_name": "order_created"},
	"data": {
		"id": "1001",
		"attributes": {
			"user_email": "buyer@example.com",
			"first_order_item": {"license_key": "SECRET-LICENSE-KEY"}
		}
	}
}`

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func post(t *testing.T, h *Handler, method, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	req := httptest.NewRequest(method, "/api/webhook", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestWebhookOrderCreatedNeverLogsLicenseKey(t *testing.T) {
	logs := captureLogs(t)

	rr := post(t, NewHandler(""), http.MethodPost, orderPayload, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"received": true}, decode(t, rr))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	out := logs.String()
	assert.Contains(t, out, `"order_id":"1001"`)
	assert.Contains(t, out, `"customer_email":"buyer@example.com"`)
	assert.Contains(t, out, `"has_license_key":true`)
	assert.NotContains(t, out, "SECRET-LICENSE-KEY")
}

func TestWebhookDispatch(t *testing.T) {
	events := []string{
		OrderCreated, SubscriptionCreated, SubscriptionUpdated,
		SubscriptionCancelled, SubscriptionPaymentSuccess, SubscriptionPaymentFailed,
	}
	for _, name := range events {
		t.Run(name, func(t *testing.T) {
			h := NewHandler("")
			var got string
			h.On(name, func(_ context.Context, e gjson.Result) error {
				got = e.Get("data.id").String()
				return nil
			})

			rr := post(t, h, http.MethodPost, `{"meta":{"event_name":"`+name+`"},"data":{"id":"42"}}`, nil)
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "42", got)
		})
	}
}

func TestWebhookUnhandledEvent(t *testing.T) {
	logs := captureLogs(t)

	rr := post(t, NewHandler(""), http.MethodPost, `{"meta":{"event_name":"license_key_updated"}}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"received": true}, decode(t, rr))
	assert.Contains(t, logs.String(), "Unhandled webhook event")
}

func TestWebhookProcessingErrorsStillAcknowledge(t *testing.T) {
	h := NewHandler("")
	h.On(OrderCreated, func(context.Context, gjson.Result) error { return errors.New("db down") })

	rr := post(t, h, http.MethodPost, orderPayload, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"error": "Webhook processed with errors"}, decode(t, rr))

	rr = post(t, NewHandler(""), http.MethodPost, `{not json`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"error": "Webhook processed with errors"}, decode(t, rr))
}

func TestWebhookSignature(t *testing.T) {
	const secret = "whsec"
	h := NewHandler(secret)
	called := 0
	h.On(OrderCreated, func(context.Context, gjson.Result) error {
		called++
		return nil
	})

	rr := post(t, h, http.MethodPost, orderPayload, map[string]string{SignatureHeader: Sign(secret, []byte(orderPayload))})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, called)

	for _, sig := range []string{"", "zz", Sign("other", []byte(orderPayload))} {
		rr := post(t, h, http.MethodPost, orderPayload, map[string]string{SignatureHeader: sig})
		assert.Equal(t, http.StatusOK, rr.Code, sig)
		assert.Equal(t, map[string]any{"received": true}, decode(t, rr))
	}
	assert.Equal(t, 1, called, "unsigned or forged events are not dispatched")
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	for _, m := range []string{http.MethodGet, http.MethodOptions, http.MethodPut} {
		rr := post(t, NewHandler(""), m, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, m)
		assert.Equal(t, "Method not allowed", decode(t, rr)["error"])
	}
}
