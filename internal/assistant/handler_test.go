package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worktab/worktab-api/internal/llm"
)

func newTestRouter(svc *Service, maxBody int64) http.Handler {
	r := chi.NewRouter()
	NewHandler(svc, maxBody).RegisterRoutes(r)
	return r
}

func doChat(t *testing.T, h http.Handler, method, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/ai-chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func assertCORS(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rr.Header().Get("Access-Control-Allow-Headers"))
}

func TestHandleChatSuccess(t *testing.T) {
	client := &fakeClient{reply: textReply(`Closing now. <action:close_tabs:{"urls":["https://a.example"]}>`)}
	h := newTestRouter(NewService(client, 1024, nil, nil), 0)

	body := `{
		"message": "close a",
		"context": {"workspaceCount": "2", "tabCount": 3, "workspaces": [{"id": "ws_1", "name": "Work", "tabCount": 4, "color": "red-500"}]},
		"history": [{"role": "user", "content": "earlier"}, {"role": "system", "content": "x"}, 5]
	}`
	rr := doChat(t, h, http.MethodPost, body, nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assertCORS(t, rr)

	got := decodeBody(t, rr)
	assert.Equal(t, "Closing now.", got["response"])
	assert.Equal(t, []any{map[string]any{
		"type":   "close_tabs",
		"params": map[string]any{"urls": []any{"https://a.example"}},
	}}, got["actions"])
	assert.Equal(t, map[string]any{"input_tokens": float64(12), "output_tokens": float64(34)}, got["usage"])
	assert.NotContains(t, got, "rateLimit")

	sent := client.requests[0]
	assert.Contains(t, sent.System, "- User has 2 workspaces")
	assert.Contains(t, sent.System, `"Work" (ID: ws_1, 4 tabs, color: red-500)`)
	assert.Len(t, sent.Messages, 2)
}

func TestHandleChatOmitsEmptyActions(t *testing.T) {
	h := newTestRouter(NewService(&fakeClient{reply: textReply("plain")}, 1024, nil, nil), 0)

	rr := doChat(t, h, http.MethodPost, `{"message":"hi"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, decodeBody(t, rr), "actions")
}

func TestHandleChatPreflightAndMethods(t *testing.T) {
	client := &fakeClient{reply: textReply("x")}
	h := newTestRouter(NewService(client, 1024, nil, nil), 0)

	rr := doChat(t, h, http.MethodOptions, "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
	assertCORS(t, rr)

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rr := doChat(t, h, m, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, m)
		assert.Equal(t, "Method not allowed", decodeBody(t, rr)["error"])
		assertCORS(t, rr)
	}
	assert.Zero(t, client.calls())
}

func TestHandleChatBlankMessage(t *testing.T) {
	client := &fakeClient{reply: textReply("x")}
	h := newTestRouter(NewService(client, 1024, nil, nil), 0)

	for _, body := range []string{`{"message":"   "}`, `{}`, ``, `{"message": 12}`, `{"message": null}`} {
		rr := doChat(t, h, http.MethodPost, body, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, "Message is required", decodeBody(t, rr)["error"], body)
		assertCORS(t, rr)
	}
	assert.Zero(t, client.calls())
}

func TestHandleChatInvalidBody(t *testing.T) {
	h := newTestRouter(NewService(&fakeClient{}, 1024, nil, nil), 0)

	rr := doChat(t, h, http.MethodPost, `{"message":`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleChatBodyTooLarge(t *testing.T) {
	h := newTestRouter(NewService(&fakeClient{}, 1024, nil, nil), 64)

	rr := doChat(t, h, http.MethodPost, `{"message":"`+strings.Repeat("a", 200)+`"}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestHandleChatNotConfigured(t *testing.T) {
	h := newTestRouter(NewService(nil, 1024, nil, nil), 0)

	rr := doChat(t, h, http.MethodPost, `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, map[string]any{"error": "AI service not configured"}, decodeBody(t, rr))
}

func TestHandleChatErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   map[string]any
	}{
		{
			name:   "invalid key",
			err:    &llm.StatusError{StatusCode: http.StatusUnauthorized, Body: "secret upstream body"},
			status: http.StatusUnauthorized,
			want:   map[string]any{"error": "AI service error", "details": "Invalid API key"},
		},
		{
			name:   "overloaded",
			err:    &llm.StatusError{StatusCode: 529},
			status: 529,
			want:   map[string]any{"error": "AI service error", "details": "Failed to get AI response"},
		},
		{
			name:   "invalid response",
			err:    llm.ErrInvalidResponse,
			status: http.StatusInternalServerError,
			want:   map[string]any{"error": "Invalid response from AI service"},
		},
		{
			name:   "transport",
			err:    errors.New("connection reset"),
			status: http.StatusInternalServerError,
			want:   map[string]any{"error": "Internal server error", "message": "connection reset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(NewService(&fakeClient{err: tt.err}, 1024, nil, nil), 0)

			rr := doChat(t, h, http.MethodPost, `{"message":"hi"}`, nil)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.want, decodeBody(t, rr))
			assert.NotContains(t, rr.Body.String(), "secret upstream body")
			assertCORS(t, rr)
		})
	}
}

func TestHandleChatRateLimited(t *testing.T) {
	client := &fakeClient{reply: textReply("ok")}
	h := newTestRouter(NewService(client, 1024, newEnabledLimiter(), nil), 0)
	headers := map[string]string{"X-User-Id": "limited-user"}

	for i := 0; i < 3; i++ {
		rr := doChat(t, h, http.MethodPost, `{"message":"hi"}`, headers)
		require.Equal(t, http.StatusOK, rr.Code)
		rl, ok := decodeBody(t, rr)["rateLimit"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(2-i), rl["remaining"])
	}

	rr := doChat(t, h, http.MethodPost, `{"message":"hi"}`, headers)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	got := decodeBody(t, rr)
	assert.Equal(t, "Rate limit exceeded", got["error"])
	assert.Contains(t, got["message"], "Hourly limit")
	assert.Greater(t, got["retryAfter"], float64(0))
	assert.Equal(t, map[string]any{
		"daily": float64(10), "hourly": float64(3), "concurrent": float64(1), "maxTokens": float64(500),
	}, got["limits"])
	assert.Equal(t, map[string]any{"daily": float64(3), "hourly": float64(3), "monthly": nil}, got["usage"])
	assert.Equal(t, 3, client.calls())

	// A different identity from the body is counted separately.
	rr = doChat(t, h, http.MethodPost, `{"message":"hi","userId":"someone-else"}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleChatProFromHeaderOrBody(t *testing.T) {
	client := &fakeClient{reply: textReply("ok")}
	h := newTestRouter(NewService(client, 4096, newEnabledLimiter(), nil), 0)

	doChat(t, h, http.MethodPost, `{"message":"hi"}`, map[string]string{"X-User-Id": "a", "X-Is-Pro": "true"})
	doChat(t, h, http.MethodPost, `{"message":"hi","userId":"b","isPro":true}`, nil)
	doChat(t, h, http.MethodPost, `{"message":"hi","userId":"c","isPro":"true"}`, nil)
	doChat(t, h, http.MethodPost, `{"message":"hi","userId":"d"}`, map[string]string{"X-Is-Pro": "TRUE"})

	require.Equal(t, 4, client.calls())
	assert.Equal(t, 2000, client.requests[0].MaxTokens)
	assert.Equal(t, 2000, client.requests[1].MaxTokens)
	assert.Equal(t, 500, client.requests[2].MaxTokens, "string isPro is not a pro claim")
	assert.Equal(t, 500, client.requests[3].MaxTokens, "header must be exactly true")
}

func TestHandleChatCancelledRequest(t *testing.T) {
	client := &fakeClient{err: context.Canceled}
	h := newTestRouter(NewService(client, 1024, nil, nil), 0)

	rr := doChat(t, h, http.MethodPost, `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestDecodeRequestKeepsContextAroundBadValues(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/ai-chat", nil)
	req := decodeRequest(r, ChatRequest{
		Message: json.RawMessage(`"tidy up"`),
		Context: json.RawMessage(`{"workspaceCount": 2, "workspaces": [{"id": "ws_research", "tabCount": 5}, {"id": "ws_2", "tabCount": "unknown"}]}`),
	})

	assert.Equal(t, 2, req.Context.WorkspaceCount)
	require.Len(t, req.Context.Workspaces, 2)
	assert.Equal(t, "ws_2", req.Context.Workspaces[1].ID)
	assert.Contains(t, BuildSystemPrompt(req.Context), "ws_research")
}
