package assistant

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/worktab/worktab-api/internal/api"
	"github.com/worktab/worktab-api/internal/domain"
	"github.com/worktab/worktab-api/internal/identity"
	"github.com/worktab/worktab-api/internal/llm"
	"github.com/worktab/worktab-api/internal/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Handler serves POST /api/ai-chat.
type Handler struct {
	svc          *Service
	maxBodyBytes int64
}

// NewHandler creates a chat handler. A non-positive maxBodyBytes uses 1MB.
func NewHandler(svc *Service, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxRequestBodySize
	}
	return &Handler{svc: svc, maxBodyBytes: maxBodyBytes}
}

// RegisterRoutes mounts the chat endpoint with the extension CORS policy.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.CORS(middleware.ExtensionCORS), identity.Middleware).
		HandleFunc("/api/ai-chat", api.RequirePost(h.HandleChat))
}

// HandleChat handles POST /api/ai-chat requests.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var body ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req := decodeRequest(r, body)

	slog.Info("AI chat request",
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"user_id", req.Caller.ID,
		"tier", req.Caller.Tier(),
		"message_length", len(req.Message),
		"history_len", len(req.History))

	result, err := h.svc.RunTurn(r.Context(), req)
	if err != nil {
		writeTurnError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, ChatResponse{
		Response:  result.Reply,
		Actions:   result.Actions,
		Usage:     result.Usage,
		RateLimit: result.RateLimit,
	})
}

// decodeRequest turns the lenient wire body into a domain request. A
// message that is not a string is treated as missing; a malformed context
// or history is ignored.
func decodeRequest(r *http.Request, body ChatRequest) domain.ChatRequest {
	var req domain.ChatRequest

	if len(body.Message) > 0 {
		if err := json.Unmarshal(body.Message, &req.Message); err != nil {
			req.Message = ""
		}
	}

	if len(body.History) > 0 && string(body.History) != "null" {
		var items []any
		if err := json.Unmarshal(body.History, &items); err != nil {
			slog.Warn("Ignoring malformed chat history", "error", err)
		} else {
			req.History = domain.DecodeHistory(items)
		}
	}

	if len(body.Context) > 0 && string(body.Context) != "null" {
		var raw map[string]any
		if err := json.Unmarshal(body.Context, &raw); err != nil {
			slog.Warn("Ignoring malformed workspace context", "error", err)
		} else if wc, err := domain.DecodeWorkspaceContext(raw); err != nil {
			slog.Warn("Ignoring malformed workspace context", "error", err)
		} else {
			req.Context = wc
		}
	}

	req.Caller = identity.Resolve(identity.FromContext(r.Context()), body.UserID, body.IsPro)
	return req
}

func writeTurnError(w http.ResponseWriter, err error) {
	var limited *RateLimitError
	switch {
	case errors.Is(err, ErrEmptyMessage):
		api.Error(w, http.StatusBadRequest, "Message is required")

	case errors.As(err, &limited):
		d := limited.Decision
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
		api.JSON(w, http.StatusTooManyRequests, RateLimitResponse{
			Error:      "Rate limit exceeded",
			Message:    d.Message,
			RetryAfter: d.RetryAfter,
			Limits:     d.Limits,
			Usage:      d.Usage,
		})

	case errors.Is(err, ErrNotConfigured):
		api.Error(w, http.StatusInternalServerError, "AI service not configured")

	case errors.Is(err, llm.ErrInvalidResponse):
		api.Error(w, http.StatusInternalServerError, "Invalid response from AI service")

	default:
		if se, ok := llm.AsStatusError(err); ok {
			details := "Failed to get AI response"
			if se.Unauthorized() {
				details = "Invalid API key"
			}
			api.JSON(w, se.StatusCode, map[string]string{
				"error":   "AI service error",
				"details": details,
			})
			return
		}
		slog.Error("Error in AI chat API", "error", err)
		api.JSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Internal server error",
			"message": err.Error(),
		})
	}
}
