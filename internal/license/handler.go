package license

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"github.com/worktab/worktab-api/internal/api"
	"github.com/worktab/worktab-api/internal/metrics"
	"github.com/worktab/worktab-api/internal/middleware"
)

const maxRequestBodySize = 64 << 10

// ValidateRequest is the body of POST /api/validate-license.
type ValidateRequest struct {
	LicenseKey any `json:"licenseKey"`
}

// Handler serves POST /api/validate-license.
type Handler struct {
	validator *Validator
}

// NewHandler creates a license handler.
func NewHandler(v *Validator) *Handler {
	return &Handler{validator: v}
}

// RegisterRoutes mounts the license endpoint with the extension CORS policy.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.CORS(middleware.ExtensionCORS)).
		HandleFunc("/api/validate-license", api.RequirePost(h.HandleValidate))
}

// HandleValidate handles POST /api/validate-license requests.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key := licenseKeyString(req.LicenseKey)
	if key == "" {
		api.Error(w, http.StatusBadRequest, "License key is required")
		return
	}

	res, err := h.validator.Validate(r.Context(), key)
	if err != nil {
		writeValidateError(w, err)
		return
	}

	if res.Valid {
		metrics.LicenseValidations.WithLabelValues("valid").Inc()
	} else {
		metrics.LicenseValidations.WithLabelValues("invalid").Inc()
	}

	body := map[string]any{
		"valid":   res.Valid,
		"message": res.Message,
	}
	if res.Record {
		body["status"] = res.Status
		body["expiresAt"] = res.ExpiresAt
	}
	api.JSON(w, http.StatusOK, body)
}

// licenseKeyString treats JSON falsy values as missing.
func licenseKeyString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if !val {
			return ""
		}
	case float64:
		if val == 0 {
			return ""
		}
	}
	return cast.ToString(v)
}

func writeValidateError(w http.ResponseWriter, err error) {
	metrics.LicenseValidations.WithLabelValues("error").Inc()

	var se *StatusError
	switch {
	case errors.Is(err, ErrNotConfigured):
		slog.Error("LEMON_SQUEEZY_API_KEY not configured")
		api.Error(w, http.StatusInternalServerError, "Server configuration error")
	case errors.As(err, &se):
		api.JSON(w, se.StatusCode, map[string]any{
			"error": "License validation failed",
			"valid": false,
		})
	default:
		slog.Error("Error validating license", "error", err)
		api.JSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Internal server error",
			"valid": false,
		})
	}
}
