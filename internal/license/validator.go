// Package license validates Lemon Squeezy license keys.
package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the public Lemon Squeezy API endpoint.
const DefaultBaseURL = "https://api.lemonsqueezy.com"

const maxResponseSize = 1 << 20

// ErrNotConfigured is returned when no vendor API key is set.
var ErrNotConfigured = errors.New("license API key not configured")

// StatusError is returned when the vendor answered with a non-success
// status.
type StatusError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("license API returned status %d", e.StatusCode)
}

// Result is the normalized validation outcome. Record is true when the
// vendor returned a license record; Status and ExpiresAt are only
// meaningful then.
type Result struct {
	Valid     bool
	Message   string
	Record    bool
	Status    string
	ExpiresAt *string
}

// Config holds validator configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Validator calls POST /v1/licenses/validate.
type Validator struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// NewValidator creates a validator. A nil httpClient gets one with
// cfg.Timeout (default 15s).
func NewValidator(cfg Config, httpClient *http.Client) *Validator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Validator{cfg: cfg, httpClient: httpClient, now: time.Now}
}

// Configured reports whether an API key is set.
func (v *Validator) Configured() bool {
	return v.cfg.APIKey != ""
}

// Validate checks licenseKey with the vendor.
func (v *Validator) Validate(ctx context.Context, licenseKey string) (*Result, error) {
	if !v.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(map[string]string{"license_key": licenseKey})
	if err != nil {
		return nil, fmt.Errorf("marshal validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.BaseURL+"/v1/licenses/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.api+json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call license API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read license API response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("Lemon Squeezy API error", "status", resp.StatusCode, "body", string(data))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("license API returned invalid JSON")
	}
	return v.interpret(data), nil
}

// interpret normalizes either a direct {valid} answer or a license record
// under data.attributes.
func (v *Validator) interpret(data []byte) *Result {
	if valid := gjson.GetBytes(data, "valid"); valid.Type == gjson.True || valid.Type == gjson.False {
		if valid.Bool() {
			return &Result{Valid: true, Message: "License is valid"}
		}
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = "License is invalid or expired"
		}
		return &Result{Valid: false, Message: msg}
	}

	attrs := gjson.GetBytes(data, "data.attributes")
	if !attrs.IsObject() {
		return &Result{Valid: false, Message: "License validation failed - unexpected response format"}
	}

	status := attrs.Get("status").String()
	res := &Result{Record: true, Status: status}

	expired := false
	if exp := attrs.Get("expires_at"); exp.Exists() && exp.Type != gjson.Null {
		raw := exp.String()
		res.ExpiresAt = &raw
		if t, ok := parseTime(raw); ok {
			expired = t.Before(v.now())
		}
	}

	res.Valid = status == "active" && !expired
	switch {
	case res.Valid:
		res.Message = "License is valid"
	case expired:
		res.Message = "License is " + status + " and expired"
	default:
		res.Message = "License is " + status
	}
	return res
}

// parseTime accepts the timestamp layouts the vendor has been seen to use.
// Unparseable values count as not expired.
func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
