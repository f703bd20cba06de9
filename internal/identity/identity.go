// Package identity resolves the caller identity used for rate limiting and
// transcript logging.
package identity

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/spf13/cast"

	"github.com/worktab/worktab-api/internal/domain"
)

const (
	// UserIDHeader carries the caller's user id.
	UserIDHeader = "X-User-Id"
	// ProHeader marks a Pro subscriber when truthy.
	ProHeader = "X-Is-Pro"
)

type contextKey int

const identityKey contextKey = iota

// IDs become store keys and log file names.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

func sanitizeUserID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !userIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// FromContext returns the header identity stored by Middleware. Requests
// that never passed through it are anonymous.
func FromContext(ctx context.Context) domain.Identity {
	if v, ok := ctx.Value(identityKey).(domain.Identity); ok {
		return v
	}
	return domain.Anonymous()
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func fromHeaders(r *http.Request) domain.Identity {
	return domain.Identity{
		ID:    sanitizeUserID(r.Header.Get(UserIDHeader)),
		IsPro: r.Header.Get(ProHeader) == "true",
	}
}

// Middleware stores the identity claimed in request headers. An empty ID
// means the header was absent or unusable; handlers may still fill it from
// the body with Resolve.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), fromHeaders(r))))
	})
}

// Resolve merges header identity with body fields. Headers win for the ID;
// pro status holds if either source claims it. The body flag counts only
// when it is the JSON boolean true.
func Resolve(header domain.Identity, bodyUserID, bodyIsPro any) domain.Identity {
	id := header.ID
	if id == "" && bodyUserID != nil {
		id = sanitizeUserID(cast.ToString(bodyUserID))
	}
	if id == "" {
		id = domain.AnonymousID
	}

	isPro := header.IsPro
	if b, ok := bodyIsPro.(bool); ok && b {
		isPro = true
	}

	return domain.Identity{ID: id, IsPro: isPro}
}
