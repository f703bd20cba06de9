package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/worktab/worktab-api/internal/api"
)

// Recoverer turns a handler panic into the JSON 500 body every endpoint
// uses for unexpected failures.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.Error("Panic while serving request",
				"path", r.URL.Path,
				"request_id", chiMiddleware.GetReqID(r.Context()),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			if r.Header.Get("Connection") == "Upgrade" {
				return
			}
			api.JSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Internal server error",
				"message": fmt.Sprint(rec),
			})
		}()

		next.ServeHTTP(w, r)
	})
}
