package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittofiles/internal/logger"
)

// HeaderUserID carries the caller's owner id.
const HeaderUserID = "X-User-Id"

type ctxKey int

const ownerKey ctxKey = iota

// ownerFrom returns the owner id set by requireOwner.
func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

// requireOwner rejects requests without an X-User-Id header.
func (a *Adapter) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if owner == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing "+HeaderUserID+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

// rateLimit throttles requests per owner. Must run after requireOwner.
func (a *Adapter) rateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow(ownerFrom(r.Context())) {
			a.metrics.RecordRateLimited()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument records request metrics labelled by route pattern, and logs
// each request at debug level.
func (a *Adapter) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		a.metrics.RecordRequestStart()
		defer a.metrics.RecordRequestEnd()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		duration := time.Since(start)
		a.metrics.RecordRequest(route, r.Method, status, duration)
		logger.Debug("HTTP %s %s -> %d (%s) request_id=%s",
			r.Method, r.URL.Path, status, duration, middleware.GetReqID(r.Context()))
	})
}
