package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/internal/metrics"
)

// AccountHeader carries the caller's account id, set by the upstream
// session layer
const AccountHeader = "X-Account-ID"

type ctxKey int

const accountKey ctxKey = iota

// requestLogger logs every request and counts it by route pattern
func requestLogger(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HttpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()

			log.Debug("request completed",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(started).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// requireAccount rejects requests without an account header
func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(AccountHeader)
		if id == "" {
			render.Render(w, r, Error("missing "+AccountHeader+" header", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, id)))
	})
}

// accountID returns the id set by requireAccount
func accountID(r *http.Request) string {
	id, _ := r.Context().Value(accountKey).(string)
	return id
}
