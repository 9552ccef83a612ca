package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/metrics"

	"github.com/gorilla/mux"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// LoggerMiddleware logs every request and records it under its route
// template so ids do not explode metric cardinality.
func LoggerMiddleware(log *logger.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Auth runs inside, so the username is only known afterwards.
			holder := &userHolder{}
			next.ServeHTTP(rw, r.WithContext(withUserHolder(r.Context(), holder)))

			duration := time.Since(start)
			route := routeTemplate(r)
			m.RecordHTTPRequest(r.Method, route, rw.statusCode, duration)

			user := holder.username
			if user == "" {
				user = "anonymous"
			}

			kv := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", rw.statusCode,
				"duration", duration,
				"remote", r.RemoteAddr,
				"user", user,
			}
			if rw.statusCode >= 500 {
				log.Error("request", kv...)
			} else {
				log.Info("request", kv...)
			}
		})
	}
}

func routeTemplate(r *http.Request) string {
	if cr := mux.CurrentRoute(r); cr != nil {
		if tpl, err := cr.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type userHolder struct {
	username string
}

const holderKey contextKey = "userHolder"

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, holderKey, h)
}

func recordUser(ctx context.Context, username string) {
	if h, ok := ctx.Value(holderKey).(*userHolder); ok {
		h.username = username
	}
}
