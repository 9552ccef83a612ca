package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/metrics"
	"blogdraft-server/pkg/jwt"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubAuth struct {
	enabled bool
	secret  string
}

func (s stubAuth) Enabled() bool { return s.enabled }

func (s stubAuth) ValidateToken(token string) (*jwt.Claims, error) {
	claims, err := jwt.ValidateToken(token, s.secret)
	if err != nil {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func whoami(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetUsername(r)))
}

func TestAuthMiddleware(t *testing.T) {
	auth := stubAuth{enabled: true, secret: "mw-secret"}
	valid, _ := jwt.GenerateToken("admin", time.Hour, auth.secret)
	refresh, _ := jwt.GenerateRefreshToken("admin", time.Hour, auth.secret)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK, wantBody: "admin"},
		{name: "lowercase scheme", header: "bearer " + valid, wantStatus: http.StatusOK, wantBody: "admin"},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "refresh token", header: "Bearer " + refresh, wantStatus: http.StatusUnauthorized},
	}

	h := AuthMiddleware(auth)(http.HandlerFunc(whoami))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	h := AuthMiddleware(stubAuth{enabled: false})(http.HandlerFunc(whoami))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestLoggerMiddleware_RecordsRouteTemplate(t *testing.T) {
	m := metrics.New()
	auth := stubAuth{enabled: true, secret: "mw-secret"}
	token, _ := jwt.GenerateToken("admin", time.Hour, auth.secret)

	r := mux.NewRouter()
	r.Use(LoggerMiddleware(logger.Nop(), m))
	r.Use(AuthMiddleware(auth))
	r.HandleFunc("/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	n, err := testutil.GatherAndCount(m.Registry(), "blogdraft_http_requests_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n != 1 {
		t.Errorf("series = %d, want 1 (ids collapsed into the route template)", n)
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		allowed    string
		origin     string
		method     string
		wantOrigin string
		wantCreds  bool
		wantStatus int
	}{
		{name: "listed origin", allowed: "http://ui.local", origin: "http://ui.local", method: http.MethodGet, wantOrigin: "http://ui.local", wantCreds: true, wantStatus: http.StatusOK},
		{name: "unlisted origin", allowed: "http://ui.local", origin: "http://evil.local", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "wildcard", allowed: "*", origin: "http://any.local", method: http.MethodGet, wantOrigin: "*", wantStatus: http.StatusOK},
		{name: "preflight", allowed: "*", origin: "http://any.local", method: http.MethodOptions, wantOrigin: "*", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORSMiddleware(tt.allowed, "GET,POST", "Content-Type,Authorization")(next)
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials") == "true"; got != tt.wantCreds {
				t.Errorf("Allow-Credentials = %v, want %v", got, tt.wantCreds)
			}
			if !strings.Contains(rec.Header().Get("Vary"), "Origin") {
				t.Error("missing Vary: Origin")
			}
		})
	}
}
