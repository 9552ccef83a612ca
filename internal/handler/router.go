package handler

import (
	"net/http"

	"blogdraft-server/internal/config"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/metrics"
	"blogdraft-server/internal/middleware"
	"blogdraft-server/pkg/response"

	"github.com/gorilla/mux"
)

type Handlers struct {
	Auth      *AuthHandler
	Documents *DocumentHandler
	Edits     *EditHandler
	Versions  *VersionHandler
	WebSocket *WebSocketHandler
}

func NewRouter(h Handlers, auth middleware.TokenValidator, cors config.CORSConfig, log *logger.Logger, m *metrics.Metrics) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(log.With("component", "http"), m))
	r.Use(middleware.CORSMiddleware(cors.AllowedOrigins, cors.AllowedMethods, cors.AllowedHeaders))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/login", h.Auth.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", h.Auth.Refresh).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(auth))

	protected.HandleFunc("/documents", h.Documents.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/documents", h.Documents.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/documents/search", h.Documents.Search).Methods("GET", "OPTIONS")
	protected.HandleFunc("/documents/stats", h.Documents.Stats).Methods("GET", "OPTIONS")
	protected.HandleFunc("/documents/{id}", h.Documents.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/documents/{id}", h.Documents.Delete).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/documents/{id}/html", h.Documents.HTML).Methods("GET", "OPTIONS")

	protected.HandleFunc("/documents/{id}/edits", h.Edits.Apply).Methods("POST", "OPTIONS")
	protected.HandleFunc("/edits/preview", h.Edits.Preview).Methods("POST", "OPTIONS")

	protected.HandleFunc("/documents/{id}/versions", h.Versions.History).Methods("GET", "OPTIONS")
	protected.HandleFunc("/documents/{id}/versions", h.Versions.Clear).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/documents/{id}/versions/undo", h.Versions.Undo).Methods("POST", "OPTIONS")
	protected.HandleFunc("/documents/{id}/versions/{versionId}", h.Versions.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/documents/{id}/versions/{versionId}/restore", h.Versions.Restore).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", h.WebSocket.HandleConnection)

	r.Handle("/metrics", m.Handler()).Methods("GET")
	r.HandleFunc("/health", healthHandler).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "route not found")
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "healthy", "service": "blogdraft-server"})
}
