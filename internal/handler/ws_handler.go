package handler

import (
	"net/http"
	"strings"

	"blogdraft-server/internal/config"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/middleware"
	"blogdraft-server/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	auth     middleware.TokenValidator
	upgrader ws.Upgrader
	log      *logger.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, auth middleware.TokenValidator, cfg config.WebSocketConfig, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		auth:    auth,
		upgrader: ws.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log.With("handler", "WebSocketHandler"),
	}
}

// HandleConnection authenticates with ?token= (browsers cannot set headers
// on websocket requests) or a bearer header.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	username := "anonymous"
	if h.auth.Enabled() {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			http.Error(w, "missing authorization token", http.StatusUnauthorized)
			return
		}

		claims, err := h.auth.ValidateToken(token)
		if err != nil {
			h.log.Warn("websocket token rejected", "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		username = claims.Username
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), username, conn, h.manager)
	if !h.manager.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
