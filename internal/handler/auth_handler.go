package handler

import (
	"net/http"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/service"
	"blogdraft-server/pkg/response"
)

type AuthHandler struct {
	authService *service.AuthService
	log         *logger.Logger
}

func NewAuthHandler(authService *service.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.With("handler", "AuthHandler"),
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	loginResp, err := h.authService.Login(&req)
	if err != nil {
		h.log.Warn("login failed", "username", req.Username, "remote", r.RemoteAddr)
		writeError(w, h.log, err)
		return
	}

	response.Success(w, loginResp)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokenResp, err := h.authService.RefreshToken(&req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, tokenResp)
}
