package handler

import (
	"net/http"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/service"
	"blogdraft-server/pkg/response"

	"github.com/gorilla/mux"
)

type EditHandler struct {
	service *service.EditService
	log     *logger.Logger
}

func NewEditHandler(service *service.EditService, log *logger.Logger) *EditHandler {
	return &EditHandler{
		service: service,
		log:     log.With("handler", "EditHandler"),
	}
}

func (h *EditHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req domain.ApplyEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.ApplyEdit(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Created(w, res)
}

func (h *EditHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req domain.PreviewEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.PreviewEdit(r.Context(), &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, res)
}
