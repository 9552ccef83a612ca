package handler

import (
	"net/http"

	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/service"
	"blogdraft-server/pkg/response"

	"github.com/gorilla/mux"
)

type VersionHandler struct {
	service *service.VersionService
	log     *logger.Logger
}

func NewVersionHandler(service *service.VersionService, log *logger.Logger) *VersionHandler {
	return &VersionHandler{
		service: service,
		log:     log.With("handler", "VersionHandler"),
	}
}

func (h *VersionHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, history)
}

func (h *VersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, err := h.service.GetVersion(r.Context(), vars["id"], vars["versionId"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, v)
}

func (h *VersionHandler) Undo(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Undo(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, v)
}

func (h *VersionHandler) Restore(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, err := h.service.Restore(r.Context(), vars["id"], vars["versionId"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, v)
}

func (h *VersionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.ClearHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, v)
}
