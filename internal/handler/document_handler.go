package handler

import (
	"net/http"
	"strconv"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/service"
	"blogdraft-server/pkg/response"

	"github.com/gorilla/mux"
)

type DocumentHandler struct {
	service *service.DocumentService
	log     *logger.Logger
}

func NewDocumentHandler(service *service.DocumentService, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		log:     log.With("handler", "DocumentHandler"),
	}
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	doc, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Created(w, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	page := domain.Page{
		Offset: queryInt(r, "offset"),
		Limit:  queryInt(r, "limit"),
	}

	list, err := h.service.List(r.Context(), page)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, list)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, doc)
}

func (h *DocumentHandler) HTML(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.RenderHTML(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, out)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, map[string]string{"message": "Document deleted successfully", "id": id})
}

func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, docs)
}

func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.Success(w, st)
}

// queryInt returns 0 for a missing or malformed parameter; callers apply
// their own defaults.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
