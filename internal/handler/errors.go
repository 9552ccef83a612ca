package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/service"
	"blogdraft-server/pkg/response"
)

const maxBodyBytes = 4 << 20

// writeError maps a service error onto the HTTP status table.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	if ve, ok := domain.AsValidation(err); ok {
		response.Fail(w, response.Problem{Status: http.StatusBadRequest, Code: "validation_error", Message: ve.Error(), Field: ve.Field})
		return
	}
	if ue, ok := domain.AsUpstream(err); ok {
		status := http.StatusBadGateway
		switch ue.Kind {
		case domain.UpstreamTimeout:
			status = http.StatusGatewayTimeout
		case domain.UpstreamRateLimited:
			status = http.StatusTooManyRequests
		}
		log.Warn("upstream failure", "kind", ue.Kind, "error", err)
		response.Fail(w, response.Problem{Status: status, Code: "upstream_" + string(ue.Kind), Message: "text generation failed: " + string(ue.Kind)})
		return
	}

	switch {
	case domain.IsNotFound(err):
		response.Fail(w, response.Problem{Status: http.StatusNotFound, Code: "not_found", Message: err.Error()})
	case domain.IsInvalidState(err):
		response.Fail(w, response.Problem{Status: http.StatusConflict, Code: "invalid_state", Message: err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(w, response.Problem{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: err.Error()})
	default:
		if _, ok := domain.AsStorage(err); ok {
			log.Error("storage failure", "error", err)
			response.Fail(w, response.Problem{Status: http.StatusServiceUnavailable, Code: "storage_unavailable", Message: "storage is unavailable"})
			return
		}
		log.Error("unhandled error", "error", err)
		response.InternalError(w, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			response.BadRequest(w, "Request body is empty")
		default:
			response.BadRequest(w, "Invalid request body")
		}
		return false
	}
	return true
}
