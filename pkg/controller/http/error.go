package http

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.From(r.Context())

	switch {
	case goerr.HasTag(err, errs.TagNotFound):
		logger.Warn("Not Found", "error", err)
		writeError(w, http.StatusNotFound, err.Error())

	case goerr.HasTag(err, errs.TagValidation):
		logger.Warn("Bad Request", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())

	case goerr.HasTag(err, errs.TagInvalidState):
		logger.Warn("Conflict", "error", err)
		writeError(w, http.StatusConflict, err.Error())

	case goerr.HasTag(err, errs.TagExternal):
		logger.Error("External Service Error", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())

	case goerr.HasTag(err, errs.TagTimeout):
		logger.Error("Gateway Timeout", "error", err)
		writeError(w, http.StatusGatewayTimeout, err.Error())

	default:
		errs.Handle(r.Context(), err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
