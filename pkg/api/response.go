package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/clients/geocodeclient"
	"github.com/jakechorley/helpboard/pkg/core/services"
	"github.com/jakechorley/helpboard/pkg/identity"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

const backendErrorMessage = "temporary backend error, please retry"

func writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeOK(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, APIResponse{Success: true, Message: message, Data: data})
}

// writeError maps domain errors to a status code. Anything unrecognised is
// logged and reported as a retryable backend failure.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: verr.Error(), Data: verr.Fields})
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrProofRequired),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, geocodeclient.ErrEmptyQuery),
		errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: err.Error()})
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, APIResponse{Message: err.Error()})
	case errors.Is(err, services.ErrForbidden):
		writeJSON(w, http.StatusForbidden, APIResponse{Message: "you do not have permission to do that"})
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, APIResponse{Message: "not found"})
	case errors.Is(err, services.ErrClaimConflict),
		errors.Is(err, services.ErrNotClaimant),
		errors.Is(err, services.ErrNotAwaitingReview),
		errors.Is(err, identity.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, APIResponse{Message: conflictMessage(err)})
	case errors.Is(err, services.ErrProfileSetup):
		writeJSON(w, http.StatusServiceUnavailable, APIResponse{Message: "profile setup failed, please retry"})
	default:
		s.logger.Error("Request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusBadGateway, APIResponse{Message: backendErrorMessage})
	}
}

func conflictMessage(err error) string {
	for _, target := range []error{
		services.ErrClaimConflict,
		services.ErrNotClaimant,
		services.ErrNotAwaitingReview,
		identity.ErrEmailTaken,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}
