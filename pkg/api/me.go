package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jakechorley/helpboard/pkg/core/services"
	"github.com/jakechorley/helpboard/pkg/core/session"
)

type updateMeRequest struct {
	Name string `json:"name"`
}

type roleRequest struct {
	Role string `json:"role"`
}

// handleGetMe returns the caller's session with permissions. A session in
// the error state is returned with 503.
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.SignedIn(r.Context(), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !sess.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, APIResponse{Message: "profile setup failed, please retry", Data: sess})
		return
	}
	writeOK(w, http.StatusOK, "", sess)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	sess, err := s.sessions.Retry(r.Context(), id.ID)
	if errors.Is(err, session.ErrInvalidTransition) {
		// nothing to retry; report the current state
		sess, err = s.sessions.SignedIn(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !sess.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, APIResponse{Message: "profile setup failed, please retry", Data: sess})
		return
	}
	writeOK(w, http.StatusOK, "", sess)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := services.UpdateProfile(r.Context(), s.store, actorFrom(r.Context()), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sessions.ProfileChanged(profile)

	writeOK(w, http.StatusOK, "profile updated", s.sessions.Get(profile.ID))
}

func (s *Server) handleSelectRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := services.SelectRole(r.Context(), s.store, s.logger, actorFrom(r.Context()), req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sessions.ProfileChanged(profile)

	writeOK(w, http.StatusOK, "role updated", s.sessions.Get(profile.ID))
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := services.AssignRole(r.Context(), s.store, s.logger, actorFrom(r.Context()), mux.Vars(r)["id"], req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sessions.ProfileChanged(profile)

	writeOK(w, http.StatusOK, "role assigned", profile)
}
