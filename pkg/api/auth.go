package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/services"
	"github.com/jakechorley/helpboard/pkg/core/session"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresAt   string          `json:"expires_at"`
	Session     session.Session `json:"session"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ident, err := s.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id := session.Identity{ID: ident.ID, Email: ident.Email}
	sess, err := s.sessions.SignedIn(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.Name != "" && sess.Ready() {
		profile, err := services.UpdateProfile(r.Context(), s.store, services.ActorFromProfile(sess.Profile), req.Name)
		if err != nil {
			// the account exists; the name can be set later
			s.logger.Warn("Failed to apply display name at sign-up", zap.String("user_id", id.ID), zap.Error(err))
		} else {
			s.sessions.ProfileChanged(profile)
			sess = s.sessions.Get(id.ID)
		}
	}

	writeOK(w, http.StatusCreated, "account created", sess)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	token, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// the token is returned even if the profile fails to load so the
	// client can retry
	sess, err := s.sessions.SignedIn(r.Context(), token.Identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "signed in", signInResponse{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Session:     sess,
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := identityFrom(ctx)

	if token, ok := ctx.Value(tokenKey).(string); ok {
		if _, err := s.auth.SignOut(ctx, token); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	if err := s.sessions.SignedOut(id.ID); err != nil && !errors.Is(err, session.ErrInvalidTransition) {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "signed out", nil)
}
