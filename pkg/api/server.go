// Package api serves the task board over JSON/HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/clients/geocodeclient"
	"github.com/jakechorley/helpboard/pkg/core/geo"
	"github.com/jakechorley/helpboard/pkg/core/services"
	"github.com/jakechorley/helpboard/pkg/core/session"
	"github.com/jakechorley/helpboard/pkg/db"
	"github.com/jakechorley/helpboard/pkg/identity"
)

// formOverhead is allowed on top of the image limit for the other form fields
const formOverhead = 1 << 20

// Authenticator issues and checks bearer tokens
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (*db.Identity, error)
	SignIn(ctx context.Context, email, password string) (*identity.Token, error)
	Authenticate(ctx context.Context, token string) (session.Identity, error)
	SignOut(ctx context.Context, token string) (session.Identity, error)
}

// Geocoder resolves free-text places
type Geocoder interface {
	Forward(ctx context.Context, query string) ([]geocodeclient.Place, error)
}

// Options are the HTTP-facing settings
type Options struct {
	AllowedOrigins []string
	// DevBypass trusts X-User-Sub / X-User-Email headers instead of a token
	DevBypass     bool
	MapboxToken   string
	DefaultCenter geo.Point
	MaxImageBytes int64
}

// Deps are the collaborators the server needs. Geocoder may be nil.
type Deps struct {
	Store    db.Database
	Auth     Authenticator
	Sessions *session.Manager
	Images   *services.Images
	Geocoder Geocoder
	Logger   *zap.Logger
	Options  Options
}

type Server struct {
	store    db.Database
	auth     Authenticator
	sessions *session.Manager
	images   *services.Images
	geocoder Geocoder
	logger   *zap.Logger
	opts     Options
}

func NewServer(deps Deps) *Server {
	return &Server{
		store:    deps.Store,
		auth:     deps.Auth,
		sessions: deps.Sessions,
		images:   deps.Images,
		geocoder: deps.Geocoder,
		logger:   deps.Logger,
		opts:     deps.Options,
	}
}

// Handler builds the routed handler with the middleware chain applied
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, APIResponse{Message: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Message: "method not allowed"})
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/signup", s.handleSignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	api.Handle("/auth/signout", s.identify(http.HandlerFunc(s.handleSignOut))).Methods(http.MethodPost)

	// identity only: these must work while the profile is still failing
	api.Handle("/me", s.identify(http.HandlerFunc(s.handleGetMe))).Methods(http.MethodGet)
	api.Handle("/me/retry", s.identify(http.HandlerFunc(s.handleRetry))).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.identify, s.requireSession)

	authed.HandleFunc("/me", s.handleUpdateMe).Methods(http.MethodPatch)
	authed.HandleFunc("/me/role", s.handleSelectRole).Methods(http.MethodPost)
	authed.HandleFunc("/users/{id}/role", s.handleAssignRole).Methods(http.MethodPut)

	authed.HandleFunc("/tasks", s.handleListOpenTasks).Methods(http.MethodGet)
	authed.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	authed.HandleFunc("/tasks/mine", s.handleListMine).Methods(http.MethodGet)
	authed.HandleFunc("/tasks/submit", s.handleSubmitTask).Methods(http.MethodPost)
	authed.HandleFunc("/tasks/{id}", s.handleGetTask).Methods(http.MethodGet)
	authed.HandleFunc("/tasks/{id}/claim", s.handleClaimTask).Methods(http.MethodPost)
	authed.HandleFunc("/tasks/{id}/complete", s.handleCompleteTask).Methods(http.MethodPost)
	authed.HandleFunc("/tasks/{id}/verify", s.handleVerifyTask).Methods(http.MethodPost)

	authed.HandleFunc("/admin/queue", s.handleReviewQueue).Methods(http.MethodGet)
	authed.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	authed.HandleFunc("/map/tasks", s.handleMapTasks).Methods(http.MethodGet)
	authed.HandleFunc("/map/heatmap", s.handleHeatmap).Methods(http.MethodGet)
	authed.HandleFunc("/map/token", s.handleMapToken).Methods(http.MethodGet)
	authed.HandleFunc("/geocode", s.handleGeocode).Methods(http.MethodGet)
	authed.HandleFunc("/badges", s.handleBadges).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.opts.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID", "X-User-Sub", "X-User-Email"}),
		handlers.ExposedHeaders([]string{"X-Request-ID"}),
	)

	// request id -> logging -> recovery -> CORS -> routes
	return s.requestID(s.logRequests(handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
	)(cors(r))))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "helpboard-api",
	})
}
