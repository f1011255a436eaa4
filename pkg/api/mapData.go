package api

import (
	"net/http"

	"github.com/jakechorley/helpboard/pkg/core/geo"
	"github.com/jakechorley/helpboard/pkg/core/services"
)

type mapTokenResponse struct {
	Token         string    `json:"token"`
	DefaultCenter geo.Point `json:"default_center"`
}

func (s *Server) handleMapTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tasks, err := services.MapTasks(r.Context(), s.store, actorFrom(r.Context()), filter, s.opts.DefaultCenter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", tasks)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	points, err := services.Heatmap(r.Context(), s.store, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", points)
}

func (s *Server) handleMapToken(w http.ResponseWriter, r *http.Request) {
	if s.opts.MapboxToken == "" {
		writeJSON(w, http.StatusServiceUnavailable, APIResponse{Message: "map is not configured"})
		return
	}
	writeOK(w, http.StatusOK, "", mapTokenResponse{Token: s.opts.MapboxToken, DefaultCenter: s.opts.DefaultCenter})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if s.geocoder == nil {
		writeJSON(w, http.StatusServiceUnavailable, APIResponse{Message: "geocoding is not configured"})
		return
	}

	places, err := s.geocoder.Forward(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", places)
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	filter, err := services.ParseBadgeFilter(r.URL.Query().Get("filter"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	progress, err := services.BadgeProgress(r.Context(), s.store, actorFrom(r.Context()).ID, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", progress)
}
