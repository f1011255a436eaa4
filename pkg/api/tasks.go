package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/core/services"
)

type verifyRequest struct {
	Status model.TaskStatus `json:"status"`
}

func (s *Server) handleListOpenTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tasks, err := services.ListOpenTasks(r.Context(), s.store, actorFrom(r.Context()), filter, s.opts.DefaultCenter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", tasks)
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	tasks, err := services.ListUserTasks(r.Context(), s.store, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := services.GetTask(r.Context(), s.store, actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", task)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	input, cleanup, err := s.parseTaskInput(w, r, "image")
	defer cleanup()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := services.CreateTask(r.Context(), s.store, s.images, s.logger, actorFrom(r.Context()), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "task created", task)
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	input, cleanup, err := s.parseTaskInput(w, r, "image")
	defer cleanup()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := services.SubmitTask(r.Context(), s.store, s.images, s.logger, actorFrom(r.Context()), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "task submitted for review", task)
}

func (s *Server) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	task, err := services.ClaimTask(r.Context(), s.store, s.logger, actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "task claimed", task)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		s.writeError(w, r, services.ErrProofRequired)
		return
	}
	cleanup, err := s.parseMultipart(w, r)
	defer cleanup()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	proof, err := formImage(r, "proof")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer closeImage(proof, func() {})()

	task, err := services.CompleteTask(r.Context(), s.store, s.images, s.logger, actorFrom(r.Context()), mux.Vars(r)["id"], proof)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "task completed, awaiting review", task)
}

func (s *Server) handleVerifyTask(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := services.VerifyTask(r.Context(), s.store, s.logger, actorFrom(r.Context()), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "task "+string(task.Status), task)
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	tasks, err := services.ListReviewQueue(r.Context(), s.store, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", tasks)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := services.TaskStats(r.Context(), s.store, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", stats)
}
