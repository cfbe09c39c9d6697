package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fairyhunter13/chronoq/internal/config"
	"github.com/fairyhunter13/chronoq/internal/domain"
	"github.com/fairyhunter13/chronoq/internal/usecase"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// Server aggregates the admin handlers' dependencies.
type Server struct {
	Cfg        config.Config
	Create     usecase.CreateJobService
	Cancel     usecase.CancelJobService
	Reschedule usecase.RescheduleJobService
}

// NewServer constructs the admin API server.
func NewServer(cfg config.Config, create usecase.CreateJobService, cancel usecase.CancelJobService, reschedule usecase.RescheduleJobService) *Server {
	return &Server{Cfg: cfg, Create: create, Cancel: cancel, Reschedule: reschedule}
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// CreateJobHandler handles POST /jobs.
func (s *Server) CreateJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if err := getValidator().Struct(req); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				writeError(w, r, fmt.Errorf("%w: Validation errors: %v", domain.ErrValidation, verrs))
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrValidation, err))
			return
		}

		in := usecase.CreateJobInput{
			Target:  req.Target,
			Type:    req.Type,
			Payload: req.Payload,
		}
		if req.Time != nil {
			t := req.Time.Time
			in.Time = &t
		}
		id, err := s.Create.Create(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, createJobResponse{ID: id.String(), Message: "Job created successfully"})
	}
}

// DeleteJobHandler handles DELETE /jobs/{id}.
func (s *Server) DeleteJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDFromPath(w, r)
		if !ok {
			return
		}
		if err := s.Cancel.Cancel(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// UpdateJobTimeHandler handles PATCH /jobs/{id}/time.
func (s *Server) UpdateJobTimeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDFromPath(w, r)
		if !ok {
			return
		}
		var req updateJobTimeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: time is required", domain.ErrValidation))
			return
		}
		if err := s.Reschedule.Reschedule(r.Context(), id, req.Time.Time); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func jobIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid job id: %s", raw))
		return uuid.Nil, false
	}
	return id, true
}
