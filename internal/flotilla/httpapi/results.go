package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/pkg/api"
)

// resultReport is the agent-side report body: an optional state transition
// plus any phase outcomes gathered since the last report.
type resultReport struct {
	JobState api.JobState                      `json:"job_state,omitempty"`
	Phases   map[api.JobState]*api.PhaseResult `json:"phases,omitempty"`
}

func (s *Server) reportResult(w http.ResponseWriter, r *http.Request) {
	jobId := chi.URLParam(r, "jobId")
	report := &resultReport{}
	if err := decodeJSON(r, report); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	for phase, result := range report.Phases {
		if err := s.agent.ReportPhaseResult(r.Context(), jobId, phase, result); err != nil {
			writeError(r.Context(), w, err)
			return
		}
	}
	if report.JobState != "" {
		if _, err := s.agent.ReportJobState(r.Context(), jobId, report.JobState); err != nil {
			writeError(r.Context(), w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.queue.GetJobResult(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		var notFound *flotillaerrors.ErrNotFound
		if errors.As(err, &notFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) appendOutput(w http.ResponseWriter, r *http.Request) {
	chunk, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(r.Context(), w, &flotillaerrors.ErrInvalidArgument{
			Name:    "body",
			Message: err.Error(),
		})
		return
	}
	if err := s.agent.AppendOutput(r.Context(), chi.URLParam(r, "jobId"), string(chunk)); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) drainOutput(w http.ResponseWriter, r *http.Request) {
	output, err := s.queue.GetJobOutput(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if output == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeText(w, http.StatusOK, output)
}
