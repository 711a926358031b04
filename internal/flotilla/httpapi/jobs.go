package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/pkg/api"
)

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	spec := &api.JobSpec{}
	if err := decodeJSON(r, spec); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	job, err := s.submit.SubmitJob(r.Context(), spec)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": job.Id})
}

func (s *Server) claimJob(w http.ResponseWriter, r *http.Request) {
	queues := r.URL.Query()["queue"]
	job, err := s.agent.ClaimJob(r.Context(), queues)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.GetJobInfo(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	result, err := s.submit.CancelJob(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": string(result)})
}

func (s *Server) jobAction(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if request.Action != "cancel" {
		writeError(r.Context(), w, &flotillaerrors.ErrInvalidArgument{
			Name:    "action",
			Value:   request.Action,
			Message: "only \"cancel\" is supported",
		})
		return
	}
	s.cancelJob(w, r)
}

func (s *Server) getQueuePosition(w http.ResponseWriter, r *http.Request) {
	position, err := s.queue.GetQueuePosition(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

func (s *Server) getAttachmentsStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.GetJobInfo(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		AttachmentsStatus api.AttachmentsStatus `json:"attachments_status,omitempty"`
	}{job.AttachmentsStatus})
}

func (s *Server) attachmentsReceived(w http.ResponseWriter, r *http.Request) {
	if err := s.submit.AttachmentsReceived(r.Context(), chi.URLParam(r, "jobId")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getJobEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.queue.GetJobEvents(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
