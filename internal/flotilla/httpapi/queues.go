package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
)

func (s *Server) getQueueWaitTimes(w http.ResponseWriter, r *http.Request) {
	waitTimes := s.queue.GetQueueWaitTimes(r.Context())
	if requested := r.URL.Query()["queue"]; len(requested) > 0 {
		filtered := map[string]map[int]float64{}
		for _, queue := range requested {
			if percentiles, ok := waitTimes[queue]; ok {
				filtered[queue] = percentiles
			}
		}
		waitTimes = filtered
	}
	writeJSON(w, http.StatusOK, waitTimes)
}

func (s *Server) getQueueAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.queue.GetQueueAgents(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) peekQueue(w http.ResponseWriter, r *http.Request) {
	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(r.Context(), w, &flotillaerrors.ErrInvalidArgument{
				Name:    "limit",
				Value:   raw,
				Message: "must be an integer",
			})
			return
		}
		limit = parsed
	}
	jobs, err := s.queue.PeekQueue(r.Context(), chi.URLParam(r, "queue"), limit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}
