package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flotillaproject/flotilla/pkg/api"
)

func (s *Server) agentHeartbeat(w http.ResponseWriter, r *http.Request) {
	data := &api.AgentData{}
	if err := decodeJSON(r, data); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	// The path is authoritative for the agent name.
	data.Name = chi.URLParam(r, "name")
	if err := s.agent.Heartbeat(r.Context(), data); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) advertiseQueues(w http.ResponseWriter, r *http.Request) {
	queues := map[string]string{}
	if err := decodeJSON(r, &queues); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := s.agent.AdvertiseQueues(r.Context(), queues); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getAdvertisedQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.queue.GetAdvertisedQueues(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, queues)
}
