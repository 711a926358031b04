package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flotillaproject/flotilla/pkg/api"
)

func (s *Server) getRestrictedQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.admin.GetRestrictedQueues(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, queues)
}

func (s *Server) restrictQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.RestrictQueue(r.Context(), chi.URLParam(r, "queue")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) unrestrictQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.UnrestrictQueue(r.Context(), chi.URLParam(r, "queue")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) upsertClientPermission(w http.ResponseWriter, r *http.Request) {
	clientPermission := &api.ClientPermission{}
	if err := decodeJSON(r, clientPermission); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	clientPermission.ClientId = chi.URLParam(r, "clientId")
	if err := s.admin.UpsertClientPermission(r.Context(), clientPermission); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getClientPermission(w http.ResponseWriter, r *http.Request) {
	clientPermission, err := s.admin.GetClientPermission(r.Context(), chi.URLParam(r, "clientId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, clientPermission)
}

func (s *Server) deleteClientPermission(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteClientPermission(r.Context(), chi.URLParam(r, "clientId")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.admin.IssueToken(r.Context(), chi.URLParam(r, "clientId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) revokeToken(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.RevokeToken(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
