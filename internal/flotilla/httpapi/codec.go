package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("Failed to write response body: %v", err)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Errorf("Failed to write response body: %v", err)
	}
}

// writeError renders err with the status code its type maps to. Internal
// errors are logged with the request id and never leak their message to the
// client.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := flotillaerrors.CodeFromError(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		log.Errorf("Request %s failed: %v", RequestIdFromContext(ctx), err)
		message = "internal server error"
	}
	writeJSON(w, code, errorResponse{Error: message})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &flotillaerrors.ErrInvalidArgument{
			Name:    "body",
			Value:   "",
			Message: err.Error(),
		}
	}
	return nil
}
