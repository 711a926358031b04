package health

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// HealthCheckHttpHandler answers probe requests from a Checker: 204 when
// healthy, 503 with the failure text otherwise.
type HealthCheckHttpHandler struct {
	checker Checker
}

func NewHealthCheckHttpHandler(checker Checker) *HealthCheckHttpHandler {
	return &HealthCheckHttpHandler{checker: checker}
}

func (h *HealthCheckHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	if err := h.checker.Check(); err != nil {
		log.WithError(err).Warn("health check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte(err.Error())); err != nil {
			log.WithError(err).Error("could not write health check response")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
