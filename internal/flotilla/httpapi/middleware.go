package httpapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/internal/common/auth"
	"github.com/flotillaproject/flotilla/internal/common/util"
)

type contextKey string

const requestIdKey contextKey = "requestId"

// RequestId tags every request with a fresh ULID, echoed back in the
// X-Request-Id header and available to downstream log lines.
func RequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := util.NewULID()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIdKey, id)))
	})
}

// RequestIdFromContext returns the id assigned by RequestId, or the empty
// string outside a request.
func RequestIdFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger writes one access log line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		log.WithFields(log.Fields{
			"requestId": RequestIdFromContext(r.Context()),
			"status":    recorder.status,
			"duration":  time.Since(start),
		}).Infof("%s %s", r.Method, r.URL.Path)
	})
}

// Recoverer converts handler panics into logged 500 responses.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorf("Request %s panicked: %v\n%s", RequestIdFromContext(r.Context()), rec, debug.Stack())
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Authenticate resolves the request's principal through the configured auth
// service chain and stores it on the context. Requests no service can
// authenticate are rejected.
func Authenticate(services []auth.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := auth.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"), services)
			if err != nil {
				writeError(r.Context(), w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}
