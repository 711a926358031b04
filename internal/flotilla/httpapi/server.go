package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flotillaproject/flotilla/internal/common/auth"
	"github.com/flotillaproject/flotilla/internal/common/health"
	"github.com/flotillaproject/flotilla/internal/flotilla/server"
)

// Server binds the broker's services to their HTTP routes.
type Server struct {
	submit *server.SubmitServer
	agent  *server.AgentServer
	queue  *server.QueueServer
	admin  *server.AdminServer
}

func NewServer(
	submit *server.SubmitServer,
	agent *server.AgentServer,
	queue *server.QueueServer,
	admin *server.AdminServer,
) *Server {
	return &Server{
		submit: submit,
		agent:  agent,
		queue:  queue,
		admin:  admin,
	}
}

// Router assembles the full route tree. The health endpoint stays outside the
// middleware chain so that load balancer probes need no credentials and do not
// flood the access log.
func (s *Server) Router(authServices []auth.AuthService, checker health.Checker) http.Handler {
	router := chi.NewRouter()

	router.Method(http.MethodGet, "/health", health.NewHealthCheckHttpHandler(checker))

	router.Route("/v1", func(r chi.Router) {
		r.Use(RequestId, RequestLogger, Recoverer, Authenticate(authServices))

		r.Route("/job", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/", s.claimJob)
			r.Route("/{jobId}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Delete("/", s.cancelJob)
				r.Put("/action", s.jobAction)
				r.Post("/action", s.jobAction)
				r.Get("/position", s.getQueuePosition)
				r.Get("/attachments", s.getAttachmentsStatus)
				r.Post("/attachments", s.attachmentsReceived)
				r.Get("/events", s.getJobEvents)
			})
		})

		r.Route("/result/{jobId}", func(r chi.Router) {
			r.Post("/", s.reportResult)
			r.Get("/", s.getResult)
			r.Post("/output", s.appendOutput)
			r.Get("/output", s.drainOutput)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Post("/data/{name}", s.agentHeartbeat)
			r.Post("/queues", s.advertiseQueues)
			r.Get("/queues", s.getAdvertisedQueues)
		})

		r.Route("/queues", func(r chi.Router) {
			r.Get("/wait_times", s.getQueueWaitTimes)
			r.Get("/{queue}/agents", s.getQueueAgents)
			r.Get("/{queue}/jobs", s.peekQueue)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/restricted-queues", s.getRestrictedQueues)
			r.Post("/restricted-queues/{queue}", s.restrictQueue)
			r.Delete("/restricted-queues/{queue}", s.unrestrictQueue)
			r.Put("/client-permissions/{clientId}", s.upsertClientPermission)
			r.Get("/client-permissions/{clientId}", s.getClientPermission)
			r.Delete("/client-permissions/{clientId}", s.deleteClientPermission)
			r.Post("/refresh-tokens/{clientId}", s.issueToken)
			r.Delete("/refresh-tokens/{token}", s.revokeToken)
		})
	})

	return router
}
