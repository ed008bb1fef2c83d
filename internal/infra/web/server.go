// File: internal/infra/web/server.go
package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"coaching-ai-engine/internal/infra/redis"
	"coaching-ai-engine/internal/usecase"
)

type Server struct {
	orch    usecase.JobOrchestrator
	conv    usecase.ConversationEngine
	limiter *redis.RateLimiter
	apiKey  string
	log     *zerolog.Logger
}

func NewServer(
	orch usecase.JobOrchestrator,
	conv usecase.ConversationEngine,
	limiter *redis.RateLimiter,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		orch:    orch,
		conv:    conv,
		limiter: limiter,
		apiKey:  apiKey,
		log:     logger,
	}
}

// Router builds the full route tree. Health and metrics stay outside the
// auth guard so probes and scrapers need no credentials.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(TraceID(s.log))
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))
	r.Use(Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(BearerAuth(s.apiKey, s.log))
		api.Use(RequireIdentity())

		api.Route("/jobs", func(jobs chi.Router) {
			jobs.With(RateLimit(s.limiter, 30, time.Minute, s.log)).Post("/", s.handleCreateJob)
			jobs.Get("/", s.handleListJobs)
			jobs.Get("/{jobID}", s.handleGetJob)
		})

		api.Route("/sessions", func(sess chi.Router) {
			sess.Post("/", s.handleStartSession)
			sess.Get("/{sessionID}", s.handleGetSession)
			sess.With(RateLimit(s.limiter, 30, time.Minute, s.log)).Post("/{sessionID}/messages", s.handleSendMessage)
			sess.Post("/{sessionID}/pause", s.handlePause)
			sess.Post("/{sessionID}/resume", s.handleResume)
			sess.Post("/{sessionID}/cancel", s.handleCancel)
			sess.Post("/{sessionID}/complete", s.handleComplete)
		})
	})

	return r
}
