package diagnostics

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/automata-agent/internal/metrics"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/events", s.handleEvents)
	r.Post("/restart", s.handleRestart)

	return r
}
