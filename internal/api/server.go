// Package api expõe as rotas HTTP do gatekeeper (chi) atrás da cadeia de admissão.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"booking-gatekeeper/internal/forwarder"
	"booking-gatekeeper/internal/metrics"
	"booking-gatekeeper/middleware/apierror"
	"booking-gatekeeper/middleware/auth"
	"booking-gatekeeper/middleware/gatekeeper"

	"github.com/go-chi/chi/v5"
)

// StoreStatus descreve o store de janelas para o /health.
type StoreStatus struct {
	Backend string
	// Ping é nil para o store em memória.
	Ping func(ctx context.Context) error
}

type Server struct {
	Engine      *forwarder.Client
	Tokens      *auth.TokenService
	Credentials auth.ClientCredentials
	TokenTTL    time.Duration
	Store       StoreStatus
	Metrics     *metrics.Metrics
	Logger      *slog.Logger

	// HealthTimeout limita o ping do store no /health. 0 usa forwarder.DefaultHealthTimeout.
	HealthTimeout time.Duration
}

func (s *Server) healthTimeout() time.Duration {
	if s.HealthTimeout > 0 {
		return s.HealthTimeout
	}
	return forwarder.DefaultHealthTimeout
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Router monta as rotas com pipeline aplicado a todas elas.
func (s *Server) Router(p *gatekeeper.Pipeline) http.Handler {
	r := chi.NewRouter()
	if s.Metrics != nil {
		r.Use(s.Metrics.Instrument)
	}
	r.Use(p.Wrap)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierror.Write(w, r, s.logger(), apierror.New(apierror.KindNotFound, "not_found", "route not found"))
	})

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleHealth)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/token", s.handleToken)
		r.Method(http.MethodPost, "/chat/webhook", s.Engine.Webhook())
		r.Get("/chat/conversations/{id}", s.handleConversation)
		r.Method(http.MethodPost, "/model/parse", s.Engine.Proxy(forwarder.ModelParsePath))
	})
	return r
}
