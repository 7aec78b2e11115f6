package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"booking-gatekeeper/middleware/apierror"
	"booking-gatekeeper/middleware/auth"
	"booking-gatekeeper/middleware/gatekeeper"

	"github.com/go-chi/chi/v5"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type healthResponse struct {
	Status           string            `json:"status"`
	Timestamp        string            `json:"timestamp"`
	DependencyStatus map[string]string `json:"dependency_status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DependencyStatus: map[string]string{
			"dialogue_engine":  statusHealthy,
			"rate_limit_store": s.storeStatus(r),
		},
	}

	code := http.StatusOK
	if err := s.Engine.Health(r.Context()); err != nil {
		s.logger().Warn("dialogue engine health check failed", "error", err)
		resp.Status = statusUnhealthy
		resp.DependencyStatus["dialogue_engine"] = statusUnhealthy
		code = http.StatusInternalServerError
	}
	apierror.WriteJSON(w, code, resp)
}

// storeStatus não afeta o status geral: o limiter é fail-open.
func (s *Server) storeStatus(r *http.Request) string {
	if s.Store.Ping == nil {
		if s.Store.Backend == "" {
			return "memory"
		}
		return s.Store.Backend
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.healthTimeout())
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		s.logger().Warn("rate limit store health check failed", "backend", s.Store.Backend, "error", err)
		return statusUnhealthy
	}
	return statusHealthy
}

type tokenRequest struct {
	ClientSecret string `json:"client_secret"`
	ClientID     string `json:"client_id"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.Write(w, r, s.logger(), apierror.New(apierror.KindValidation, "malformed_body", "request body must be a JSON object"))
		return
	}

	clientID, err := s.Credentials.Authenticate(req.ClientSecret, req.ClientID)
	if err != nil {
		s.logger().Info("token request rejected", "request_id", gatekeeper.RequestID(r.Context()), "error", err)
		apierror.Write(w, r, s.logger(), err)
		return
	}

	tok, err := s.Tokens.Issue(clientID, s.TokenTTL)
	if err != nil {
		apierror.Write(w, r, s.logger(), err)
		return
	}

	s.logger().Info("token issued",
		"request_id", gatekeeper.RequestID(r.Context()),
		"client_id", clientID,
		"expires_at", tok.ExpiresAt,
	)
	apierror.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(tok.TTL / time.Second),
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sum, err := s.Engine.Conversation(r.Context(), id)
	if err != nil {
		if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
			s.logger().Info("conversation lookup failed",
				"request_id", gatekeeper.RequestID(r.Context()),
				"client_id", claims.ClientID,
				"conversation_id", id,
				"error", err,
			)
		}
		apierror.Write(w, r, s.logger(), err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, sum)
}
