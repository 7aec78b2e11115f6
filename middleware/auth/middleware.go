package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"booking-gatekeeper/middleware/apierror"
)

type contextKey string

const verificationKey contextKey = "gatekeeper_token_verification"

// Verification guarda o resultado de verificar o bearer da requisição, para que a etapa
// de autorização não verifique de novo.
type Verification struct {
	Claims *Claims
	Err    error
}

func WithVerification(ctx context.Context, v Verification) context.Context {
	return context.WithValue(ctx, verificationKey, v)
}

func VerificationFromContext(ctx context.Context) (Verification, bool) {
	v, ok := ctx.Value(verificationKey).(Verification)
	return v, ok
}

// ClaimsFromContext devolve as claims de um token válido, ou nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	if v, ok := VerificationFromContext(ctx); ok && v.Err == nil {
		return v.Claims
	}
	return nil
}

// BearerToken extrai o token de "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// VerifyRequest verifica o bearer de r.
func (s *TokenService) VerifyRequest(r *http.Request) Verification {
	tok, ok := BearerToken(r)
	if !ok {
		return Verification{Err: &TokenError{Kind: Missing}}
	}
	claims, err := s.Verify(tok)
	return Verification{Claims: claims, Err: err}
}

// Require rejeita com 401 requisições sem token válido. Reaproveita a verificação já
// feita por etapas anteriores quando presente no contexto. Sem tokens, rejeita tudo.
func Require(tokens *TokenService, logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, ok := VerificationFromContext(r.Context())
			if !ok {
				if tokens == nil {
					v = Verification{Err: &TokenError{Kind: Missing}}
				} else {
					v = tokens.VerifyRequest(r)
				}
				r = r.WithContext(WithVerification(r.Context(), v))
			}
			if v.Err != nil {
				logger.Debug("request rejected by auth", "path", r.URL.Path, "error", v.Err)
				apierror.Write(w, r, logger, v.Err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
