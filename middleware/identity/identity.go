// Package identity decide qual Key de rate limit uma requisição consome.
//
// Token válido vira client_<client_id>; qualquer outra coisa (sem token, token vencido ou
// inválido) vira ip_<origem>. O resolver nunca rejeita: quem rejeita é a etapa de auth.
package identity

import (
	"context"
	"net/http"

	"booking-gatekeeper/middleware/auth"
	"booking-gatekeeper/middleware/ratelimit"
	"booking-gatekeeper/middleware/ratelimit/domain"
)

type contextKey struct{}

type Resolver struct {
	Tokens *auth.TokenService
	// Origin extrai o endereço de origem. Nil usa ratelimit.DefaultKeyFunc("", false).
	Origin ratelimit.KeyFunc
}

func (res Resolver) origin() ratelimit.KeyFunc {
	if res.Origin != nil {
		return res.Origin
	}
	return ratelimit.DefaultKeyFunc("", false)
}

// Resolve devolve a identidade e o resultado da verificação do bearer.
func (res Resolver) Resolve(r *http.Request) (domain.Key, auth.Verification) {
	var v auth.Verification
	if res.Tokens != nil {
		v = res.Tokens.VerifyRequest(r)
		if v.Err == nil && v.Claims != nil {
			return domain.ClientKey(v.Claims.ClientID), v
		}
	} else {
		v = auth.Verification{Err: &auth.TokenError{Kind: auth.Missing}}
	}
	return domain.IPKey(res.origin()(r)), v
}

// Middleware grava a identidade e a verificação no contexto da requisição.
func (res Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, v := res.Resolve(r)
		ctx := context.WithValue(r.Context(), contextKey{}, key)
		ctx = auth.WithVerification(ctx, v)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext devolve a identidade gravada por Middleware.
func FromContext(ctx context.Context) (domain.Key, bool) {
	k, ok := ctx.Value(contextKey{}).(domain.Key)
	return k, ok
}

// KeyFunc adapta a identidade do contexto para o ratelimit.Middleware. Sem identidade no
// contexto, resolve na hora.
func (res Resolver) KeyFunc() ratelimit.KeyFunc {
	return func(r *http.Request) string {
		if k, ok := FromContext(r.Context()); ok {
			return string(k)
		}
		k, _ := res.Resolve(r)
		return string(k)
	}
}
