// Package auth emite e verifica os bearer tokens (JWT HS256) do gatekeeper.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	DefaultIssuer   = "beautycita-rasa"
	DefaultAudience = "beautycita-api"
	DefaultTTL      = 24 * time.Hour

	ClientIDClaim = "client_id"
)

// Claims são as claims extraídas de um token válido.
type Claims struct {
	ClientID  string
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token é um token recém emitido.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
	TTL         time.Duration
}

// TokenService emite e verifica tokens assinados com um segredo compartilhado.
// Não guarda estado: não existe lista de revogação, só a expiração.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

type TokenOption func(*TokenService)

// WithTokenClock troca o relógio (testes).
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(secret, issuer, audience string, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret must not be empty")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if audience == "" {
		audience = DefaultAudience
	}

	s := &TokenService{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue assina um token para clientID válido por ttl (0 usa DefaultTTL).
func (s *TokenService) Issue(clientID string, ttl time.Duration) (Token, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now()
	exp := now.Add(ttl)

	tok, err := jwt.NewBuilder().
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		Subject(clientID).
		JwtID(uuid.NewString()).
		IssuedAt(now).
		Expiration(exp).
		Claim(ClientIDClaim, clientID).
		Build()
	if err != nil {
		return Token{}, fmt.Errorf("auth: build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}

	return Token{AccessToken: string(signed), ExpiresAt: exp, TTL: ttl}, nil
}

// Verify valida assinatura, algoritmo, iss, aud e exp.
// Devolve *TokenError com Kind Expired somente quando a assinatura confere.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, &TokenError{Kind: Missing}
	}

	tok, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, &TokenError{Kind: Expired, Err: err}
		}
		return nil, &TokenError{Kind: Malformed, Err: err}
	}

	raw, ok := tok.Get(ClientIDClaim)
	clientID, _ := raw.(string)
	if !ok || clientID == "" {
		return nil, &TokenError{Kind: Malformed, Err: errors.New("client_id claim missing")}
	}

	return &Claims{
		ClientID:  clientID,
		Subject:   tok.Subject(),
		ID:        tok.JwtID(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}, nil
}
