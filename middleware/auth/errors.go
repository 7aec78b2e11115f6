package auth

import (
	"errors"

	"booking-gatekeeper/middleware/apierror"
)

var (
	// ErrMissingToken indica requisição sem "Authorization: Bearer ...".
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken cobre assinatura inválida, estrutura quebrada, iss/aud errados ou claims ausentes.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indica token com assinatura válida mas já vencido.
	ErrTokenExpired = errors.New("token expired")

	// ErrMissingSecret é devolvido pelo endpoint de emissão quando client_secret não veio.
	ErrMissingSecret = errors.New("client_secret is required")

	// ErrInvalidCredentials indica client_secret que não confere.
	ErrInvalidCredentials = errors.New("invalid client credentials")
)

type TokenErrorKind int

const (
	Malformed TokenErrorKind = iota
	Expired
	Missing
)

// TokenError é o erro de verificação de um bearer token.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) sentinel() error {
	switch e.Kind {
	case Expired:
		return ErrTokenExpired
	case Missing:
		return ErrMissingToken
	default:
		return ErrInvalidToken
	}
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return e.sentinel().Error()
	}
	return e.sentinel().Error() + ": " + e.Err.Error()
}

func (e *TokenError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

// APIError implementa apierror.Coder. O detalhe da falha não vai para o cliente.
func (e *TokenError) APIError() *apierror.Error {
	switch e.Kind {
	case Expired:
		return apierror.New(apierror.KindAuth, "token_expired", "token has expired")
	case Missing:
		return apierror.New(apierror.KindAuth, "missing_token", "authorization bearer token required")
	default:
		return apierror.New(apierror.KindAuth, "invalid_token", "token is invalid")
	}
}

// CredentialsError é a falha do fluxo de emissão (client_secret ausente ou errado).
type CredentialsError struct {
	Err error
}

func (e *CredentialsError) Error() string { return e.Err.Error() }

func (e *CredentialsError) Unwrap() error { return e.Err }

func (e *CredentialsError) APIError() *apierror.Error {
	if errors.Is(e.Err, ErrMissingSecret) {
		return apierror.New(apierror.KindValidation, "missing_field", "client_secret is required")
	}
	return apierror.New(apierror.KindAuth, "invalid_credentials", "invalid client credentials")
}
