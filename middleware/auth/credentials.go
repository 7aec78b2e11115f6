package auth

import (
	"crypto/subtle"
	"strings"
)

const DefaultClientID = "beautycita_frontend"

// ClientCredentials confere o client_secret compartilhado do endpoint de emissão.
type ClientCredentials struct {
	Secret          string
	DefaultClientID string
}

// Authenticate devolve o client_id a ser gravado no token.
// A comparação é em tempo constante.
func (c ClientCredentials) Authenticate(clientSecret, clientID string) (string, error) {
	if clientSecret == "" {
		return "", &CredentialsError{Err: ErrMissingSecret}
	}
	if c.Secret == "" || subtle.ConstantTimeCompare([]byte(clientSecret), []byte(c.Secret)) != 1 {
		return "", &CredentialsError{Err: ErrInvalidCredentials}
	}

	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = c.DefaultClientID
	}
	if clientID == "" {
		clientID = DefaultClientID
	}
	return clientID, nil
}
