package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, now *time.Time) *TokenService {
	t.Helper()
	s, err := NewTokenService("test-secret", "", "", WithTokenClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return s
}

func TestNewTokenService_RejectsEmptySecret(t *testing.T) {
	_, err := NewTokenService("", DefaultIssuer, DefaultAudience)
	assert.Error(t, err)
}

func TestTokenService_IssueThenVerify(t *testing.T) {
	now := t0
	s := newTestService(t, &now)

	tok, err := s.Issue("web", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), tok.ExpiresAt)

	now = t0.Add(30 * time.Minute)
	claims, err := s.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "web", claims.ClientID)
	assert.Equal(t, "web", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.ExpiresAt.Equal(t0.Add(time.Hour)))
}

func TestTokenService_UniqueJTI(t *testing.T) {
	now := t0
	s := newTestService(t, &now)

	a, err := s.Issue("web", 0)
	require.NoError(t, err)
	b, err := s.Issue("web", 0)
	require.NoError(t, err)
	assert.NotEqual(t, a.AccessToken, b.AccessToken)
	assert.Equal(t, DefaultTTL, a.TTL)
}

func TestTokenService_Expired(t *testing.T) {
	now := t0
	s := newTestService(t, &now)

	tok, err := s.Issue("web", time.Hour)
	require.NoError(t, err)

	now = t0.Add(time.Hour + time.Minute)
	_, err = s.Verify(tok.AccessToken)
	require.Error(t, err)

	var te *TokenError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, Expired, te.Kind)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_WrongSecretIsMalformed(t *testing.T) {
	now := t0
	s := newTestService(t, &now)
	other, err := NewTokenService("another-secret", "", "", WithTokenClock(func() time.Time { return now }))
	require.NoError(t, err)

	tok, err := other.Issue("web", time.Hour)
	require.NoError(t, err)

	_, err = s.Verify(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_ExpiredWithBadSignatureIsMalformed(t *testing.T) {
	now := t0
	s := newTestService(t, &now)
	other, err := NewTokenService("another-secret", "", "", WithTokenClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	tok, err := other.Issue("web", time.Minute)
	require.NoError(t, err)

	now = t0.Add(time.Hour)
	_, err = s.Verify(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_Garbage(t *testing.T) {
	now := t0
	s := newTestService(t, &now)

	for _, in := range []string{"not-a-token", "a.b.c", strings.Repeat("x", 50)} {
		_, err := s.Verify(in)
		assert.ErrorIsf(t, err, ErrInvalidToken, "input %q", in)
	}
}

func TestTokenService_AudienceMismatch(t *testing.T) {
	now := t0
	s := newTestService(t, &now)
	other, err := NewTokenService("test-secret", DefaultIssuer, "someone-else", WithTokenClock(func() time.Time { return now }))
	require.NoError(t, err)

	tok, err := other.Issue("web", time.Hour)
	require.NoError(t, err)

	_, err = s.Verify(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_MissingClientIDClaim(t *testing.T) {
	now := t0
	s := newTestService(t, &now)

	tok, err := jwt.NewBuilder().
		Issuer(DefaultIssuer).
		Audience([]string{DefaultAudience}).
		IssuedAt(t0).
		Expiration(t0.Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)

	_, err = s.Verify(string(signed))
	assert.ErrorIs(t, err, ErrInvalidToken)
}
