package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coded struct{ kind Kind }

func (c coded) Error() string { return "coded" }

func (c coded) APIError() *Error { return New(c.kind, "coded_error", "coded message") }

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:            http.StatusBadRequest,
		KindAuth:                  http.StatusUnauthorized,
		KindRateLimit:             http.StatusTooManyRequests,
		KindNotFound:              http.StatusNotFound,
		KindDownstreamUnavailable: http.StatusServiceUnavailable,
		KindDownstreamTimeout:     http.StatusGatewayTimeout,
		KindInternal:              http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equalf(t, status, kind.Status(), "kind %s", kind)
	}
}

func TestFrom_UnwrapsCoder(t *testing.T) {
	err := fmt.Errorf("handler: %w", coded{kind: KindNotFound})

	ae := From(err)
	assert.Equal(t, KindNotFound, ae.Kind)
	assert.Equal(t, "coded_error", ae.Code)
}

func TestFrom_UnknownIsInternal(t *testing.T) {
	ae := From(errors.New("db exploded"))
	assert.Equal(t, KindInternal, ae.Kind)
	assert.NotContains(t, ae.Message, "db exploded")
}

func TestWrite_BodyShape(t *testing.T) {
	err := &Error{
		Kind:    KindRateLimit,
		Code:    "burst_limit_exceeded",
		Message: "slow down",
		Details: map[string]any{"retry_after": 60},
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	Write(w, r, nil, err)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body struct {
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "burst_limit_exceeded", body.Error["code"])
	assert.Equal(t, "slow down", body.Error["message"])
	assert.Equal(t, float64(60), body.Error["retry_after"])
}
