package forwarder

import (
	"errors"
	"fmt"

	"booking-gatekeeper/middleware/apierror"
)

var (
	// ErrUnavailable cobre conexão recusada e respostas 5xx do motor.
	ErrUnavailable = errors.New("dialogue engine unavailable")
	// ErrTimeout indica que o motor não respondeu dentro do prazo.
	ErrTimeout = errors.New("dialogue engine timeout")
	// ErrNotFound é o 404 do motor (conversa inexistente).
	ErrNotFound = errors.New("conversation not found")
)

// Error é uma falha ao falar com o motor de diálogo.
type Error struct {
	Op     string
	Kind   error
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Label é o nome curto usado em métricas e logs.
func (e *Error) Label() string {
	switch {
	case errors.Is(e.Kind, ErrTimeout):
		return "timeout"
	case errors.Is(e.Kind, ErrNotFound):
		return "not_found"
	default:
		return "unavailable"
	}
}

func (e *Error) APIError() *apierror.Error {
	switch {
	case errors.Is(e.Kind, ErrTimeout):
		return apierror.New(apierror.KindDownstreamTimeout, "engine_timeout", "dialogue engine did not respond in time")
	case errors.Is(e.Kind, ErrNotFound):
		return apierror.New(apierror.KindNotFound, "conversation_not_found", "conversation not found")
	default:
		return apierror.New(apierror.KindDownstreamUnavailable, "engine_unavailable", "dialogue engine is unavailable")
	}
}
