// Package apierror é a fronteira única entre erros dos componentes e a resposta HTTP.
//
// Cada componente devolve seu próprio erro tipado; quem quiser virar resposta implementa
// Coder. Write traduz para status + corpo JSON {"error": {"code", "message", ...}}.
package apierror

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindRateLimit
	KindNotFound
	KindDownstreamUnavailable
	KindDownstreamTimeout
)

// Status devolve o status HTTP do tipo de erro.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindDownstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindDownstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindNotFound:
		return "not_found"
	case KindDownstreamUnavailable:
		return "downstream_unavailable"
	case KindDownstreamTimeout:
		return "downstream_timeout"
	default:
		return "internal"
	}
}

// Error é a forma pública de um erro.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Details é mesclado no objeto "error" do corpo.
	Details map[string]any
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Coder é implementado pelos erros dos componentes.
type Coder interface {
	APIError() *Error
}

// New monta um *Error sem detalhes.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// From resolve err para um *Error. Qualquer coisa desconhecida vira internal_error com
// mensagem genérica.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var c Coder
	if errors.As(err, &c) {
		if ae := c.APIError(); ae != nil {
			return ae
		}
	}
	return &Error{Kind: KindInternal, Code: "internal_error", Message: "internal server error"}
}

// Write escreve err como resposta JSON. Erros internos têm o detalhe apenas no log.
func Write(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ae := From(err)
	if ae.Kind == KindInternal {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}

	body := make(map[string]any, len(ae.Details)+2)
	for k, v := range ae.Details {
		body[k] = v
	}
	body["code"] = ae.Code
	body["message"] = ae.Message

	WriteJSON(w, ae.Kind.Status(), map[string]any{"error": body})
}

// WriteJSON serializa v com o status informado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
