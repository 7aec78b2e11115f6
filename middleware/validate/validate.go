// Package validate confere forma e conteúdo do corpo JSON antes de qualquer outra etapa.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"booking-gatekeeper/middleware/apierror"
)

const (
	DefaultMaxBodyBytes    = 64 << 10
	DefaultMaxMessageChars = 1000

	// MessageField é checado em qualquer rota (tamanho e denylist).
	MessageField = "message"
)

// DefaultDenylist são padrões proibidos em "message" (comparação sem caixa).
var DefaultDenylist = []string{"<script", "javascript:", "data:text/html"}

type Kind int

const (
	UnsupportedContentType Kind = iota + 1
	BodyTooLarge
	MalformedBody
	MissingField
	MessageTooLong
	UnsafeContent
)

func (k Kind) String() string {
	switch k {
	case UnsupportedContentType:
		return "unsupported_content_type"
	case BodyTooLarge:
		return "body_too_large"
	case MalformedBody:
		return "malformed_body"
	case MissingField:
		return "missing_field"
	case MessageTooLong:
		return "message_too_long"
	case UnsafeContent:
		return "unsafe_content"
	default:
		return "invalid_request"
	}
}

type Error struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) APIError() *apierror.Error {
	ae := apierror.New(apierror.KindValidation, e.Kind.String(), e.Message)
	if e.Field != "" {
		ae.Details = map[string]any{"field": e.Field}
	}
	return ae
}

// Field é um campo string exigido por uma rota.
type Field struct {
	Name     string
	NonEmpty bool
}

// Schema lista os campos obrigatórios de uma rota.
type Schema struct {
	Required []Field
}

// Route identifica uma rota para fins de schema ("POST /api/chat/webhook").
func Route(method, path string) string { return method + " " + path }

// DefaultSchemas é o schema do webhook de chat.
func DefaultSchemas() map[string]Schema {
	return map[string]Schema{
		Route(http.MethodPost, "/api/chat/webhook"): {
			Required: []Field{
				{Name: "sender", NonEmpty: true},
				{Name: "message"},
			},
		},
	}
}

type Validator struct {
	MaxBodyBytes    int64
	MaxMessageChars int
	Denylist        []string
	Schemas         map[string]Schema
}

type Option func(*Validator)

func WithMaxBodyBytes(n int64) Option { return func(v *Validator) { v.MaxBodyBytes = n } }

func WithMaxMessageChars(n int) Option { return func(v *Validator) { v.MaxMessageChars = n } }

func WithSchema(method, path string, s Schema) Option {
	return func(v *Validator) { v.Schemas[Route(method, path)] = s }
}

func New(opts ...Option) *Validator {
	v := &Validator{
		MaxBodyBytes:    DefaultMaxBodyBytes,
		MaxMessageChars: DefaultMaxMessageChars,
		Denylist:        DefaultDenylist,
		Schemas:         DefaultSchemas(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return r.ContentLength > 0
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// Validate devolve nil ou *Error. O corpo de r é lido e recolocado para os próximos handlers.
func (v *Validator) Validate(r *http.Request) error {
	if !hasBody(r) {
		return nil
	}
	if !isJSON(r.Header.Get("Content-Type")) {
		return &Error{Kind: UnsupportedContentType, Message: "content type must be application/json"}
	}

	body, err := v.readBody(r)
	if err != nil {
		return err
	}

	var doc map[string]any
	if len(bytes.TrimSpace(body)) == 0 {
		return &Error{Kind: MalformedBody, Message: "request body is empty"}
	}
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		return &Error{Kind: MalformedBody, Message: "request body must be a JSON object"}
	}
	if len(doc) == 0 {
		return &Error{Kind: MalformedBody, Message: "request body must not be an empty object"}
	}

	if schema, ok := v.Schemas[Route(r.Method, r.URL.Path)]; ok {
		for _, f := range schema.Required {
			if err := checkField(doc, f); err != nil {
				return err
			}
		}
	}

	if raw, ok := doc[MessageField]; ok {
		msg, isString := raw.(string)
		if !isString {
			return &Error{Kind: MalformedBody, Field: MessageField, Message: "message must be a string"}
		}
		return v.checkMessage(msg)
	}
	return nil
}

func (v *Validator) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	limit := v.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	if r.ContentLength > limit {
		return nil, &Error{Kind: BodyTooLarge, Message: fmt.Sprintf("request body exceeds %d bytes", limit)}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, &Error{Kind: MalformedBody, Message: "request body could not be read"}
	}
	if int64(len(body)) > limit {
		return nil, &Error{Kind: BodyTooLarge, Message: fmt.Sprintf("request body exceeds %d bytes", limit)}
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	return body, nil
}

func checkField(doc map[string]any, f Field) error {
	raw, ok := doc[f.Name]
	if !ok || raw == nil {
		return &Error{Kind: MissingField, Field: f.Name, Message: "missing required field: " + f.Name}
	}
	s, isString := raw.(string)
	if !isString {
		return &Error{Kind: MalformedBody, Field: f.Name, Message: f.Name + " must be a string"}
	}
	if f.NonEmpty && strings.TrimSpace(s) == "" {
		return &Error{Kind: MissingField, Field: f.Name, Message: "missing required field: " + f.Name}
	}
	return nil
}

func (v *Validator) checkMessage(msg string) error {
	max := v.MaxMessageChars
	if max <= 0 {
		max = DefaultMaxMessageChars
	}
	if utf8.RuneCountInString(msg) > max {
		return &Error{Kind: MessageTooLong, Field: MessageField,
			Message: fmt.Sprintf("message exceeds %d characters", max)}
	}

	lower := strings.ToLower(msg)
	for _, p := range v.Denylist {
		if strings.Contains(lower, strings.ToLower(p)) {
			return &Error{Kind: UnsafeContent, Field: MessageField, Message: "message contains disallowed content"}
		}
	}
	return nil
}

// Middleware responde 400 com o erro de validação ou segue adiante.
func (v *Validator) Middleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := v.Validate(r); err != nil {
				logger.Debug("request rejected by validator", "path", r.URL.Path, "error", err)
				apierror.Write(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
