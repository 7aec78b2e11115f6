// Package forwarder fala com o motor de diálogo: proxy do webhook, consulta de conversa e
// health check.
package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"booking-gatekeeper/middleware/apierror"
)

const (
	WebhookPath    = "/webhooks/rest/webhook"
	ModelParsePath = "/model/parse"

	DefaultForwardTimeout = 30 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
)

type Client struct {
	base           *url.URL
	http           *http.Client
	forwardTimeout time.Duration
	healthTimeout  time.Duration
	logger         *slog.Logger
	onError        func(label string)
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

func WithForwardTimeout(d time.Duration) Option { return func(cl *Client) { cl.forwardTimeout = d } }

func WithHealthTimeout(d time.Duration) Option { return func(cl *Client) { cl.healthTimeout = d } }

func WithLogger(l *slog.Logger) Option { return func(cl *Client) { cl.logger = l } }

// WithErrorHook é chamado a cada falha do motor (ex.: contador de métricas).
func WithErrorHook(fn func(label string)) Option { return func(cl *Client) { cl.onError = fn } }

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("forwarder: parse engine url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("forwarder: engine url must be absolute, got %q", baseURL)
	}

	c := &Client{
		base:           u,
		http:           &http.Client{},
		forwardTimeout: DefaultForwardTimeout,
		healthTimeout:  DefaultHealthTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawPath = ""
	return &u
}

func (c *Client) fail(op string, kind error, status int, cause error) *Error {
	e := &Error{Op: op, Kind: kind, Status: status, Err: cause}
	if c.onError != nil {
		c.onError(e.Label())
	}
	return e
}

// classify traduz um erro de transporte.
func (c *Client) classify(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return c.fail(op, ErrTimeout, 0, err)
	}
	return c.fail(op, ErrUnavailable, 0, err)
}

// Health faz GET na raiz do motor com o prazo de health check.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/").String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.classify("health", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return c.fail("health", ErrUnavailable, resp.StatusCode, nil)
	}
	return nil
}

// ConversationSummary é o resumo de um tracker do motor.
type ConversationSummary struct {
	ConversationID  string   `json:"conversation_id"`
	SenderID        string   `json:"sender_id"`
	EventsCount     int      `json:"events_count"`
	LatestEventTime *float64 `json:"latest_event_time"`
	LatestMessage   string   `json:"latest_message"`
	Paused          bool     `json:"paused"`
}

type tracker struct {
	SenderID        string            `json:"sender_id"`
	Events          []json.RawMessage `json:"events"`
	LatestEventTime *float64          `json:"latest_event_time"`
	LatestMessage   struct {
		Text string `json:"text"`
	} `json:"latest_message"`
	Paused bool `json:"paused"`
}

// Conversation busca /conversations/{id}/tracker e devolve só os metadados.
func (c *Client) Conversation(ctx context.Context, id string) (ConversationSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.forwardTimeout)
	defer cancel()

	u := c.endpoint("/conversations/" + id + "/tracker")
	u.RawPath = c.base.Path + "/conversations/" + url.PathEscape(id) + "/tracker"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ConversationSummary{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ConversationSummary{}, c.classify("conversation", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ConversationSummary{}, c.fail("conversation", ErrNotFound, resp.StatusCode, nil)
	case resp.StatusCode >= 500:
		return ConversationSummary{}, c.fail("conversation", ErrUnavailable, resp.StatusCode, nil)
	case resp.StatusCode != http.StatusOK:
		return ConversationSummary{}, fmt.Errorf("conversation: unexpected engine status %d", resp.StatusCode)
	}

	var t tracker
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ConversationSummary{}, c.classify("conversation", err)
		}
		return ConversationSummary{}, fmt.Errorf("conversation: decode tracker: %w", err)
	}

	return ConversationSummary{
		ConversationID:  id,
		SenderID:        t.SenderID,
		EventsCount:     len(t.Events),
		LatestEventTime: t.LatestEventTime,
		LatestMessage:   t.LatestMessage.Text,
		Paused:          t.Paused,
	}, nil
}

// Webhook devolve o reverse proxy para {engine}/webhooks/rest/webhook.
func (c *Client) Webhook() http.Handler { return c.Proxy(WebhookPath) }

// Proxy encaminha a requisição para {engine}{path}.
// Falha de conexão e 5xx viram 503; estouro do prazo vira 504.
func (c *Client) Proxy(path string) http.Handler {
	target := c.endpoint(path)
	op := strings.TrimPrefix(path, "/")

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = target.Path
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
			pr.Out.Header.Del("Authorization")
			pr.SetXForwarded()
		},
		Transport: c.http.Transport,
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode >= 500 {
				return &Error{Op: op, Kind: ErrUnavailable, Status: resp.StatusCode}
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			var fe *Error
			if !errors.As(err, &fe) {
				fe = c.classify(op, err)
			} else if c.onError != nil {
				c.onError(fe.Label())
			}
			c.logger.Warn("dialogue engine request failed", "path", r.URL.Path, "error", err)
			apierror.Write(w, r, c.logger, fe)
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.forwardTimeout)
		defer cancel()
		proxy.ServeHTTP(w, r.WithContext(ctx))
	})
}
