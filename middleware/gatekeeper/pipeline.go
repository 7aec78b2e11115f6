package gatekeeper

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"booking-gatekeeper/middleware/auth"
	"booking-gatekeeper/middleware/identity"
	"booking-gatekeeper/middleware/ratelimit"
	"booking-gatekeeper/middleware/ratelimit/domain"
	"booking-gatekeeper/middleware/validate"

	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

var (
	DefaultExemptPaths       = []string{"/health", "/status", "/metrics"}
	DefaultProtectedPrefixes = []string{"/api/chat/webhook", "/api/chat/conversations/", "/api/model"}
)

// securityHeaders vão em toda resposta, inclusive nas rotas isentas.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
}

type Config struct {
	Validator *validate.Validator
	Identity  identity.Resolver
	// Limiter.KeyFn é sobrescrito pela identidade resolvida.
	Limiter     ratelimit.Options
	Tokens      *auth.TokenService
	Concurrency ratelimit.ConcurrencyOptions

	ExemptPaths       []string
	ProtectedPrefixes []string

	Logger *slog.Logger
}

type Pipeline struct {
	exempt    map[string]struct{}
	protected []string

	validate    func(http.Handler) http.Handler
	identify    func(http.Handler) http.Handler
	limit       func(http.Handler) http.Handler
	require     func(http.Handler) http.Handler
	concurrency func(http.Handler) http.Handler

	ceiling string
	logger  *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Validator == nil {
		cfg.Validator = validate.New()
	}
	if cfg.ExemptPaths == nil {
		cfg.ExemptPaths = DefaultExemptPaths
	}
	if cfg.ProtectedPrefixes == nil {
		cfg.ProtectedPrefixes = DefaultProtectedPrefixes
	}
	if cfg.Identity.Tokens == nil {
		cfg.Identity.Tokens = cfg.Tokens
	}

	limiter := cfg.Limiter
	limiter.KeyFn = cfg.Identity.KeyFunc()
	if limiter.Logger == nil {
		limiter.Logger = cfg.Logger
	}

	p := &Pipeline{
		exempt:      make(map[string]struct{}, len(cfg.ExemptPaths)),
		protected:   cfg.ProtectedPrefixes,
		validate:    cfg.Validator.Middleware(cfg.Logger),
		identify:    cfg.Identity.Middleware,
		limit:       ratelimit.Middleware(limiter),
		concurrency: ratelimit.ConcurrencyMiddleware(cfg.Concurrency),
		logger:      cfg.Logger,
	}
	for _, path := range cfg.ExemptPaths {
		p.exempt[path] = struct{}{}
	}
	p.require = auth.Require(cfg.Tokens, cfg.Logger)

	p.ceiling = strconv.Itoa(domain.DefaultWindows()[0].Limit)
	if limiter.Service != nil {
		p.ceiling = strconv.Itoa(limiter.Service.Ceiling())
	}
	return p
}

func (p *Pipeline) IsExempt(path string) bool {
	_, ok := p.exempt[path]
	return ok
}

func (p *Pipeline) IsProtected(path string) bool {
	for _, prefix := range p.protected {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Wrap devolve next protegido pela cadeia.
func (p *Pipeline) Wrap(next http.Handler) http.Handler {
	protected := p.require(next)
	guarded := p.concurrency(p.validate(p.identify(p.limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.IsProtected(r.URL.Path) {
			protected.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})))))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}

		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		h.Set(HeaderRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		if p.IsExempt(r.URL.Path) {
			next.ServeHTTP(sw, r)
		} else {
			h.Set(ratelimit.HeaderLimit, p.ceiling)
			guarded.ServeHTTP(sw, r)
		}

		p.logger.Debug("request handled",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}

type requestIDKey struct{}

// RequestID devolve o id da requisição corrente.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush mantém streaming do reverse proxy funcionando.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
