package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"booking-gatekeeper/middleware/apierror"
	"booking-gatekeeper/middleware/ratelimit/application"
	"booking-gatekeeper/middleware/ratelimit/domain"
	"booking-gatekeeper/middleware/ratelimit/infra"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// DefaultStatsTimeout limita o registro de estatísticas quando nem Options.StatsTimeout
// nem Service.StoreTimeout foram definidos.
const DefaultStatsTimeout = 250 * time.Millisecond

type KeyFunc func(r *http.Request) string

type Options struct {
	// Service sem Store recebe um MemoryStore (sem janitor) e um aviso no log.
	Service *application.Service
	Stats   domain.StatsStore
	// StatsTimeout limita Stats.Record na requisição. 0 usa Service.StoreTimeout.
	StatsTimeout time.Duration

	// KeyFn devolve a identidade já prefixada ("client_x" / "ip_x").
	// Sem KeyFn, usa ip_<origem> via DefaultKeyFunc.
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultKeyFunc devolve a origem da requisição.
//
// keyHeader, quando definido, é valor escolhido pelo chamador: quem controla o header
// troca de identidade à vontade e escapa das janelas. Só configure atrás de um proxy
// que sobrescreve o header, como em trustXFF.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente de origem)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware aplica as janelas deslizantes do Service.
//
// X-RateLimit-Limit sai sempre; Remaining/Reset assim que há orçamento (inclusive em
// fail-open). Headers vão antes do próximo handler, então também valem para 401 e afins.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Service == nil {
		opts.Service = &application.Service{}
	}
	if opts.Service.Store == nil {
		opts.Logger.Warn("no rate limit window store configured, using in-process memory")
		opts.Service.Store = infra.NewMemoryStore()
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = opts.Service.StoreTimeout
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = DefaultStatsTimeout
	}
	if opts.KeyFn == nil {
		origin := DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
		opts.KeyFn = func(r *http.Request) string { return string(domain.IPKey(origin(r))) }
	}
	if opts.Now == nil {
		opts.Now = opts.Service.Now
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	svc := opts.Service

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))
			h := w.Header()
			h.Set(HeaderLimit, formatInt(svc.Ceiling()))

			budget, err := svc.Admit(r.Context(), key)
			if err != nil {
				rle, ok := domain.AsRateLimitError(err)
				if !ok {
					apierror.Write(w, r, opts.Logger, err)
					return
				}
				record(r.Context(), opts, key, domain.OutcomeDenied, rle.Window, r)
				reject(w, r, opts, rle)
				return
			}

			h.Set(HeaderRemaining, formatInt(budget.Remaining))
			h.Set(HeaderReset, formatInt64(budget.ResetAt.Unix()))

			outcome := domain.OutcomeAllowed
			if budget.Degraded {
				outcome = domain.OutcomeDegraded
			}
			record(r.Context(), opts, key, outcome, "", r)

			next.ServeHTTP(w, r)
		})
	}
}

// reject responde 429. Retry-After vai em segundos até a janela estourada reabrir;
// o instante absoluto segue em X-RateLimit-Reset.
func reject(w http.ResponseWriter, r *http.Request, opts Options, rle *domain.RateLimitError) {
	retry := rle.RetryAfter(opts.Now())
	seconds := int(retry / time.Second)

	h := w.Header()
	h.Set(HeaderRemaining, "0")
	h.Set(HeaderReset, formatInt64(rle.ResetAt.Unix()))
	h.Set(HeaderRetryAfter, formatInt(seconds))

	apierror.Write(w, r, opts.Logger, &apierror.Error{
		Kind:    apierror.KindRateLimit,
		Code:    rle.Code(),
		Message: rle.Error(),
		Details: map[string]any{
			"window":      string(rle.Window),
			"limit":       rle.Limit,
			"retry_after": seconds,
		},
	})
}

// record é best-effort e limitado por StatsTimeout: erro ou lentidão de stats nunca
// derruba nem segura a requisição.
func record(ctx context.Context, opts Options, key domain.Key, outcome domain.Outcome, window domain.WindowName, r *http.Request) {
	if opts.Stats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opts.StatsTimeout)
	defer cancel()

	err := opts.Stats.Record(ctx, domain.StatsEvent{
		Key:     key,
		Outcome: outcome,
		Window:  window,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      opts.Now(),
	})
	if err != nil {
		opts.Logger.Debug("rate limit stats not recorded", "error", err)
	}
}
