package ratelimit

import (
	"net/http"
	"time"

	"booking-gatekeeper/middleware/apierror"
	"booking-gatekeeper/middleware/ratelimit/application"
	"booking-gatekeeper/middleware/ratelimit/domain"
	"booking-gatekeeper/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
	// Pool permite compartilhar o pool com quem exporta métricas. Nil cria um channel pool de Max.
	Pool domain.SlotPool
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				apierror.Write(w, r, nil, apierror.New(apierror.KindDownstreamUnavailable,
					"server_busy", "too many requests in flight, try again shortly"))
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
