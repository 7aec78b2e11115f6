package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"booking-gatekeeper/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Service concentra a regra de admissão por janelas deslizantes.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas devolve o orçamento restante ou o
// erro da janela estourada. Falha do store é fail-open: a requisição é admitida, o Budget
// volta com Degraded=true e o evento é logado (com throttle).
type Service struct {
	Store   domain.WindowStore
	Windows []domain.Window

	// StoreTimeout limita quanto uma chamada ao store pode segurar a requisição.
	// Estourar o prazo conta como falha do store.
	StoreTimeout time.Duration

	Logger *slog.Logger
	// DegradedLogInterval espaça os avisos de modo degradado. 0 usa 30s.
	DegradedLogInterval time.Duration
	// Now permite relógio fixo em testes.
	Now func() time.Time

	once     sync.Once
	degraded *rate.Sometimes
}

func (s *Service) Admit(ctx context.Context, key domain.Key) (domain.Budget, error) {
	windows := s.windows()
	now := s.now()

	if s.Store == nil {
		return openBudget(windows, now, false), nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	adm, err := s.Store.Admit(storeCtx, key, now, windows)
	cancel()
	if err != nil {
		s.logDegraded(key, err)
		return openBudget(windows, now, true), nil
	}

	if !adm.Allowed {
		w := windows[adm.Exceeded]
		return domain.Budget{}, &domain.RateLimitError{
			Window:  w.Name,
			Limit:   w.Limit,
			Size:    w.Size,
			ResetAt: now.Add(w.Size),
		}
	}

	primary := windows[0]
	remaining := primary.Limit - adm.Counts[0] - 1
	if remaining < 0 {
		remaining = 0
	}
	return domain.Budget{
		Limit:     primary.Limit,
		Remaining: remaining,
		ResetAt:   now.Add(primary.Size),
	}, nil
}

// Usage devolve a contagem atual por janela sem registrar nada.
func (s *Service) Usage(ctx context.Context, key domain.Key) (map[domain.WindowName]int, error) {
	windows := s.windows()
	out := make(map[domain.WindowName]int, len(windows))
	if s.Store == nil {
		return out, nil
	}

	counts, err := s.Store.Counts(ctx, key, s.now(), windows)
	if err != nil {
		return nil, err
	}
	for i, w := range windows {
		out[w.Name] = counts[i]
	}
	return out, nil
}

// Reset zera as janelas de uma identidade.
func (s *Service) Reset(ctx context.Context, key domain.Key) error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Reset(ctx, key, s.windows())
}

// Ceiling é o limite configurado da janela principal (X-RateLimit-Limit).
func (s *Service) Ceiling() int {
	return s.windows()[0].Limit
}

func (s *Service) windows() []domain.Window {
	if len(s.Windows) == 0 {
		return domain.DefaultWindows()
	}
	return s.Windows
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.StoreTimeout)
}

func (s *Service) logDegraded(key domain.Key, err error) {
	s.once.Do(func() {
		interval := s.DegradedLogInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		s.degraded = &rate.Sometimes{Interval: interval}
	})

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s.degraded.Do(func() {
		logger.Warn("rate limit store unavailable, admitting request (fail-open)",
			"key", string(key), "error", err)
	})
}

// openBudget é o orçamento reportado quando não há contagem: janela principal cheia menos esta requisição.
func openBudget(windows []domain.Window, now time.Time, degraded bool) domain.Budget {
	primary := windows[0]
	return domain.Budget{
		Limit:     primary.Limit,
		Remaining: primary.Limit - 1,
		ResetAt:   now.Add(primary.Size),
		Degraded:  degraded,
	}
}
