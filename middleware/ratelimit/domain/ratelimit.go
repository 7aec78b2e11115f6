package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Key identifica um cliente para fins de cota ("client_<id>" ou "ip_<origem>").
type Key string

const (
	ClientKeyPrefix = "client_"
	IPKeyPrefix     = "ip_"
)

func ClientKey(clientID string) Key { return Key(ClientKeyPrefix + clientID) }

func IPKey(origin string) Key { return Key(IPKeyPrefix + origin) }

// WindowName nomeia uma janela deslizante.
type WindowName string

const (
	Sustained WindowName = "sustained"
	Burst     WindowName = "burst"
)

// Window é uma janela deslizante: no máximo Limit eventos em qualquer intervalo de Size
// terminando em "agora".
type Window struct {
	Name  WindowName
	Size  time.Duration
	Limit int
}

// DefaultWindows devolve as janelas padrão: 100 req/hora e 10 req/minuto.
// A ordem importa: a primeira janela estourada é a reportada.
func DefaultWindows() []Window {
	return []Window{
		{Name: Sustained, Size: time.Hour, Limit: 100},
		{Name: Burst, Size: time.Minute, Limit: 10},
	}
}

// Admission é o resultado bruto de uma tentativa no store.
//
// Counts[i] é a contagem da janela i depois da poda e antes da inserção.
// Exceeded é o índice da primeira janela estourada, ou -1 quando admitido.
type Admission struct {
	Allowed  bool
	Counts   []int
	Exceeded int
}

// WindowStore guarda os timestamps por identidade e janela.
//
// Admit precisa executar poda, contagem, verificação e inserção como UMA operação lógica
// por identidade. Duas chamadas concorrentes para a mesma Key nunca podem observar a mesma
// contagem e ambas serem admitidas.
type WindowStore interface {
	Admit(ctx context.Context, key Key, now time.Time, windows []Window) (Admission, error)
	Counts(ctx context.Context, key Key, now time.Time, windows []Window) ([]int, error)
	Reset(ctx context.Context, key Key, windows []Window) error
}

// Budget é o que sobra para o cliente depois de uma admissão.
type Budget struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded indica que o store falhou e a requisição foi admitida sem contagem (fail-open).
	Degraded bool
}

var (
	// ErrRateLimitExceeded é a sentinela de qualquer janela estourada.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrStoreUnavailable indica que o store de janelas não respondeu.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// RateLimitError descreve qual janela foi estourada e quando ela libera.
type RateLimitError struct {
	Window  WindowName
	Limit   int
	Size    time.Duration
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.Window == Burst {
		return fmt.Sprintf("burst limit exceeded (%d per %s)", e.Limit, e.Size)
	}
	return fmt.Sprintf("rate limit exceeded (%d per %s)", e.Limit, e.Size)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// Code é o código estável usado no corpo da resposta.
func (e *RateLimitError) Code() string {
	if e.Window == Burst {
		return "burst_limit_exceeded"
	}
	return "sustained_limit_exceeded"
}

// RetryAfter é quanto falta até a janela violada liberar, arredondado para cima em segundos.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	d := e.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return (d + time.Second - 1) / time.Second * time.Second
}

// AsRateLimitError extrai o *RateLimitError de err, se houver.
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
