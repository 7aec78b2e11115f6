package domain

import (
	"context"
	"time"
)

// Outcome é o desfecho de uma passagem pelo rate limit.
type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeDegraded Outcome = "degraded"
)

// StatsEvent representa uma decisão do rate limit.
//
// Method/Path são strings genéricas. Cuidado com cardinalidade ao persistir Key/Path.
type StatsEvent struct {
	Key     Key
	Outcome Outcome
	// Window vem preenchido quando Outcome == OutcomeDenied.
	Window WindowName

	Method string
	Path   string

	At time.Time
}

// StatsStore persiste estatísticas das decisões.
//
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
