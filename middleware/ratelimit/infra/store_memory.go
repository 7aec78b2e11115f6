package infra

import (
	"context"
	"sync"
	"time"

	"booking-gatekeeper/middleware/ratelimit/domain"
)

// MemoryStore guarda as janelas deslizantes no próprio processo.
//
// O estado some no restart e não é compartilhado entre instâncias: com várias réplicas o
// limite vira aproximado. Cada identidade tem seu próprio lock, segurado durante toda a
// sequência poda-contagem-verificação-inserção.
type MemoryStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*windowEntry
	cleanupEvery time.Duration
	now          func() time.Time
}

type windowEntry struct {
	mu      sync.Mutex
	stamps  map[domain.WindowName][]time.Time
	expires time.Time
	// removed é marcado pelo janitor; quem pegou o ponteiro antes precisa buscar de novo.
	removed bool
}

var _ domain.WindowStore = (*MemoryStore)(nil)

type MemoryStoreOption func(*MemoryStore)

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

// WithClock troca o relógio usado pelo janitor.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:      make(map[domain.Key]*windowEntry),
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit implementa domain.WindowStore.
func (s *MemoryStore) Admit(_ context.Context, key domain.Key, now time.Time, windows []domain.Window) (domain.Admission, error) {
	for {
		ent := s.entry(key)

		ent.mu.Lock()
		if ent.removed {
			ent.mu.Unlock()
			continue
		}
		adm := ent.admit(now, windows)
		ent.mu.Unlock()
		return adm, nil
	}
}

// Counts implementa domain.WindowStore. Não altera o estado.
func (s *MemoryStore) Counts(_ context.Context, key domain.Key, now time.Time, windows []domain.Window) ([]int, error) {
	counts := make([]int, len(windows))

	s.mu.Lock()
	ent, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return counts, nil
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	for i, w := range windows {
		cutoff := now.Add(-w.Size)
		for _, ts := range ent.stamps[w.Name] {
			if !ts.Before(cutoff) {
				counts[i]++
			}
		}
	}
	return counts, nil
}

// Reset implementa domain.WindowStore.
func (s *MemoryStore) Reset(_ context.Context, key domain.Key, _ []domain.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.mu.Lock()
		ent.removed = true
		ent.mu.Unlock()
		delete(s.entries, key)
	}
	return nil
}

// Len devolve quantas identidades estão em memória.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove identidades cujas janelas já expiraram por completo.
func (s *MemoryStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		ent.mu.Lock()
		if !ent.expires.After(now) {
			ent.removed = true
			delete(s.entries, k)
		}
		ent.mu.Unlock()
	}
}

// StartJanitor inicia uma goroutine que limpa identidades inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context no janitor.
type DoneContext interface {
	Done() <-chan struct{}
}

func (s *MemoryStore) entry(key domain.Key) *windowEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		return ent
	}
	ent := &windowEntry{stamps: make(map[domain.WindowName][]time.Time)}
	s.entries[key] = ent
	return ent
}

// admit roda com ent.mu segurado.
func (e *windowEntry) admit(now time.Time, windows []domain.Window) domain.Admission {
	adm := domain.Admission{Counts: make([]int, len(windows)), Exceeded: -1}

	for i, w := range windows {
		e.stamps[w.Name] = prune(e.stamps[w.Name], now.Add(-w.Size))
		adm.Counts[i] = len(e.stamps[w.Name])
	}

	for i, w := range windows {
		if adm.Counts[i] >= w.Limit {
			adm.Exceeded = i
			return adm
		}
	}

	for _, w := range windows {
		e.stamps[w.Name] = append(e.stamps[w.Name], now)
		if exp := now.Add(w.Size); exp.After(e.expires) {
			e.expires = exp
		}
	}
	adm.Allowed = true
	return adm
}

// prune mantém apenas timestamps dentro de [cutoff, ...].
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, ts := range stamps {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
