package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"booking-gatekeeper/middleware/ratelimit/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStore_BurstRejectsEleventh(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	windows := domain.DefaultWindows()

	for i := 0; i < 10; i++ {
		adm, err := s.Admit(ctx, "client_a", t0.Add(time.Duration(i)*time.Second), windows)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !adm.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}

	adm, err := s.Admit(ctx, "client_a", t0.Add(10*time.Second), windows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adm.Allowed {
		t.Fatalf("expected 11th request to be rejected")
	}
	if windows[adm.Exceeded].Name != domain.Burst {
		t.Fatalf("expected burst window, got %q", windows[adm.Exceeded].Name)
	}
}

func TestMemoryStore_RejectionDoesNotCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	windows := domain.DefaultWindows()

	for i := 0; i < 12; i++ {
		_, _ = s.Admit(ctx, "client_a", t0, windows)
	}

	counts, err := s.Counts(ctx, "client_a", t0, windows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[0] != 10 || counts[1] != 10 {
		t.Fatalf("expected counts [10 10], got %v", counts)
	}
}

func TestMemoryStore_OldEntriesArePruned(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	windows := domain.DefaultWindows()

	// 10 requisições entre t=0s e t=59s (aprox. 6.5s de intervalo)
	for i := 0; i < 10; i++ {
		at := t0.Add(time.Duration(i) * 6500 * time.Millisecond)
		if adm, _ := s.Admit(ctx, "client_a", at, windows); !adm.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}

	if adm, _ := s.Admit(ctx, "client_a", t0.Add(59*time.Second), windows); adm.Allowed {
		t.Fatalf("expected rejection inside the burst window")
	}

	// em t=61s a requisição de t=0 já saiu da janela de 60s
	adm, _ := s.Admit(ctx, "client_a", t0.Add(61*time.Second), windows)
	if !adm.Allowed {
		t.Fatalf("expected request at t=61s to be allowed")
	}
}

func TestMemoryStore_WindowBoundaryIsInclusive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	windows := []domain.Window{{Name: domain.Burst, Size: time.Minute, Limit: 1}}

	if adm, _ := s.Admit(ctx, "k", t0, windows); !adm.Allowed {
		t.Fatalf("expected first request allowed")
	}
	// exatamente now-size ainda conta
	if adm, _ := s.Admit(ctx, "k", t0.Add(time.Minute), windows); adm.Allowed {
		t.Fatalf("expected entry at the boundary to still count")
	}
	if adm, _ := s.Admit(ctx, "k", t0.Add(time.Minute+time.Millisecond), windows); !adm.Allowed {
		t.Fatalf("expected request after the boundary to be allowed")
	}
}

func TestMemoryStore_SustainedLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	windows := domain.DefaultWindows()

	// 100 requisições espaçadas de 30s nunca estouram o burst
	for i := 0; i < 100; i++ {
		at := t0.Add(time.Duration(i) * 30 * time.Second)
		if adm, _ := s.Admit(ctx, "client_a", at, windows); !adm.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}

	// 100 * 30s = 50min: todas ainda dentro da hora
	adm, _ := s.Admit(ctx, "client_a", t0.Add(50*time.Minute), windows)
	if adm.Allowed {
		t.Fatalf("expected 101st request to be rejected")
	}
	if windows[adm.Exceeded].Name != domain.Sustained {
		t.Fatalf("expected sustained window, got %q", windows[adm.Exceeded].Name)
	}
}

func TestMemoryStore_IdentitiesAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	windows := domain.DefaultWindows()

	for i := 0; i < 10; i++ {
		_, _ = s.Admit(ctx, "client_a", t0, windows)
	}
	if adm, _ := s.Admit(ctx, "client_b", t0, windows); !adm.Allowed {
		t.Fatalf("expected other identity to be unaffected")
	}
}

func TestMemoryStore_ConcurrentAdmitsNeverOvershoot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	windows := domain.DefaultWindows()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			adm, err := s.Admit(ctx, "client_a", t0, windows)
			if err == nil && adm.Allowed {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Fatalf("expected exactly 10 admitted, got %d", got)
	}
}

func TestMemoryStore_Reset(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	windows := domain.DefaultWindows()

	for i := 0; i < 10; i++ {
		_, _ = s.Admit(ctx, "client_a", t0, windows)
	}
	if err := s.Reset(ctx, "client_a", windows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adm, _ := s.Admit(ctx, "client_a", t0, windows); !adm.Allowed {
		t.Fatalf("expected request after reset to be allowed")
	}
}

func TestMemoryStore_CleanupRemovesExpiredIdentities(t *testing.T) {
	now := t0
	s := NewMemoryStore(WithCleanupEvery(0), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	windows := domain.DefaultWindows()

	_, _ = s.Admit(ctx, "client_a", t0, windows)
	_, _ = s.Admit(ctx, "client_b", t0.Add(30*time.Minute), windows)

	now = t0.Add(time.Hour + time.Second)
	s.Cleanup()

	if got := s.Len(); got != 1 {
		t.Fatalf("expected 1 identity left, got %d", got)
	}
	counts, _ := s.Counts(ctx, "client_b", now, windows)
	if counts[0] != 1 {
		t.Fatalf("expected client_b to keep its entry, got %v", counts)
	}
}
