package application

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"booking-gatekeeper/middleware/ratelimit/domain"
)

type fakeStore struct {
	adm   domain.Admission
	err   error
	calls int
	ctxOK bool
}

func (s *fakeStore) Admit(ctx context.Context, _ domain.Key, _ time.Time, _ []domain.Window) (domain.Admission, error) {
	s.calls++
	_, s.ctxOK = ctx.Deadline()
	return s.adm, s.err
}

func (s *fakeStore) Counts(context.Context, domain.Key, time.Time, []domain.Window) ([]int, error) {
	return s.adm.Counts, s.err
}

func (s *fakeStore) Reset(context.Context, domain.Key, []domain.Window) error { return s.err }

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return t0 }

func TestService_Admit_AllowsWhenNoStore(t *testing.T) {
	svc := &Service{Now: fixedNow}
	b, err := svc.Admit(context.Background(), "ip_1.2.3.4")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if b.Limit != 100 || b.Remaining != 99 {
		t.Fatalf("expected default budget 99/100, got %+v", b)
	}
	if b.Degraded {
		t.Fatalf("expected non degraded budget without store")
	}
}

func TestService_Admit_RemainingFromSustainedCount(t *testing.T) {
	store := &fakeStore{adm: domain.Admission{Allowed: true, Counts: []int{41, 3}, Exceeded: -1}}
	svc := &Service{Store: store, Now: fixedNow}

	b, err := svc.Admit(context.Background(), "client_a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if b.Remaining != 58 {
		t.Fatalf("expected remaining=100-41-1=58, got %d", b.Remaining)
	}
	if !b.ResetAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("expected reset at now+1h, got %s", b.ResetAt)
	}
}

func TestService_Admit_SustainedExceeded(t *testing.T) {
	store := &fakeStore{adm: domain.Admission{Allowed: false, Counts: []int{100, 2}, Exceeded: 0}}
	svc := &Service{Store: store, Now: fixedNow}

	_, err := svc.Admit(context.Background(), "client_a")
	rle, ok := domain.AsRateLimitError(err)
	if !ok {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.Window != domain.Sustained || !rle.ResetAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("unexpected error %+v", rle)
	}
	if !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("expected error to wrap ErrRateLimitExceeded")
	}
}

func TestService_Admit_BurstExceeded(t *testing.T) {
	store := &fakeStore{adm: domain.Admission{Allowed: false, Counts: []int{20, 10}, Exceeded: 1}}
	svc := &Service{Store: store, Now: fixedNow}

	_, err := svc.Admit(context.Background(), "client_a")
	rle, ok := domain.AsRateLimitError(err)
	if !ok {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.Window != domain.Burst || rle.RetryAfter(t0) != time.Minute {
		t.Fatalf("unexpected error %+v", rle)
	}
}

func TestService_Admit_FailsOpenAndLogs(t *testing.T) {
	var buf bytes.Buffer
	store := &fakeStore{err: domain.ErrStoreUnavailable}
	svc := &Service{
		Store:        store,
		Now:          fixedNow,
		StoreTimeout: time.Second,
		Logger:       slog.New(slog.NewTextHandler(&buf, nil)),
	}

	for i := 0; i < 3; i++ {
		b, err := svc.Admit(context.Background(), "ip_9.9.9.9")
		if err != nil {
			t.Fatalf("expected fail-open, got %v", err)
		}
		if !b.Degraded || b.Limit != 100 {
			t.Fatalf("expected degraded budget, got %+v", b)
		}
	}
	if !store.ctxOK {
		t.Fatalf("expected store call to carry a deadline")
	}
	if n := strings.Count(buf.String(), "fail-open"); n != 1 {
		t.Fatalf("expected degraded warning to be throttled to 1 line, got %d", n)
	}
}

func TestService_Usage(t *testing.T) {
	store := &fakeStore{adm: domain.Admission{Counts: []int{7, 2}}}
	svc := &Service{Store: store, Now: fixedNow}

	usage, err := svc.Usage(context.Background(), "client_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage[domain.Sustained] != 7 || usage[domain.Burst] != 2 {
		t.Fatalf("unexpected usage %v", usage)
	}
}
