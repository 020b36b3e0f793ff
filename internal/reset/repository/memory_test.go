package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"naija-nutri-hub/backend/internal/reset/domain"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newToken(id, hash string) *domain.Token {
	return &domain.Token{
		ID: id, UserID: "u1", Email: "A@x.com", TokenHash: hash,
		CreatedAt: t0, ExpiresAt: t0.Add(30 * time.Minute),
	}
}

func TestMemoryRepository_ConsumeOnce(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	if err := r.Create(ctx, newToken("t1", "h1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.Consume(ctx, "h1", t0.Add(time.Minute))
	if err != nil || got == nil {
		t.Fatalf("first Consume = %v, %v", got, err)
	}
	if !got.IsUsed || !got.UsedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("consumed token = %+v", got)
	}
	if again, _ := r.Consume(ctx, "h1", t0.Add(2*time.Minute)); again != nil {
		t.Error("second Consume must return nil")
	}
}

func TestMemoryRepository_UnconsumeRestoresToken(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	_ = r.Create(ctx, newToken("t1", "h1"))

	got, _ := r.Consume(ctx, "h1", t0.Add(time.Minute))
	if got == nil {
		t.Fatal("Consume returned nil")
	}
	// A mismatched used_at belongs to another consumption and is left alone.
	if err := r.Unconsume(ctx, "t1", t0); err != nil {
		t.Fatalf("Unconsume: %v", err)
	}
	if again, _ := r.Consume(ctx, "h1", t0.Add(2*time.Minute)); again != nil {
		t.Fatal("token usable after mismatched Unconsume")
	}

	if err := r.Unconsume(ctx, "t1", got.UsedAt); err != nil {
		t.Fatalf("Unconsume: %v", err)
	}
	again, _ := r.Consume(ctx, "h1", t0.Add(2*time.Minute))
	if again == nil {
		t.Fatal("token not usable after Unconsume")
	}
}

func TestMemoryRepository_ConsumeRejectsExpiredAndSuperseded(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	_ = r.Create(ctx, newToken("t1", "h1"))
	_ = r.Create(ctx, newToken("t2", "h2"))

	if got, _ := r.Consume(ctx, "h1", t0.Add(31*time.Minute)); got != nil {
		t.Error("expired token consumed")
	}
	n, err := r.SupersedeActive(ctx, "a@X.com", t0)
	if err != nil || n != 2 {
		t.Fatalf("SupersedeActive = %d, %v; want 2", n, err)
	}
	if got, _ := r.Consume(ctx, "h2", t0); got != nil {
		t.Error("superseded token consumed")
	}
}

func TestMemoryRepository_ConcurrentConsume(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	_ = r.Create(ctx, newToken("t1", "h1"))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, _ := r.Consume(ctx, "h1", t0); got != nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("wins = %d, want 1", wins.Load())
	}
}

func TestMemoryRepository_PurgeStaleKeepsConsumed(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	_ = r.Create(ctx, newToken("used", "h1"))
	_ = r.Create(ctx, newToken("expired", "h2"))
	_ = r.Create(ctx, newToken("replaced", "h3"))
	live := newToken("live", "h4")
	live.ExpiresAt = t0.Add(2 * time.Hour)
	_ = r.Create(ctx, live)

	if got, _ := r.Consume(ctx, "h1", t0); got == nil {
		t.Fatal("consume failed")
	}
	_ = r.Supersede(ctx, "replaced", t0)

	n, err := r.PurgeStale(ctx, t0.Add(time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("PurgeStale = %d, %v; want 2", n, err)
	}
	for hash, want := range map[string]bool{"h1": true, "h2": false, "h3": false, "h4": true} {
		got, _ := r.GetByHash(ctx, hash)
		if (got != nil) != want {
			t.Errorf("token %s present = %v, want %v", hash, got != nil, want)
		}
	}
}
