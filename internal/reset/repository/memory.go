package repository

import (
	"context"
	"sync"
	"time"

	"naija-nutri-hub/backend/internal/reset/domain"
	"naija-nutri-hub/backend/internal/store"
	userdomain "naija-nutri-hub/backend/internal/user/domain"
)

// MemoryRepository is an in-process Repository used for local runs and tests.
type MemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.Token
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]*domain.Token)}
}

func (r *MemoryRepository) Create(_ context.Context, t *domain.Token) error {
	t.Email = userdomain.NormalizeEmail(t.Email)
	t.Normalize()
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[t.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range r.tokens {
		if existing.TokenHash == t.TokenHash {
			return store.ErrDuplicate
		}
	}
	c := *t
	r.tokens[t.ID] = &c
	return nil
}

func (r *MemoryRepository) GetByHash(_ context.Context, tokenHash string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) SupersedeActive(_ context.Context, email string, at time.Time) (int64, error) {
	email = userdomain.NormalizeEmail(email)
	at = at.UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tokens {
		if t.Email == email && !t.IsUsed && t.SupersededAt.IsZero() {
			t.SupersededAt = at
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Supersede(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok && !t.IsUsed && t.SupersededAt.IsZero() {
		t.SupersededAt = at.UTC()
	}
	return nil
}

func (r *MemoryRepository) Consume(_ context.Context, tokenHash string, at time.Time) (*domain.Token, error) {
	at = at.UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash && t.Usable(at) {
			t.IsUsed = true
			t.UsedAt = at
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Unconsume(_ context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok && t.IsUsed && t.UsedAt.Equal(usedAt) {
		t.IsUsed = false
		t.UsedAt = time.Time{}
	}
	return nil
}

func (r *MemoryRepository) PurgeStale(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.Stale(cutoff) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}
