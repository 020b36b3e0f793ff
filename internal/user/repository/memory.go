package repository

import (
	"context"
	"sync"

	"naija-nutri-hub/backend/internal/store"
	"naija-nutri-hub/backend/internal/user/domain"
)

// MemoryRepository is an in-process Repository used for local runs and tests.
// Records are copied in and out so callers never share memory with the store.
type MemoryRepository struct {
	mu         sync.Mutex
	byID       map[string]*domain.User
	byEmail    map[string]string
	byUsername map[string]string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*domain.User),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUsername[domain.NormalizeUsername(username)]
	if !ok {
		return nil, nil
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) Create(_ context.Context, u *domain.User) error {
	u.Normalize()
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[u.ID]; ok {
		return store.ErrDuplicate
	}
	if _, ok := r.byEmail[u.Email]; ok {
		return store.ErrDuplicate
	}
	if _, ok := r.byUsername[u.Username]; ok {
		return store.ErrDuplicate
	}
	u.Version = 1
	r.byID[u.ID] = u.Clone()
	r.byEmail[u.Email] = u.ID
	r.byUsername[u.Username] = u.ID
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, u *domain.User, expectedVersion int64) error {
	u.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[u.ID]
	if !ok || cur.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	if cur.Email != u.Email {
		if _, taken := r.byEmail[u.Email]; taken {
			return store.ErrDuplicate
		}
		delete(r.byEmail, cur.Email)
		r.byEmail[u.Email] = u.ID
	}
	if cur.Username != u.Username {
		if _, taken := r.byUsername[u.Username]; taken {
			return store.ErrDuplicate
		}
		delete(r.byUsername, cur.Username)
		r.byUsername[u.Username] = u.ID
	}
	u.Version = expectedVersion + 1
	r.byID[u.ID] = u.Clone()
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }
