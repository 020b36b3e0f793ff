package repository

import (
	"context"

	"naija-nutri-hub/backend/internal/user/domain"
)

// Repository defines persistence for user accounts.
//
// Lookups return (nil, nil) when no record matches; an error is returned only
// for store failures, wrapped around store.ErrStoreUnavailable. Implementations
// normalize emails, usernames and timestamps on every write and read.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Create inserts u with Version 1. A taken email or username yields store.ErrDuplicate.
	Create(ctx context.Context, u *domain.User) error
	// Update replaces the stored record only if its version still equals
	// expectedVersion, then sets u.Version to expectedVersion+1. A mismatch or a
	// missing record yields store.ErrVersionConflict.
	Update(ctx context.Context, u *domain.User, expectedVersion int64) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
