package repository

import (
	"context"
	"time"

	"naija-nutri-hub/backend/internal/reset/domain"
)

// Repository defines persistence for password reset tokens.
type Repository interface {
	Create(ctx context.Context, t *domain.Token) error
	// GetByHash returns the token with the given hash, or nil if none exists.
	GetByHash(ctx context.Context, tokenHash string) (*domain.Token, error)
	// SupersedeActive marks every unused, not yet superseded token for email as
	// superseded at at. It returns the number of tokens affected.
	SupersedeActive(ctx context.Context, email string, at time.Time) (int64, error)
	// Supersede marks a single unused token as superseded.
	Supersede(ctx context.Context, id string, at time.Time) error
	// Consume atomically flips a usable token (matching hash, unused, not
	// superseded, not expired at at) to used and returns it. It returns nil when
	// no usable token matched, so concurrent callers see exactly one success.
	Consume(ctx context.Context, tokenHash string, at time.Time) (*domain.Token, error)
	// Unconsume reverts a Consume whose follow-up write failed. It only
	// touches the token if it is still marked used at usedAt.
	Unconsume(ctx context.Context, id string, usedAt time.Time) error
	// PurgeStale deletes unused tokens that were superseded or expired before
	// cutoff. Consumed tokens are kept.
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}
