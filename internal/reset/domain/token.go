package domain

import (
	"errors"
	"time"
)

// Token is a password reset token record. Only the SHA-256 of the opaque token
// is stored; the plaintext exists solely in the emailed link.
type Token struct {
	ID           string
	UserID       string
	Email        string
	TokenHash    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	IsUsed       bool
	UsedAt       time.Time
	SupersededAt time.Time
}

// Usable reports whether the token can still be consumed at now.
func (t *Token) Usable(now time.Time) bool {
	return !t.IsUsed && t.SupersededAt.IsZero() && !now.After(t.ExpiresAt)
}

// Stale reports whether the token is an unused leftover that may be deleted:
// superseded, or expired before cutoff. Consumed tokens are never stale.
func (t *Token) Stale(cutoff time.Time) bool {
	if t.IsUsed {
		return false
	}
	return !t.SupersededAt.IsZero() || t.ExpiresAt.Before(cutoff)
}

// Validate validates the token for persistence.
func (t *Token) Validate() error {
	if t.ID == "" {
		return errors.New("id is required")
	}
	if t.UserID == "" {
		return errors.New("user id is required")
	}
	if t.TokenHash == "" {
		return errors.New("token hash is required")
	}
	if t.ExpiresAt.IsZero() {
		return errors.New("expires_at is required")
	}
	return nil
}

// Normalize converts every timestamp to UTC.
func (t *Token) Normalize() {
	t.CreatedAt = utc(t.CreatedAt)
	t.ExpiresAt = utc(t.ExpiresAt)
	t.UsedAt = utc(t.UsedAt)
	t.SupersededAt = utc(t.SupersededAt)
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
