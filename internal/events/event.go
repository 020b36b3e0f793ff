// Package events publishes account lifecycle events (signup, verification,
// password reset) for downstream consumers. Publication is best-effort: a
// failed emit is logged and never fails the user-facing operation.
package events

import (
	"context"
	"errors"
	"time"
)

// Type names an account lifecycle event.
type Type string

const (
	TypeSignedUp               Type = "account.signed_up"
	TypeOTPIssued              Type = "account.otp_issued"
	TypeVerified               Type = "account.verified"
	TypeLoggedIn               Type = "account.logged_in"
	TypePasswordResetRequested Type = "account.password_reset_requested"
	TypePasswordReset          Type = "account.password_reset"
)

// AccountEvent is the published payload. It never carries codes, tokens,
// hashes or plaintext emails; Email holds the redacted form.
type AccountEvent struct {
	Type       Type              `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	Email      string            `json:"email,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Emitter publishes account events.
type Emitter interface {
	Emit(ctx context.Context, event *AccountEvent) error
}

// Multi fans an event out to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event *AccountEvent) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, *AccountEvent) error { return nil }
