package domain

import (
	"errors"
	"strings"
	"time"

	"naija-nutri-hub/backend/internal/ratelimit"
)

// User is the account record. OTP and reset-throttle bookkeeping live inline on
// the record so that every state transition is a single-document update.
type User struct {
	ID           string
	Email        string
	Username     string
	FirstName    string
	LastName     string
	PasswordHash string
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	OTP OTPState
	// OTPResend.LastSentAt is stamped by every issuance, including the signup
	// code, which does not count toward the resend window.
	OTPResend     ratelimit.Counter
	ResetThrottle ratelimit.Counter

	// Version is bumped by every successful update; updates are conditional on it.
	Version int64
}

// OTPState is the currently issued one-time passcode. A zero Hash means no active OTP.
type OTPState struct {
	Hash           string
	ExpiresAt      time.Time
	FailedAttempts int
}

// Active reports whether an OTP is outstanding (it may still be expired).
func (o OTPState) Active() bool { return o.Hash != "" }

// Expired reports whether the OTP is past its expiry at now.
func (o OTPState) Expired(now time.Time) bool { return now.After(o.ExpiresAt) }

// FullName joins first and last name for email greetings, falling back to the username.
func (u *User) FullName() string {
	n := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if n == "" {
		return u.Username
	}
	return n
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// Normalize lower-cases identifiers and converts every timestamp to UTC.
// Repositories call it on every write and on every read.
func (u *User) Normalize() {
	u.Email = NormalizeEmail(u.Email)
	u.Username = NormalizeUsername(u.Username)
	u.CreatedAt = UTC(u.CreatedAt)
	u.UpdatedAt = UTC(u.UpdatedAt)
	u.OTP.ExpiresAt = UTC(u.OTP.ExpiresAt)
	u.OTPResend = u.OTPResend.UTC()
	u.ResetThrottle = u.ResetThrottle.UTC()
}

// Clone returns a copy safe to mutate independently of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// UTC converts t to UTC, leaving the zero time untouched.
func UTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
