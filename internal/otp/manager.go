// Package otp manages the email verification passcode of an account:
// issuing, resend throttling, and exactly-once verification.
//
// OTP state lives on the user record. Every transition is a compare-and-swap on
// the record version; on conflict the operation re-reads the record and
// evaluates again from scratch, so two concurrent resends cannot both pass the
// throttle and two concurrent verifies cannot both succeed.
//
// Bookkeeping is reserved before the email is sent and no store lock is held
// during delivery. If delivery fails, the reservation is released: the new
// code is cleared (the superseded one is never restored) and the throttle
// counter is put back, so the caller can retry at once.
package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"naija-nutri-hub/backend/internal/logging"
	"naija-nutri-hub/backend/internal/notify"
	"naija-nutri-hub/backend/internal/ratelimit"
	"naija-nutri-hub/backend/internal/security"
	"naija-nutri-hub/backend/internal/store"
	"naija-nutri-hub/backend/internal/user/domain"
)

var (
	// ErrNotFound is returned by Issue and Resend for an unknown email.
	ErrNotFound = errors.New("otp: account not found")
	// ErrIncorrectOTP is returned when there is no active code or the code does not match.
	ErrIncorrectOTP = errors.New("otp: incorrect code")
	// ErrOTPExpired is returned when the active code is past its expiry. The code is cleared.
	ErrOTPExpired = errors.New("otp: code expired")
)

const (
	maxCASRetries  = 5
	releaseTimeout = 5 * time.Second
)

// Policy configures issuance and verification.
type Policy struct {
	Length int
	TTL    time.Duration
	Resend ratelimit.Policy
	// MaxAttempts is the number of wrong submissions after which the active code
	// is cleared. Zero disables the limit.
	MaxAttempts int
}

// DefaultPolicy returns the documented defaults: 6 digits, 10 minute TTL,
// resend at most every 30s and 5 times per hour, 5 wrong attempts per code.
func DefaultPolicy() Policy {
	return Policy{
		Length: security.DefaultOTPLength,
		TTL:    10 * time.Minute,
		Resend: ratelimit.Policy{
			MinInterval:  30 * time.Second,
			Window:       time.Hour,
			MaxPerWindow: 5,
		},
		MaxAttempts: 5,
	}
}

// UserStore is the subset of the user repository the manager needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User, expectedVersion int64) error
}

// Sender delivers a code. *notify.Mailer implements it.
type Sender interface {
	SendOTP(ctx context.Context, to, userName, code string, ttl time.Duration) error
}

// Hasher hashes and verifies codes. *security.Hasher implements it.
type Hasher interface {
	Hash(secret []byte) (string, error)
	Verify(secret []byte, hash string) bool
}

// Status is the outcome of Issue and Resend.
type Status string

const (
	StatusSent            Status = "sent"
	StatusAlreadyVerified Status = "already_verified"
)

// IssueResult reports what Issue or Resend did.
type IssueResult struct {
	Status    Status
	ExpiresAt time.Time
}

// VerifyResult reports a successful verification.
type VerifyResult struct {
	Verified bool
	User     *domain.User
}

// Manager implements the OTP lifecycle.
type Manager struct {
	users    UserStore
	sender   Sender
	hasher   Hasher
	policy   Policy
	log      *slog.Logger
	now      func() time.Time
	generate func(length int) (string, error)
	metrics  *metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithGenerator overrides code generation.
func WithGenerator(gen func(length int) (string, error)) Option {
	return func(m *Manager) { m.generate = gen }
}

// NewManager returns a Manager. Zero policy fields fall back to DefaultPolicy.
func NewManager(users UserStore, sender Sender, hasher Hasher, policy Policy, opts ...Option) *Manager {
	def := DefaultPolicy()
	if policy.Length <= 0 {
		policy.Length = def.Length
	}
	if policy.TTL <= 0 {
		policy.TTL = def.TTL
	}
	if policy.Resend.Window <= 0 {
		policy.Resend.Window = def.Resend.Window
	}
	m := &Manager{
		users:    users,
		sender:   sender,
		hasher:   hasher,
		policy:   policy,
		log:      logging.Discard(),
		now:      func() time.Time { return time.Now().UTC() },
		generate: security.GenerateOTP,
		metrics:  newMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the effective policy.
func (m *Manager) Policy() Policy { return m.policy }

// Issue sends a fresh code without counting toward the resend window. It is
// used right after signup. The previous code, if any, is superseded.
func (m *Manager) Issue(ctx context.Context, email string) (IssueResult, error) {
	ctx, span := tracer.Start(ctx, "otp.Issue")
	defer span.End()
	res, err := m.issue(ctx, email, false)
	m.metrics.recordIssue(ctx, "issue", res, err)
	recordSpan(span, string(res.Status), err)
	return res, err
}

// Resend is Issue subject to the resend throttle. Rejections carry a
// *ratelimit.LimitedError and write nothing.
func (m *Manager) Resend(ctx context.Context, email string) (IssueResult, error) {
	ctx, span := tracer.Start(ctx, "otp.Resend")
	defer span.End()
	res, err := m.issue(ctx, email, true)
	m.metrics.recordIssue(ctx, "resend", res, err)
	recordSpan(span, string(res.Status), err)
	return res, err
}

func (m *Manager) issue(ctx context.Context, email string, counted bool) (IssueResult, error) {
	email = domain.NormalizeEmail(email)
	code, err := m.generate(m.policy.Length)
	if err != nil {
		return IssueResult{}, fmt.Errorf("generate otp: %w", err)
	}
	hash, err := m.hasher.Hash([]byte(code))
	if err != nil {
		return IssueResult{}, fmt.Errorf("hash otp: %w", err)
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		u, err := m.users.GetByEmail(ctx, email)
		if err != nil {
			return IssueResult{}, err
		}
		if u == nil {
			return IssueResult{}, ErrNotFound
		}
		if u.IsVerified {
			return IssueResult{Status: StatusAlreadyVerified}, nil
		}

		now := m.now()
		prevResend := u.OTPResend
		if counted {
			next, err := m.policy.Resend.Allow(u.OTPResend, now)
			if err != nil {
				m.log.InfoContext(ctx, "otp resend throttled", logging.Email(email))
				return IssueResult{}, err
			}
			u.OTPResend = next
		} else {
			u.OTPResend.LastSentAt = now
		}
		expiresAt := now.Add(m.policy.TTL)
		u.OTP = domain.OTPState{Hash: hash, ExpiresAt: expiresAt}
		u.UpdatedAt = now

		if err := m.users.Update(ctx, u, u.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return IssueResult{}, err
		}

		if err := m.sender.SendOTP(ctx, u.Email, u.FullName(), code, m.policy.TTL); err != nil {
			m.log.WarnContext(ctx, "otp delivery failed; releasing reservation",
				logging.Email(email), "resend", counted, "error", err)
			m.release(ctx, u, prevResend)
			return IssueResult{}, deliveryError(err)
		}
		m.log.InfoContext(ctx, "otp issued", logging.Email(email), "resend", counted)
		return IssueResult{Status: StatusSent, ExpiresAt: expiresAt}, nil
	}
	return IssueResult{}, fmt.Errorf("%w: concurrent updates for account", ratelimit.ErrTooManyRequests)
}

// release undoes a reservation written by issue after a failed send. It runs
// detached from the caller's cancellation. Writes that did not issue a code,
// such as a wrong-code attempt, do not stop it: the undelivered code is cleared
// while it is still the active one, and the resend counter is restored while
// it still holds the reservation. A newer issuance stands.
func (m *Manager) release(ctx context.Context, reserved *domain.User, prevResend ratelimit.Counter) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	u := reserved.Clone()
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		clearCode := u.OTP.Hash == reserved.OTP.Hash
		restoreCounter := u.OTPResend.Same(reserved.OTPResend)
		if !clearCode && !restoreCounter {
			m.log.InfoContext(ctx, "otp release skipped; a newer code was issued", logging.Email(reserved.Email))
			return
		}
		if clearCode {
			u.OTP = domain.OTPState{}
		}
		if restoreCounter {
			u.OTPResend = prevResend
		}
		u.UpdatedAt = m.now()
		err := m.users.Update(ctx, u, u.Version)
		if err == nil {
			return
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			m.log.ErrorContext(ctx, "otp release failed", logging.Email(reserved.Email), "error", err)
			return
		}
		cur, err := m.users.GetByEmail(ctx, reserved.Email)
		if err != nil || cur == nil {
			m.log.ErrorContext(ctx, "otp release failed; record not readable", logging.Email(reserved.Email), "error", err)
			return
		}
		u = cur
	}
	m.log.ErrorContext(ctx, "otp release gave up after concurrent updates", logging.Email(reserved.Email))
}

// Verify checks code against the active OTP of email. Expiry is checked before
// correctness. A wrong code counts toward MaxAttempts. Success marks the
// account verified and clears the code, so the same code cannot verify twice.
func (m *Manager) Verify(ctx context.Context, email, code string) (VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "otp.Verify")
	defer span.End()
	res, err := m.verify(ctx, domain.NormalizeEmail(email), strings.TrimSpace(code))
	m.metrics.recordVerify(ctx, err)
	recordSpan(span, verifyOutcome(err), err)
	return res, err
}

func (m *Manager) verify(ctx context.Context, email, code string) (VerifyResult, error) {
	// bcrypt is slow; remember the last comparison across CAS retries.
	var checkedHash string
	var matched bool

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		u, err := m.users.GetByEmail(ctx, email)
		if err != nil {
			return VerifyResult{}, err
		}
		if u == nil || !u.OTP.Active() {
			return VerifyResult{}, ErrIncorrectOTP
		}

		now := m.now()
		if u.OTP.Expired(now) {
			u.OTP = domain.OTPState{}
			u.UpdatedAt = now
			if err := m.users.Update(ctx, u, u.Version); err != nil {
				if errors.Is(err, store.ErrVersionConflict) {
					continue
				}
				return VerifyResult{}, err
			}
			return VerifyResult{}, ErrOTPExpired
		}

		if u.OTP.Hash != checkedHash {
			checkedHash = u.OTP.Hash
			matched = code != "" && m.hasher.Verify([]byte(code), u.OTP.Hash)
		}
		if !matched {
			u.OTP.FailedAttempts++
			if m.policy.MaxAttempts > 0 && u.OTP.FailedAttempts >= m.policy.MaxAttempts {
				u.OTP = domain.OTPState{}
				m.log.InfoContext(ctx, "otp cleared after too many wrong attempts", logging.Email(email))
			}
			u.UpdatedAt = now
			if err := m.users.Update(ctx, u, u.Version); err != nil {
				if errors.Is(err, store.ErrVersionConflict) {
					continue
				}
				return VerifyResult{}, err
			}
			return VerifyResult{}, ErrIncorrectOTP
		}

		u.IsVerified = true
		u.OTP = domain.OTPState{}
		u.UpdatedAt = now
		if err := m.users.Update(ctx, u, u.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return VerifyResult{}, err
		}
		m.log.InfoContext(ctx, "account verified", logging.Email(email))
		return VerifyResult{Verified: true, User: u}, nil
	}
	return VerifyResult{}, fmt.Errorf("%w: concurrent updates for account", ratelimit.ErrTooManyRequests)
}

func deliveryError(err error) error {
	if errors.Is(err, notify.ErrDeliveryFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", notify.ErrDeliveryFailure, err)
}

func verifyOutcome(err error) string {
	switch {
	case err == nil:
		return "verified"
	case errors.Is(err, ErrIncorrectOTP):
		return "incorrect"
	case errors.Is(err, ErrOTPExpired):
		return "expired"
	default:
		return "error"
	}
}
