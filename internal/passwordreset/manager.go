// Package passwordreset runs credential recovery with single-use reset tokens.
//
// RequestReset answers identically whether or not the account exists. A token
// is consumed by one conditional update, so it can change the password at most
// once. The per-account request throttle is independent of the OTP resend
// window and is stored on the user record.
package passwordreset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"naija-nutri-hub/backend/internal/logging"
	"naija-nutri-hub/backend/internal/ratelimit"
	resetdomain "naija-nutri-hub/backend/internal/reset/domain"
	"naija-nutri-hub/backend/internal/security"
	"naija-nutri-hub/backend/internal/store"
	"naija-nutri-hub/backend/internal/user/domain"
)

// GenericMessage is the only response RequestReset ever gives callers.
const GenericMessage = "If an account exists for this email, a password reset link has been sent."

var (
	// ErrInvalidOrExpiredToken covers unknown, used, superseded and expired tokens alike.
	ErrInvalidOrExpiredToken = errors.New("passwordreset: invalid or expired token")
	// ErrWeakPassword is matched by *PolicyError.
	ErrWeakPassword = errors.New("passwordreset: password does not meet policy")
)

// PolicyError lists the password policy violations of a rejected password.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return "password does not meet policy: " + strings.Join(e.Violations, "; ")
}

func (e *PolicyError) Unwrap() error { return ErrWeakPassword }

const (
	maxCASRetries  = 5
	releaseTimeout = 5 * time.Second
)

// Policy configures token lifetime and the request throttle.
type Policy struct {
	TokenTTL time.Duration
	Throttle ratelimit.Policy
}

// DefaultPolicy returns a 30 minute token TTL and a 30s / 5 per hour throttle.
func DefaultPolicy() Policy {
	return Policy{
		TokenTTL: 30 * time.Minute,
		Throttle: ratelimit.Policy{MinInterval: 30 * time.Second, Window: time.Hour, MaxPerWindow: 5},
	}
}

// UserStore is the subset of the user repository the manager needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User, expectedVersion int64) error
}

// TokenStore is the subset of the reset token repository the manager needs.
type TokenStore interface {
	Create(ctx context.Context, t *resetdomain.Token) error
	GetByHash(ctx context.Context, tokenHash string) (*resetdomain.Token, error)
	SupersedeActive(ctx context.Context, email string, at time.Time) (int64, error)
	Supersede(ctx context.Context, id string, at time.Time) error
	Consume(ctx context.Context, tokenHash string, at time.Time) (*resetdomain.Token, error)
	Unconsume(ctx context.Context, id string, usedAt time.Time) error
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sender delivers reset emails. *notify.Mailer implements it.
type Sender interface {
	SendPasswordReset(ctx context.Context, to, userName, token string, ttl time.Duration) error
	SendPasswordChanged(ctx context.Context, to, userName string) error
}

// PasswordHasher hashes new passwords. *security.Hasher implements it.
type PasswordHasher interface {
	Hash(secret []byte) (string, error)
}

// PasswordChecker evaluates the password policy. *engine.OPAEvaluator implements it.
type PasswordChecker interface {
	CheckPassword(ctx context.Context, password, username, email string) ([]string, error)
}

// Outcome is what RequestReset actually did. It is for logs, metrics and
// tests; it must never change what callers see.
type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeUnknownEmail   Outcome = "unknown_email"
	OutcomeThrottled      Outcome = "throttled"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
)

// RequestResult carries the caller-facing message and the internal outcome.
type RequestResult struct {
	Message string
	Outcome Outcome
	UserID  string
}

// TokenStatus describes a usable token.
type TokenStatus struct {
	ExpiresAt time.Time
}

// Manager implements the reset flow.
type Manager struct {
	users   UserStore
	tokens  TokenStore
	sender  Sender
	hasher  PasswordHasher
	checker PasswordChecker
	policy  Policy
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
	metrics *metrics
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

// NewManager returns a Manager. Zero policy fields fall back to DefaultPolicy.
func NewManager(users UserStore, tokens TokenStore, sender Sender, hasher PasswordHasher, checker PasswordChecker, policy Policy, opts ...Option) *Manager {
	def := DefaultPolicy()
	if policy.TokenTTL <= 0 {
		policy.TokenTTL = def.TokenTTL
	}
	if policy.Throttle.Window <= 0 {
		policy.Throttle.Window = def.Throttle.Window
	}
	m := &Manager{
		users:   users,
		tokens:  tokens,
		sender:  sender,
		hasher:  hasher,
		checker: checker,
		policy:  policy,
		log:     logging.Discard(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestReset issues a reset token for email if the account exists and the
// throttle allows it. The returned Message is always GenericMessage; err is
// non-nil only for store failures, which hit existing and unknown emails alike.
func (m *Manager) RequestReset(ctx context.Context, email string) (RequestResult, error) {
	ctx, span := tracer.Start(ctx, "passwordreset.RequestReset")
	defer span.End()
	res, err := m.requestReset(ctx, domain.NormalizeEmail(email))
	res.Message = GenericMessage
	m.metrics.recordRequest(ctx, res.Outcome, err)
	recordSpan(span, string(res.Outcome), err)
	return res, err
}

func (m *Manager) requestReset(ctx context.Context, email string) (RequestResult, error) {
	token, err := security.GenerateResetToken()
	if err != nil {
		return RequestResult{}, fmt.Errorf("generate reset token: %w", err)
	}

	var (
		u    *domain.User
		prev ratelimit.Counter
		now  time.Time
	)
	for attempt := 0; ; attempt++ {
		if attempt == maxCASRetries {
			m.log.WarnContext(ctx, "reset request gave up after concurrent updates", logging.Email(email))
			return RequestResult{Outcome: OutcomeThrottled}, nil
		}
		u, err = m.users.GetByEmail(ctx, email)
		if err != nil {
			return RequestResult{}, err
		}
		if u == nil {
			m.log.InfoContext(ctx, "reset requested for unknown email", logging.Email(email))
			return RequestResult{Outcome: OutcomeUnknownEmail}, nil
		}
		now = m.now()
		prev = u.ResetThrottle
		next, limitErr := m.policy.Throttle.Allow(prev, now)
		if limitErr != nil {
			m.log.InfoContext(ctx, "reset request throttled", logging.Email(email))
			return RequestResult{Outcome: OutcomeThrottled, UserID: u.ID}, nil
		}
		u.ResetThrottle = next
		u.UpdatedAt = now
		err = m.users.Update(ctx, u, u.Version)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return RequestResult{}, err
		}
	}

	if _, err := m.tokens.SupersedeActive(ctx, u.Email, now); err != nil {
		m.releaseThrottle(ctx, u, prev)
		return RequestResult{}, err
	}
	tok := &resetdomain.Token{
		ID:        m.newID(),
		UserID:    u.ID,
		Email:     u.Email,
		TokenHash: security.HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(m.policy.TokenTTL),
	}
	if err := m.tokens.Create(ctx, tok); err != nil {
		m.releaseThrottle(ctx, u, prev)
		return RequestResult{}, err
	}

	if err := m.sender.SendPasswordReset(ctx, u.Email, u.FullName(), token, m.policy.TokenTTL); err != nil {
		m.log.WarnContext(ctx, "reset delivery failed; token withdrawn", logging.Email(email), "error", err)
		m.withdraw(ctx, tok.ID)
		m.releaseThrottle(ctx, u, prev)
		return RequestResult{Outcome: OutcomeDeliveryFailed, UserID: u.ID}, nil
	}
	m.log.InfoContext(ctx, "reset link sent", logging.Email(email))
	return RequestResult{Outcome: OutcomeSent, UserID: u.ID}, nil
}

// withdraw supersedes a token whose email never went out.
func (m *Manager) withdraw(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := m.tokens.Supersede(ctx, id, m.now()); err != nil {
		m.log.ErrorContext(ctx, "withdraw reset token failed", "token_id", id, "error", err)
	}
}

// releaseThrottle restores the throttle counter reserved for a request that
// produced no email. Unrelated writes to the record are retried over; a newer
// reset request that moved the counter on stands.
func (m *Manager) releaseThrottle(ctx context.Context, reserved *domain.User, prev ratelimit.Counter) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	u := reserved.Clone()
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		if !u.ResetThrottle.Same(reserved.ResetThrottle) {
			m.log.InfoContext(ctx, "reset throttle release skipped; a newer request counted", logging.Email(reserved.Email))
			return
		}
		u.ResetThrottle = prev
		u.UpdatedAt = m.now()
		err := m.users.Update(ctx, u, u.Version)
		if err == nil {
			return
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			m.log.ErrorContext(ctx, "reset throttle release failed", logging.Email(reserved.Email), "error", err)
			return
		}
		cur, err := m.users.GetByID(ctx, reserved.ID)
		if err != nil || cur == nil {
			m.log.ErrorContext(ctx, "reset throttle release failed; record not readable", logging.Email(reserved.Email), "error", err)
			return
		}
		u = cur
	}
	m.log.ErrorContext(ctx, "reset throttle release gave up after concurrent updates", logging.Email(reserved.Email))
}

// CheckToken reports whether token can still be used, without consuming it.
func (m *Manager) CheckToken(ctx context.Context, token string) (TokenStatus, error) {
	t, err := m.lookup(ctx, token)
	if err != nil {
		return TokenStatus{}, err
	}
	return TokenStatus{ExpiresAt: t.ExpiresAt}, nil
}

func (m *Manager) lookup(ctx context.Context, token string) (*resetdomain.Token, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	t, err := m.tokens.GetByHash(ctx, security.HashToken(token))
	if err != nil {
		return nil, err
	}
	if t == nil || !t.Usable(m.now()) {
		return nil, ErrInvalidOrExpiredToken
	}
	return t, nil
}

// ConfirmReset validates newPassword, consumes token and sets the password.
// The password policy is checked before the token is consumed, so a rejected
// password leaves the token usable. A second confirm with the same token
// fails with ErrInvalidOrExpiredToken and the first password stays. If the
// password cannot be written after consumption, the token is restored.
func (m *Manager) ConfirmReset(ctx context.Context, token, newPassword string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "passwordreset.ConfirmReset")
	defer span.End()
	u, err := m.confirmReset(ctx, token, newPassword)
	m.metrics.recordConfirm(ctx, err)
	outcome := "reset"
	if err != nil {
		outcome = "rejected"
	}
	recordSpan(span, outcome, err)
	return u, err
}

func (m *Manager) confirmReset(ctx context.Context, token, newPassword string) (*domain.User, error) {
	peek, err := m.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	owner, err := m.users.GetByID(ctx, peek.UserID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrInvalidOrExpiredToken
	}
	if len(newPassword) > security.MaxPasswordBytes {
		return nil, &PolicyError{Violations: []string{fmt.Sprintf("password must be at most %d bytes", security.MaxPasswordBytes)}}
	}
	violations, err := m.checker.CheckPassword(ctx, newPassword, owner.Username, owner.Email)
	if err != nil {
		return nil, fmt.Errorf("password policy: %w", err)
	}
	if len(violations) > 0 {
		return nil, &PolicyError{Violations: violations}
	}
	hash, err := m.hasher.Hash([]byte(newPassword))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	consumed, err := m.tokens.Consume(ctx, security.HashToken(strings.TrimSpace(token)), m.now())
	if err != nil {
		return nil, err
	}
	if consumed == nil {
		return nil, ErrInvalidOrExpiredToken
	}

	var u *domain.User
	for attempt := 0; ; attempt++ {
		if attempt == maxCASRetries {
			m.log.WarnContext(ctx, "password update kept conflicting; token restored", "user_id", consumed.UserID)
			m.unconsume(ctx, consumed)
			return nil, fmt.Errorf("%w: concurrent updates for account", ratelimit.ErrTooManyRequests)
		}
		u, err = m.users.GetByID(ctx, consumed.UserID)
		if err != nil {
			m.log.WarnContext(ctx, "password not updated; token restored", "user_id", consumed.UserID, "error", err)
			m.unconsume(ctx, consumed)
			return nil, err
		}
		if u == nil {
			return nil, ErrInvalidOrExpiredToken
		}
		now := m.now()
		u.PasswordHash = hash
		u.UpdatedAt = now
		err = m.users.Update(ctx, u, u.Version)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			m.log.WarnContext(ctx, "password not updated; token restored", "user_id", consumed.UserID, "error", err)
			m.unconsume(ctx, consumed)
			return nil, err
		}
	}

	if _, err := m.tokens.SupersedeActive(ctx, u.Email, m.now()); err != nil {
		m.log.WarnContext(ctx, "supersede leftover reset tokens failed", logging.Email(u.Email), "error", err)
	}
	if err := m.sender.SendPasswordChanged(ctx, u.Email, u.FullName()); err != nil {
		m.log.WarnContext(ctx, "password changed notice not sent", logging.Email(u.Email), "error", err)
	}
	m.log.InfoContext(ctx, "password reset", logging.Email(u.Email))
	return u, nil
}

// unconsume makes a token usable again after its password update failed, so
// the user can retry with the same link. It runs detached from the caller's
// cancellation and only reverts this consumption (matched on used_at).
func (m *Manager) unconsume(ctx context.Context, t *resetdomain.Token) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := m.tokens.Unconsume(ctx, t.ID, t.UsedAt); err != nil {
		m.log.ErrorContext(ctx, "restore reset token failed", "token_id", t.ID, "error", err)
	}
}

// PurgeStale deletes unused tokens that were superseded or have expired.
// Consumed tokens are kept as an audit trail.
func (m *Manager) PurgeStale(ctx context.Context) (int64, error) {
	n, err := m.tokens.PurgeStale(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.InfoContext(ctx, "purged stale reset tokens", "count", n)
	}
	return n, nil
}

// RunPurger calls PurgeStale every interval until ctx is done.
func (m *Manager) RunPurger(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.PurgeStale(ctx); err != nil && ctx.Err() == nil {
				m.log.ErrorContext(ctx, "purge stale reset tokens failed", "error", err)
			}
		}
	}
}
