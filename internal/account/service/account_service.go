// Package service implements the account flows behind the HTTP API: signup,
// verification, login and password recovery. Handlers map the sentinel
// errors below to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"naija-nutri-hub/backend/internal/events"
	"naija-nutri-hub/backend/internal/logging"
	"naija-nutri-hub/backend/internal/otp"
	"naija-nutri-hub/backend/internal/passwordreset"
	"naija-nutri-hub/backend/internal/security"
	"naija-nutri-hub/backend/internal/store"
	"naija-nutri-hub/backend/internal/user/domain"
)

// Sentinel errors for the account service; the HTTP layer maps them to status codes.
var (
	ErrDuplicateAccount   = errors.New("an account with this email or username already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotVerified = errors.New("account not verified")
	ErrNotFound           = errors.New("account not found")
)

const (
	maxNameLength = 100
	// AlreadyVerifiedMessage is returned by ResendOTP for verified accounts.
	AlreadyVerifiedMessage = "Account is already verified."
	// OTPSentMessage is returned by ResendOTP when a new code went out.
	OTPSentMessage = "A new verification code has been sent."
)

var (
	emailPattern    = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,29}$`)
)

// UserRepo is the minimal user repository needed by the account service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

// OTPManager issues and verifies one-time codes. *otp.Manager implements it.
type OTPManager interface {
	Issue(ctx context.Context, email string) (otp.IssueResult, error)
	Resend(ctx context.Context, email string) (otp.IssueResult, error)
	Verify(ctx context.Context, email, code string) (otp.VerifyResult, error)
}

// ResetManager runs password recovery. *passwordreset.Manager implements it.
type ResetManager interface {
	RequestReset(ctx context.Context, email string) (passwordreset.RequestResult, error)
	CheckToken(ctx context.Context, token string) (passwordreset.TokenStatus, error)
	ConfirmReset(ctx context.Context, token, newPassword string) (*domain.User, error)
}

// PasswordHasher hashes and verifies passwords. *security.Hasher implements it.
type PasswordHasher interface {
	Hash(secret []byte) (string, error)
	Verify(secret []byte, hash string) bool
}

// PasswordChecker evaluates the password policy.
type PasswordChecker interface {
	CheckPassword(ctx context.Context, password, username, email string) ([]string, error)
}

// TokenIssuer issues access tokens. *security.TokenProvider implements it.
type TokenIssuer interface {
	IssueAccess(userID, email, username string) (string, time.Time, error)
}

// WelcomeSender sends the post-verification welcome email.
type WelcomeSender interface {
	SendWelcome(ctx context.Context, to, userName string) error
}

// Deps holds the collaborators of AccountService. Events, Log and Now are optional.
type Deps struct {
	Users   UserRepo
	OTP     OTPManager
	Reset   ResetManager
	Hasher  PasswordHasher
	Checker PasswordChecker
	Tokens  TokenIssuer
	Welcome WelcomeSender
	Events  events.Emitter
	Log     *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

// AccountService implements the account flows.
type AccountService struct {
	users   UserRepo
	otp     OTPManager
	reset   ResetManager
	hasher  PasswordHasher
	checker PasswordChecker
	tokens  TokenIssuer
	welcome WelcomeSender
	events  events.Emitter
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewAccountService returns an AccountService with the given dependencies.
func NewAccountService(d Deps) *AccountService {
	s := &AccountService{
		users:   d.Users,
		otp:     d.OTP,
		reset:   d.Reset,
		hasher:  d.Hasher,
		checker: d.Checker,
		tokens:  d.Tokens,
		welcome: d.Welcome,
		events:  d.Events,
		log:     d.Log,
		now:     d.Now,
		newID:   d.NewID,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// SignupInput is the signup request.
type SignupInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// SignupResult reports the created account. OTPIssued is false when the
// verification email could not be sent; the client should call resend.
type SignupResult struct {
	User      *domain.User
	OTPIssued bool
}

// Signup validates the input, creates an unverified account and sends the
// first verification code.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	ctx, span := tracer.Start(ctx, "account.Signup")
	defer span.End()
	res, err := s.signup(ctx, in)
	recordSpan(span, err)
	return res, err
}

func (s *AccountService) signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	email := domain.NormalizeEmail(in.Email)
	username := domain.NormalizeUsername(in.Username)
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if len(first) > maxNameLength || len(last) > maxNameLength {
		return nil, invalid("names must be at most %d characters", maxNameLength)
	}
	if err := s.checkPassword(ctx, in.Password, username, email); err != nil {
		return nil, err
	}

	if existing, err := s.users.GetByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrDuplicateAccount
	}
	if existing, err := s.users.GetByUsername(ctx, username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrDuplicateAccount
	}

	hashed, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	u := &domain.User{
		ID:           s.newID(),
		Email:        email,
		Username:     username,
		FirstName:    first,
		LastName:     last,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, err
	}
	s.log.InfoContext(ctx, "account created", "user_id", u.ID, logging.Email(email))
	s.emit(ctx, events.TypeSignedUp, u, nil)

	res := &SignupResult{User: u}
	issued, err := s.otp.Issue(ctx, email)
	if err != nil {
		// The account exists either way; the client falls back to resend.
		s.log.WarnContext(ctx, "signup verification code not sent", "user_id", u.ID, logging.Email(email), "error", err)
		return res, nil
	}
	res.OTPIssued = true
	s.emit(ctx, events.TypeOTPIssued, u, map[string]string{"expires_at": issued.ExpiresAt.Format(time.RFC3339)})
	return res, nil
}

// VerifyResult reports a verification attempt.
type VerifyResult struct {
	Verified bool
	User     *domain.User
}

// VerifyAccount checks code for email and marks the account verified.
func (s *AccountService) VerifyAccount(ctx context.Context, email, code string) (*VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "account.VerifyAccount")
	defer span.End()
	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		err := invalid("email and otp are required")
		recordSpan(span, err)
		return nil, err
	}
	res, err := s.otp.Verify(ctx, email, code)
	if err != nil {
		recordSpan(span, err)
		return nil, err
	}
	u := res.User
	s.emit(ctx, events.TypeVerified, u, nil)
	if s.welcome != nil && u != nil {
		if err := s.welcome.SendWelcome(ctx, u.Email, u.FullName()); err != nil {
			s.log.WarnContext(ctx, "welcome email not sent", logging.Email(u.Email), "error", err)
		}
	}
	return &VerifyResult{Verified: res.Verified, User: u}, nil
}

// ResendResult reports a resend request.
type ResendResult struct {
	OK        bool
	Message   string
	ExpiresAt time.Time
}

// ResendOTP sends a new verification code subject to the resend throttle.
func (s *AccountService) ResendOTP(ctx context.Context, email string) (*ResendResult, error) {
	ctx, span := tracer.Start(ctx, "account.ResendOTP")
	defer span.End()
	email = domain.NormalizeEmail(email)
	if email == "" {
		err := invalid("email is required")
		recordSpan(span, err)
		return nil, err
	}
	res, err := s.otp.Resend(ctx, email)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			err = ErrNotFound
		}
		recordSpan(span, err)
		return nil, err
	}
	if res.Status == otp.StatusAlreadyVerified {
		return &ResendResult{OK: true, Message: AlreadyVerifiedMessage}, nil
	}
	s.emitEmail(ctx, events.TypeOTPIssued, email, map[string]string{"resend": "true"})
	return &ResendResult{OK: true, Message: OTPSentMessage, ExpiresAt: res.ExpiresAt}, nil
}

// LoginResult holds the authenticated user and access token.
type LoginResult struct {
	User        *domain.User
	AccessToken string
	ExpiresAt   time.Time
}

// Login authenticates by email (identifier contains '@') or username.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "account.Login")
	defer span.End()
	res, err := s.login(ctx, identifier, password)
	recordSpan(span, err)
	return res, err
}

func (s *AccountService) login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	var (
		u   *domain.User
		err error
	)
	if strings.Contains(identifier, "@") {
		u, err = s.users.GetByEmail(ctx, domain.NormalizeEmail(identifier))
	} else {
		u, err = s.users.GetByUsername(ctx, domain.NormalizeUsername(identifier))
	}
	if err != nil {
		return nil, err
	}
	if u == nil || !s.hasher.Verify([]byte(password), u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsVerified {
		return nil, ErrAccountNotVerified
	}
	token, expiresAt, err := s.tokens.IssueAccess(u.ID, u.Email, u.Username)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	s.emit(ctx, events.TypeLoggedIn, u, nil)
	return &LoginResult{User: u, AccessToken: token, ExpiresAt: expiresAt}, nil
}

// ResetRequestResult carries the generic response to a reset request.
type ResetRequestResult struct {
	Message string
}

// RequestPasswordReset starts recovery for email. The result is the same
// whether or not an account exists.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (*ResetRequestResult, error) {
	email = domain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	res, err := s.reset.RequestReset(ctx, email)
	if err != nil {
		return nil, err
	}
	if res.Outcome == passwordreset.OutcomeSent {
		s.emitEmail(ctx, events.TypePasswordResetRequested, email, nil)
	}
	return &ResetRequestResult{Message: res.Message}, nil
}

// CheckResetToken reports when token expires, or passwordreset.ErrInvalidOrExpiredToken.
func (s *AccountService) CheckResetToken(ctx context.Context, token string) (time.Time, error) {
	st, err := s.reset.CheckToken(ctx, token)
	if err != nil {
		return time.Time{}, err
	}
	return st.ExpiresAt, nil
}

// ConfirmPasswordReset sets a new password using a reset token.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" || newPassword == "" {
		return invalid("token and new_password are required")
	}
	u, err := s.reset.ConfirmReset(ctx, token, newPassword)
	if err != nil {
		return err
	}
	s.emit(ctx, events.TypePasswordReset, u, nil)
	return nil
}

// Me returns the account for an authenticated user ID.
func (s *AccountService) Me(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *AccountService) checkPassword(ctx context.Context, password, username, email string) error {
	if len(password) > security.MaxPasswordBytes {
		return invalid("password must be at most %d bytes", security.MaxPasswordBytes)
	}
	if s.checker == nil {
		return nil
	}
	violations, err := s.checker.CheckPassword(ctx, password, username, email)
	if err != nil {
		return fmt.Errorf("password policy: %w", err)
	}
	if len(violations) > 0 {
		return invalid("%s", strings.Join(violations, "; "))
	}
	return nil
}

func (s *AccountService) emit(ctx context.Context, t events.Type, u *domain.User, attrs map[string]string) {
	if u == nil {
		return
	}
	events.EmitAsync(ctx, s.events, &events.AccountEvent{
		Type:       t,
		UserID:     u.ID,
		Email:      logging.RedactEmail(u.Email),
		OccurredAt: s.now(),
		Attributes: attrs,
	}, s.log)
}

func (s *AccountService) emitEmail(ctx context.Context, t events.Type, email string, attrs map[string]string) {
	events.EmitAsync(ctx, s.events, &events.AccountEvent{
		Type:       t,
		Email:      logging.RedactEmail(email),
		OccurredAt: s.now(),
		Attributes: attrs,
	}, s.log)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func validateEmail(email string) error {
	if email == "" {
		return invalid("email is required")
	}
	if !emailPattern.MatchString(email) {
		return invalid("invalid email format")
	}
	return nil
}

func validateUsername(username string) error {
	if username == "" {
		return invalid("username is required")
	}
	if !usernamePattern.MatchString(username) {
		return invalid("username must be 1-30 letters, digits, '_', '.' or '-'")
	}
	return nil
}
