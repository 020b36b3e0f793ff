package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"naija-nutri-hub/backend/internal/ratelimit"
	"naija-nutri-hub/backend/internal/store"
	"naija-nutri-hub/backend/internal/user/domain"
)

const userColumns = `id, email, username, first_name, last_name, password_hash, is_verified,
	created_at, updated_at,
	otp_hash, otp_expires_at, otp_failed_attempts,
	otp_last_sent_at, otp_resend_count, otp_resend_window_start,
	reset_last_sent_at, reset_request_count, reset_window_start,
	version`

// PostgresRepository persists users in the users table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, domain.NormalizeEmail(email))
}

// GetByUsername returns the user with the given username, or nil if not found.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, domain.NormalizeUsername(username))
}

// Create inserts the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	u.Normalize()
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1)`,
		u.ID, u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash, u.IsVerified,
		u.CreatedAt, u.UpdatedAt,
		nullString(u.OTP.Hash), nullTime(u.OTP.ExpiresAt), u.OTP.FailedAttempts,
		nullTime(u.OTPResend.LastSentAt), u.OTPResend.Count, nullTime(u.OTPResend.WindowStart),
		nullTime(u.ResetThrottle.LastSentAt), u.ResetThrottle.Count, nullTime(u.ResetThrottle.WindowStart),
	)
	if err != nil {
		return mapPgErr(err)
	}
	u.Version = 1
	return nil
}

// Update writes every mutable column guarded by the version the caller read.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User, expectedVersion int64) error {
	u.Normalize()
	res, err := r.db.ExecContext(ctx, `UPDATE users SET
		email = $2, username = $3, first_name = $4, last_name = $5, password_hash = $6, is_verified = $7,
		updated_at = $8,
		otp_hash = $9, otp_expires_at = $10, otp_failed_attempts = $11,
		otp_last_sent_at = $12, otp_resend_count = $13, otp_resend_window_start = $14,
		reset_last_sent_at = $15, reset_request_count = $16, reset_window_start = $17,
		version = version + 1
		WHERE id = $1 AND version = $18`,
		u.ID, u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash, u.IsVerified,
		u.UpdatedAt,
		nullString(u.OTP.Hash), nullTime(u.OTP.ExpiresAt), u.OTP.FailedAttempts,
		nullTime(u.OTPResend.LastSentAt), u.OTPResend.Count, nullTime(u.OTPResend.WindowStart),
		nullTime(u.ResetThrottle.LastSentAt), u.ResetThrottle.Count, nullTime(u.ResetThrottle.WindowStart),
		expectedVersion,
	)
	if err != nil {
		return mapPgErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapPgErr(err)
	}
	if n == 0 {
		return store.ErrVersionConflict
	}
	u.Version = expectedVersion + 1
	return nil
}

// Ping checks the connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapPgErr(err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                               domain.User
		otpHash                         sql.NullString
		otpExpires, otpLast, otpWindow  sql.NullTime
		resetLast, resetWindow          sql.NullTime
		otpFailed, otpCount, resetCount int
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsVerified,
		&u.CreatedAt, &u.UpdatedAt,
		&otpHash, &otpExpires, &otpFailed,
		&otpLast, &otpCount, &otpWindow,
		&resetLast, &resetCount, &resetWindow,
		&u.Version,
	)
	if err != nil {
		return nil, err
	}
	u.OTP = domain.OTPState{Hash: otpHash.String, ExpiresAt: timeOf(otpExpires), FailedAttempts: otpFailed}
	u.OTPResend = ratelimit.Counter{LastSentAt: timeOf(otpLast), Count: otpCount, WindowStart: timeOf(otpWindow)}
	u.ResetThrottle = ratelimit.Counter{LastSentAt: timeOf(resetLast), Count: resetCount, WindowStart: timeOf(resetWindow)}
	u.Normalize()
	return &u, nil
}

// mapPgErr translates unique violations to store.ErrDuplicate and wraps
// everything else as store.ErrStoreUnavailable.
func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrDuplicate
	}
	return fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeOf(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
