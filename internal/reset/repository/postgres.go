package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"naija-nutri-hub/backend/internal/reset/domain"
	"naija-nutri-hub/backend/internal/store"
	userdomain "naija-nutri-hub/backend/internal/user/domain"
)

const tokenColumns = `id, user_id, email, token_hash, created_at, expires_at, is_used, used_at, superseded_at`

// PostgresRepository persists reset tokens in the password_reset_tokens table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a reset token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *domain.Token) error {
	t.Email = userdomain.NormalizeEmail(t.Email)
	t.Normalize()
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO password_reset_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.UserID, t.Email, t.TokenHash, t.CreatedAt, t.ExpiresAt, t.IsUsed,
		nullTime(t.UsedAt), nullTime(t.SupersededAt),
	)
	return mapPgErr(err)
}

// GetByHash returns the token for tokenHash, or nil if not found.
func (r *PostgresRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM password_reset_tokens WHERE token_hash = $1`, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapPgErr(err)
	}
	return t, nil
}

func (r *PostgresRepository) SupersedeActive(ctx context.Context, email string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE password_reset_tokens SET superseded_at = $2
		WHERE email = $1 AND is_used = FALSE AND superseded_at IS NULL`,
		userdomain.NormalizeEmail(email), at.UTC())
	if err != nil {
		return 0, mapPgErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapPgErr(err)
	}
	return n, nil
}

func (r *PostgresRepository) Supersede(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE password_reset_tokens SET superseded_at = $2
		WHERE id = $1 AND is_used = FALSE AND superseded_at IS NULL`, id, at.UTC())
	return mapPgErr(err)
}

// Consume is a single conditional UPDATE ... RETURNING, so only one caller can
// flip a given token.
func (r *PostgresRepository) Consume(ctx context.Context, tokenHash string, at time.Time) (*domain.Token, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx, `UPDATE password_reset_tokens
		SET is_used = TRUE, used_at = $2
		WHERE token_hash = $1 AND is_used = FALSE AND superseded_at IS NULL AND expires_at >= $2
		RETURNING `+tokenColumns, tokenHash, at.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapPgErr(err)
	}
	return t, nil
}

func (r *PostgresRepository) Unconsume(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE password_reset_tokens SET is_used = FALSE, used_at = NULL
		WHERE id = $1 AND is_used = TRUE AND used_at = $2`, id, usedAt.UTC())
	return mapPgErr(err)
}

func (r *PostgresRepository) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens
		WHERE is_used = FALSE AND (superseded_at IS NOT NULL OR expires_at < $1)`, cutoff.UTC())
	if err != nil {
		return 0, mapPgErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapPgErr(err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*domain.Token, error) {
	var (
		t              domain.Token
		used, replaced sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Email, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.IsUsed, &used, &replaced); err != nil {
		return nil, err
	}
	if used.Valid {
		t.UsedAt = used.Time
	}
	if replaced.Valid {
		t.SupersededAt = replaced.Time
	}
	t.Normalize()
	return &t, nil
}

// mapPgErr returns nil for nil, store.ErrDuplicate for unique violations and
// wraps everything else as store.ErrStoreUnavailable.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrDuplicate
	}
	return fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
