package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"naija-nutri-hub/backend/internal/store"
	"naija-nutri-hub/backend/internal/user/domain"
)

var userColumnNames = []string{
	"id", "email", "username", "first_name", "last_name", "password_hash", "is_verified",
	"created_at", "updated_at",
	"otp_hash", "otp_expires_at", "otp_failed_attempts",
	"otp_last_sent_at", "otp_resend_count", "otp_resend_window_start",
	"reset_last_sent_at", "reset_request_count", "reset_window_start",
	"version",
}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgresRepository_GetByEmail(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expires := created.Add(10 * time.Minute)

	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		want    *domain.User
		wantErr error
	}{
		{
			name: "found with active otp",
			setup: func(m sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(userColumnNames).AddRow(
					"u1", "a@x.com", "a", "Ada", "", "hash", false,
					created, created,
					"otphash", expires, 1,
					created, 0, nil,
					nil, 0, nil,
					int64(3),
				)
				m.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
					WithArgs("a@x.com").
					WillReturnRows(rows)
			},
			want: &domain.User{
				ID: "u1", Email: "a@x.com", Username: "a", FirstName: "Ada", PasswordHash: "hash",
				CreatedAt: created, UpdatedAt: created, Version: 3,
				OTP: domain.OTPState{Hash: "otphash", ExpiresAt: expires, FailedAttempts: 1},
			},
		},
		{
			name: "not found",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
					WithArgs("a@x.com").
					WillReturnError(sql.ErrNoRows)
			},
		},
		{
			name: "driver failure",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: store.ErrStoreUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			tt.setup(mock)

			got, err := repo.GetByEmail(context.Background(), " A@X.com ")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, tt.want.Email, got.Email)
				assert.Equal(t, tt.want.OTP.Hash, got.OTP.Hash)
				assert.True(t, tt.want.OTP.ExpiresAt.Equal(got.OTP.ExpiresAt))
				assert.Equal(t, 1, got.OTP.FailedAttempts)
				assert.True(t, got.OTPResend.LastSentAt.Equal(created))
				assert.True(t, got.OTPResend.WindowStart.IsZero())
				assert.Equal(t, int64(3), got.Version)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_Create(t *testing.T) {
	newUser := func() *domain.User {
		now := time.Now().UTC()
		return &domain.User{ID: "u1", Email: "A@x.com", Username: "A", PasswordHash: "h", CreatedAt: now, UpdatedAt: now}
	}

	t.Run("success", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		u := newUser()
		require.NoError(t, repo.Create(context.Background(), u))
		assert.Equal(t, int64(1), u.Version)
		assert.Equal(t, "a@x.com", u.Email)
		assert.Equal(t, "a", u.Username)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err := repo.Create(context.Background(), newUser())
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("invalid user never reaches the database", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		u := newUser()
		u.PasswordHash = ""
		assert.Error(t, repo.Create(context.Background(), u))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_Update(t *testing.T) {
	u := &domain.User{ID: "u1", Email: "a@x.com", Username: "a", PasswordHash: "h", IsVerified: true}

	t.Run("version matches", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND version = $18")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		c := u.Clone()
		require.NoError(t, repo.Update(context.Background(), c, 4))
		assert.Equal(t, int64(5), c.Version)
	})

	t.Run("stale version", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND version = $18")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(context.Background(), u.Clone(), 4)
		assert.ErrorIs(t, err, store.ErrVersionConflict)
	})
}

func TestPostgresRepository_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorIs(t, repo.Ping(context.Background()), store.ErrStoreUnavailable)
}
