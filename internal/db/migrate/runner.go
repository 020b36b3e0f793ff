// Package migrate applies the users and password_reset_tokens schema from
// embedded SQL files using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"naija-nutri-hub/backend/internal/db"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// ErrDirtyVersion means a previous migration failed halfway and needs manual repair.
var ErrDirtyVersion = errors.New("migrate: database is at a dirty version")

// Status is the schema version recorded in schema_migrations.
type Status struct {
	Version uint
	Dirty   bool
}

// Run applies migrations using the provided DSN. command is one of "up",
// "down", or a signed step count such as "+1" or "-1". Already being at the
// target version is not an error.
func Run(dsn, command string) error {
	steps, err := parseCommand(command)
	if err != nil {
		return err
	}
	m, err := open(dsn)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if _, dirty, verr := m.Version(); verr == nil && dirty {
		return ErrDirtyVersion
	}
	switch {
	case command == "up":
		err = m.Up()
	case command == "down":
		err = m.Down()
	default:
		err = m.Steps(steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version reports the current schema version. A database with no applied
// migrations reports version 0.
func Version(dsn string) (Status, error) {
	m, err := open(dsn)
	if err != nil {
		return Status{}, err
	}
	defer func() { _, _ = m.Close() }()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{Version: v, Dirty: dirty}, nil
}

func parseCommand(command string) (int, error) {
	if command == "up" || command == "down" {
		return 0, nil
	}
	if len(command) < 2 || (command[0] != '+' && command[0] != '-') {
		return 0, fmt.Errorf("command must be up, down, +N or -N, got %q", command)
	}
	n, err := strconv.Atoi(command)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("command must be up, down, +N or -N, got %q", command)
	}
	return n, nil
}

func open(dsn string) (*migrate.Migrate, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	source, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, toPgx5URL(dsn))
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}

// toPgx5URL rewrites postgres:// and postgresql:// DSNs to the pgx5:// scheme
// the golang-migrate pgx/v5 driver registers.
func toPgx5URL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if len(dsn) >= len(prefix) && dsn[:len(prefix)] == prefix {
			return "pgx5://" + dsn[len(prefix):]
		}
	}
	return dsn
}
